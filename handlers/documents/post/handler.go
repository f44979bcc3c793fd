package post

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/a-h/respond"
	"github.com/a-h/voicerag/auth"
	"github.com/a-h/voicerag/lawyer"
	"github.com/a-h/voicerag/models"
)

const MaxUploadSize = 64 << 20

type Indexer interface {
	CreateIndexFromUploadedPDF(ctx context.Context, name string, r io.Reader) (lawyer.Indexed, error)
}

func New(log *slog.Logger, indexer Indexer, library *lawyer.Library) Handler {
	return Handler{
		log:     log,
		indexer: indexer,
		library: library,
	}
}

type Handler struct {
	log     *slog.Logger
	indexer Indexer
	library *lawyer.Library
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.GetUser(r)

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	f, fh, err := r.FormFile("pdf")
	if err != nil {
		h.log.Warn("failed to read uploaded file", slog.Any("error", err))
		respond.WithError(w, "a PDF must be uploaded in the pdf field", http.StatusBadRequest)
		return
	}
	defer f.Close()

	doc, err := h.indexer.CreateIndexFromUploadedPDF(r.Context(), fh.Filename, f)
	if err != nil {
		if errors.Is(err, lawyer.ErrNotPDF) || errors.Is(err, lawyer.ErrEmptyUpload) || errors.Is(err, lawyer.ErrNoFileName) {
			h.log.Warn("invalid upload", slog.String("name", fh.Filename), slog.Any("error", err))
			respond.WithError(w, "the uploaded file is not a valid PDF", http.StatusBadRequest)
			return
		}
		h.log.Error("failed to index PDF", slog.String("name", fh.Filename), slog.Any("error", err))
		respond.WithError(w, "failed to index PDF", http.StatusInternalServerError)
		return
	}
	doc.Owner = user

	resp := models.DocumentsPostResponse{
		ID:     h.library.Add(doc),
		Name:   doc.Name,
		Pages:  doc.Pages,
		Chunks: doc.Chunks,
	}
	h.log.Info("document indexed", slog.String("id", resp.ID), slog.String("user", user), slog.Int("chunks", resp.Chunks))
	respond.WithJSON(w, resp, http.StatusOK)
}
