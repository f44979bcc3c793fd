package post

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/voicerag/handlers/home"
	"github.com/a-h/voicerag/lawyer"
	"github.com/tmc/langchaingo/vectorstores"
)

const MaxUploadSize = 64 << 20

type Pipeline interface {
	CreateIndexFromUploadedPDF(ctx context.Context, name string, r io.Reader) (lawyer.Indexed, error)
	AnswerQuery(ctx context.Context, store vectorstores.VectorStore, question string) (string, error)
}

func New(log *slog.Logger, pipeline Pipeline) Handler {
	return Handler{
		log:      log,
		pipeline: pipeline,
	}
}

type Handler struct {
	log      *slog.Logger
	pipeline Pipeline
}

func (h Handler) render(w http.ResponseWriter, p home.Page, status int) {
	if err := home.Render(w, p, status); err != nil {
		h.log.Error("failed to render page", slog.Any("error", err))
	}
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	question := r.FormValue("question")
	page := home.Page{Question: question}

	f, fh, err := r.FormFile("pdf")
	if err != nil || strings.TrimSpace(question) == "" {
		page.Error = home.ErrMissingInput
		h.render(w, page, http.StatusBadRequest)
		return
	}
	defer f.Close()

	doc, err := h.pipeline.CreateIndexFromUploadedPDF(r.Context(), fh.Filename, f)
	if err != nil {
		if errors.Is(err, lawyer.ErrNotPDF) || errors.Is(err, lawyer.ErrEmptyUpload) || errors.Is(err, lawyer.ErrNoFileName) {
			h.log.Warn("invalid upload", slog.String("name", fh.Filename), slog.Any("error", err))
			page.Error = home.ErrInvalidPDF
			h.render(w, page, http.StatusBadRequest)
			return
		}
		h.log.Error("failed to index PDF", slog.String("name", fh.Filename), slog.Any("error", err))
		page.Error = home.ErrAnswerFailed
		h.render(w, page, http.StatusInternalServerError)
		return
	}

	page.Answer, err = h.pipeline.AnswerQuery(r.Context(), doc.Index, question)
	if err != nil {
		h.log.Error("failed to answer question", slog.Any("error", err))
		page.Error = home.ErrAnswerFailed
		h.render(w, page, http.StatusInternalServerError)
		return
	}
	h.render(w, page, http.StatusOK)
}
