package post

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/respond"
	"github.com/a-h/voicerag/auth"
	"github.com/a-h/voicerag/lawyer"
	"github.com/a-h/voicerag/models"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

type Retriever interface {
	Retrieve(ctx context.Context, store vectorstores.VectorStore, question string) ([]schema.Document, error)
}

func New(log *slog.Logger, retriever Retriever, library *lawyer.Library) Handler {
	return Handler{
		log:       log,
		retriever: retriever,
		library:   library,
	}
}

type Handler struct {
	log       *slog.Logger
	retriever Retriever
	library   *lawyer.Library
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.GetUser(r)

	var req models.ContextPostRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.log.Error("failed to decode body", slog.Any("error", err))
		respond.WithError(w, "failed to decode body", http.StatusBadRequest)
		return
	}

	doc, ok := h.library.Get(req.DocumentID)
	if !ok || doc.Owner != user {
		respond.WithError(w, "document not found", http.StatusNotFound)
		return
	}

	docs, err := h.retriever.Retrieve(r.Context(), doc.Index, req.Text)
	if err != nil {
		if errors.Is(err, lawyer.ErrEmptyQuestion) {
			respond.WithError(w, "text is required", http.StatusBadRequest)
			return
		}
		h.log.Error("failed to retrieve context", slog.Any("error", err))
		respond.WithError(w, "failed to retrieve context", http.StatusInternalServerError)
		return
	}

	resp := models.ContextPostResponse{
		Results: make([]models.ContextDocument, len(docs)),
	}
	for i, d := range docs {
		page, _ := d.Metadata[lawyer.MetadataPage].(int)
		startIndex, _ := d.Metadata[lawyer.MetadataStartIndex].(int)
		source, _ := d.Metadata[lawyer.MetadataSource].(string)
		resp.Results[i] = models.ContextDocument{
			Text:       d.PageContent,
			Distance:   d.Score,
			Page:       page,
			StartIndex: startIndex,
			Source:     source,
		}
	}

	respond.WithJSON(w, resp, http.StatusOK)
}
