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
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/vectorstores"
)

type Chatter interface {
	ChatStream(ctx context.Context, store vectorstores.VectorStore, history []llms.MessageContent, question string, f func(ctx context.Context, chunk []byte) error) error
}

func New(log *slog.Logger, chatter Chatter, library *lawyer.Library) Handler {
	return Handler{
		log:     log,
		chatter: chatter,
		library: library,
	}
}

type Handler struct {
	log     *slog.Logger
	chatter Chatter
	library *lawyer.Library
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.GetUser(r)

	var req models.ChatPostRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.log.Error("failed to decode body", slog.Any("error", err))
		respond.WithError(w, "failed to decode body", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 || req.Messages[len(req.Messages)-1].Type != models.ChatMessageTypeHuman {
		respond.WithError(w, "the last message must be a human message", http.StatusBadRequest)
		return
	}

	doc, ok := h.library.Get(req.DocumentID)
	if !ok || doc.Owner != user {
		respond.WithError(w, "document not found", http.StatusNotFound)
		return
	}

	var history []llms.MessageContent
	for _, m := range req.Messages[:len(req.Messages)-1] {
		history = append(history, llms.TextParts(llms.ChatMessageType(m.Type), m.Content))
	}
	question := req.Messages[len(req.Messages)-1].Content

	h.log.Info("generating content", slog.String("id", req.DocumentID), slog.Int("history", len(history)))

	var started bool
	f := func(ctx context.Context, chunk []byte) error {
		select {
		case <-ctx.Done():
			return nil
		default:
			started = true
			if _, err := w.Write(chunk); err != nil {
				return err
			}
			if flusher, canFlush := w.(http.Flusher); canFlush {
				flusher.Flush()
			}
			return nil
		}
	}

	err = h.chatter.ChatStream(r.Context(), doc.Index, history, question, f)
	if err != nil {
		if errors.Is(err, lawyer.ErrEmptyQuestion) {
			respond.WithError(w, "the question is empty", http.StatusBadRequest)
			return
		}
		h.log.Error("failed to generate content", slog.Any("error", err))
		if !started {
			respond.WithError(w, "failed to generate content", http.StatusInternalServerError)
		}
		return
	}
}
