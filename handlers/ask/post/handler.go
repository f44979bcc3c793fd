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
	"github.com/tmc/langchaingo/vectorstores"
)

type Answerer interface {
	AnswerQueryStream(ctx context.Context, store vectorstores.VectorStore, question string, f func(ctx context.Context, chunk []byte) error) error
}

func New(log *slog.Logger, answerer Answerer, library *lawyer.Library) Handler {
	return Handler{
		log:      log,
		answerer: answerer,
		library:  library,
	}
}

type Handler struct {
	log      *slog.Logger
	answerer Answerer
	library  *lawyer.Library
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.GetUser(r)

	var req models.AskPostRequest
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

	h.log.Info("answering question", slog.String("id", req.DocumentID), slog.String("user", user))

	sw := &streamWriter{w: w}
	err = h.answerer.AnswerQueryStream(r.Context(), doc.Index, req.Text, sw.Write)
	if err != nil {
		if errors.Is(err, lawyer.ErrEmptyQuestion) {
			respond.WithError(w, "text is required", http.StatusBadRequest)
			return
		}
		h.log.Error("failed to generate content", slog.Any("error", err))
		if !sw.started {
			respond.WithError(w, "failed to generate content", http.StatusInternalServerError)
		}
		return
	}
}

// streamWriter writes and flushes each chunk of a streamed answer.
type streamWriter struct {
	w       http.ResponseWriter
	started bool
}

func (sw *streamWriter) Write(ctx context.Context, chunk []byte) error {
	select {
	case <-ctx.Done():
		return nil
	default:
		if !sw.started {
			sw.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			sw.started = true
		}
		if _, err := sw.w.Write(chunk); err != nil {
			return err
		}
		if flusher, canFlush := sw.w.(http.Flusher); canFlush {
			flusher.Flush()
		}
		return nil
	}
}
