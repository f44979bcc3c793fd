package post

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/a-h/voicerag/lawyer"
	"github.com/a-h/voicerag/lawyer/lawyertest"
)

func TestAskPost(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	llm := &lawyertest.LLM{Answer: "It guarantees freedom of speech."}
	pipeline, err := lawyer.New(log, lawyertest.Embedder{}, llm, lawyer.Config{Directory: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	doc, err := pipeline.CreateIndexFromUploadedPDF(ctx, "doc.pdf", bytes.NewReader(lawyertest.PDF("Article 19 protects freedom of speech")))
	if err != nil {
		t.Fatalf("failed to index: %v", err)
	}
	library := lawyer.NewLibrary(10)
	id := library.Add(doc)
	h := New(log, pipeline, library)

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(body)))
		return w
	}

	t.Run("the answer is streamed", func(t *testing.T) {
		w := post(`{"documentId":"` + id + `","text":"What does Article 19 guarantee?"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if w.Body.String() != llm.Answer {
			t.Errorf("unexpected answer %q", w.Body.String())
		}
		if !w.Flushed {
			t.Error("expected the response to be flushed as it was written")
		}
	})
	t.Run("blank questions are rejected", func(t *testing.T) {
		w := post(`{"documentId":"` + id + `","text":" "}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})
	t.Run("unknown documents are not found", func(t *testing.T) {
		w := post(`{"documentId":"missing","text":"What?"}`)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
	})
	t.Run("LLM failures are server errors", func(t *testing.T) {
		llm.Err = errors.New("unavailable")
		defer func() { llm.Err = nil }()
		w := post(`{"documentId":"` + id + `","text":"What?"}`)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", w.Code)
		}
	})
}
