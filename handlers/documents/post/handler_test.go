package post

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a-h/voicerag/auth"
	"github.com/a-h/voicerag/lawyer"
	"github.com/a-h/voicerag/lawyer/lawyertest"
	"github.com/a-h/voicerag/models"
)

func upload(t *testing.T, h http.Handler, field, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	fw.Write(content)
	mw.Close()
	r := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.Header.Set("Authorization", "Bearer key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestDocumentsPost(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipeline, err := lawyer.New(log, lawyertest.Embedder{}, &lawyertest.LLM{}, lawyer.Config{Directory: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	library := lawyer.NewLibrary(10)
	h := auth.New(map[string]string{"key": "alice"}, New(log, pipeline, library))

	t.Run("valid PDFs are indexed and added to the library", func(t *testing.T) {
		w := upload(t, h, "pdf", "constitution.pdf", lawyertest.PDF("Article 19", "Article 21"))
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp models.DocumentsPostResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Name != "constitution.pdf" || resp.Pages != 2 || resp.Chunks != 2 {
			t.Errorf("unexpected response: %+v", resp)
		}
		doc, ok := library.Get(resp.ID)
		if !ok {
			t.Fatal("expected the document to be in the library")
		}
		if doc.Owner != "alice" {
			t.Errorf("expected owner alice, got %q", doc.Owner)
		}
	})
	t.Run("invalid PDFs are rejected", func(t *testing.T) {
		w := upload(t, h, "pdf", "notes.pdf", []byte("not a pdf"))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})
	t.Run("the file must be in the pdf field", func(t *testing.T) {
		w := upload(t, h, "file", "constitution.pdf", lawyertest.PDF("Article 19"))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})
}
