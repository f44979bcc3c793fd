package post

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/a-h/voicerag/acs"
	"github.com/a-h/voicerag/calls"
	"github.com/a-h/voicerag/d365"
	"github.com/a-h/voicerag/db"
	"github.com/google/go-cmp/cmp"
)

type fakeAnswerer struct {
	req acs.AnswerCallRequest
	err error
}

func (f *fakeAnswerer) AnswerCall(ctx context.Context, req acs.AnswerCallRequest) (acs.AnswerCallResponse, error) {
	f.req = req
	if f.err != nil {
		return acs.AnswerCallResponse{}, f.err
	}
	return acs.AnswerCallResponse{CallConnectionID: "conn-1"}, nil
}

type fakeCRM struct {
	contacts map[string]d365.Contact
}

func (f fakeCRM) LookupContactByPhone(ctx context.Context, phone string) (d365.Contact, bool, error) {
	c, ok := f.contacts[phone]
	return c, ok, nil
}

func (f fakeCRM) LogPhoneCall(ctx context.Context, pc d365.PhoneCall) error {
	return nil
}

var testNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T, answerer Answerer, crm calls.CRM, store calls.Store) Handler {
	t.Helper()
	h, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), answerer, crm, store, "https://voicerag.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.now = func() time.Time { return testNow }
	return h
}

const incomingCall = `[{
	"id": "e1",
	"eventType": "Microsoft.Communication.IncomingCall",
	"data": {
		"to": {"kind": "phoneNumber", "rawId": "4:+18005550100", "phoneNumber": {"value": "+18005550100"}},
		"from": {"kind": "phoneNumber", "rawId": "4:+441234567890", "phoneNumber": {"value": "+441234567890"}},
		"incomingCallContext": "incoming-context",
		"correlationId": "corr-1"
	}
}]`

func TestSubscriptionValidation(t *testing.T) {
	h := newTestHandler(t, &fakeAnswerer{}, nil, calls.NewMemoryStore())
	body := `[{"id":"v1","eventType":"Microsoft.EventGrid.SubscriptionValidationEvent","data":{"validationCode":"code-123"}}]`
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/incomingCall", strings.NewReader(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["validationResponse"] != "code-123" {
		t.Errorf("unexpected response %v", resp)
	}
}

func TestIncomingCall(t *testing.T) {
	answerer := &fakeAnswerer{}
	store := calls.NewMemoryStore()
	crm := fakeCRM{contacts: map[string]d365.Contact{
		"+441234567890": {ID: "contact-1", FullName: "Ada Lovelace"},
	}}
	h := newTestHandler(t, answerer, crm, store)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/incomingCall", strings.NewReader(incomingCall)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if answerer.req.IncomingCallContext != "incoming-context" {
		t.Errorf("unexpected incoming call context %q", answerer.req.IncomingCallContext)
	}
	if expected := "https://voicerag.example.com/api/callbacks?callerId=%2B441234567890"; answerer.req.CallbackURI != expected {
		t.Errorf("expected callback %q, got %q", expected, answerer.req.CallbackURI)
	}
	if expected := "wss://voicerag.example.com/api/media"; answerer.req.MediaStreamingOptions.TransportURL != expected {
		t.Errorf("expected media transport %q, got %q", expected, answerer.req.MediaStreamingOptions.TransportURL)
	}

	call, ok, err := store.CallGet(context.Background(), "conn-1")
	if err != nil || !ok {
		t.Fatalf("expected stored call, got ok=%v err=%v", ok, err)
	}
	expected := db.Call{
		ID:            "conn-1",
		CallerID:      "+441234567890",
		ContactID:     "contact-1",
		ContactName:   "Ada Lovelace",
		Status:        db.CallStatusAnswered,
		CreatedAt:     testNow,
		LastUpdatedAt: testNow,
	}
	if diff := cmp.Diff(expected, call); diff != "" {
		t.Error(diff)
	}
}

func TestIncomingCallWithoutCRM(t *testing.T) {
	store := calls.NewMemoryStore()
	h := newTestHandler(t, &fakeAnswerer{}, nil, store)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/incomingCall", strings.NewReader(incomingCall)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	call, ok, _ := store.CallGet(context.Background(), "conn-1")
	if !ok {
		t.Fatal("expected stored call")
	}
	if call.ContactID != "" {
		t.Errorf("expected no contact, got %q", call.ContactID)
	}
}

func TestIncomingCallErrors(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		answerErr      error
		expectedStatus int
	}{
		{
			name:           "invalid JSON is a bad request",
			body:           `{`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "answer failures are server errors",
			body:           incomingCall,
			answerErr:      errors.New("acs unavailable"),
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "unknown events are ignored",
			body:           `[{"id":"x","eventType":"Microsoft.Communication.Other","data":{}}]`,
			expectedStatus: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &fakeAnswerer{err: tt.answerErr}, nil, calls.NewMemoryStore())
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/incomingCall", strings.NewReader(tt.body)))
			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestNewRejectsInvalidAppURL(t *testing.T) {
	if _, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), &fakeAnswerer{}, nil, calls.NewMemoryStore(), "ftp://example.com"); err == nil {
		t.Error("expected error, got nil")
	}
}

// connectingAnswerer delivers the CallConnected callback before the answer response returns.
type connectingAnswerer struct {
	store calls.Store
	at    time.Time
}

func (a connectingAnswerer) AnswerCall(ctx context.Context, req acs.AnswerCallRequest) (acs.AnswerCallResponse, error) {
	if _, err := calls.UpdateStatus(ctx, a.store, "conn-1", db.CallStatusConnected, a.at); err != nil {
		return acs.AnswerCallResponse{}, err
	}
	return acs.AnswerCallResponse{CallConnectionID: "conn-1"}, nil
}

func TestIncomingCallKeepsStatusFromEarlyCallback(t *testing.T) {
	store := calls.NewMemoryStore()
	connectedAt := testNow.Add(-time.Second)
	crm := fakeCRM{contacts: map[string]d365.Contact{
		"+441234567890": {ID: "contact-1", FullName: "Ada Lovelace"},
	}}
	h := newTestHandler(t, connectingAnswerer{store: store, at: connectedAt}, crm, store)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/incomingCall", strings.NewReader(incomingCall)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	call, ok, err := store.CallGet(context.Background(), "conn-1")
	if err != nil || !ok {
		t.Fatalf("expected stored call, got ok=%v err=%v", ok, err)
	}
	expected := db.Call{
		ID:            "conn-1",
		CallerID:      "+441234567890",
		ContactID:     "contact-1",
		ContactName:   "Ada Lovelace",
		Status:        db.CallStatusConnected,
		CreatedAt:     connectedAt,
		LastUpdatedAt: connectedAt,
	}
	if diff := cmp.Diff(expected, call); diff != "" {
		t.Error(diff)
	}
}
