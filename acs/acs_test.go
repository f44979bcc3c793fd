package acs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-cmp/cmp"
)

var testKey = base64.StdEncoding.EncodeToString([]byte("test-access-key"))

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		name             string
		input            string
		expectedEndpoint string
		expectedErr      bool
	}{
		{
			name:             "endpoint and key are parsed",
			input:            "endpoint=https://example.communication.azure.com/;accesskey=" + testKey,
			expectedEndpoint: "https://example.communication.azure.com",
		},
		{
			name:             "keys are case insensitive",
			input:            "Endpoint=https://example.communication.azure.com/;AccessKey=" + testKey + ";",
			expectedEndpoint: "https://example.communication.azure.com",
		},
		{
			name:        "a missing key is an error",
			input:       "endpoint=https://example.communication.azure.com/",
			expectedErr: true,
		},
		{
			name:        "a missing endpoint is an error",
			input:       "accesskey=" + testKey,
			expectedErr: true,
		},
		{
			name:        "a key that isn't base64 is an error",
			input:       "endpoint=https://example.communication.azure.com/;accesskey=not base64!",
			expectedErr: true,
		},
		{
			name:        "an endpoint without a scheme is an error",
			input:       "endpoint=example.communication.azure.com;accesskey=" + testKey,
			expectedErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs, err := ParseConnectionString(tt.input)
			if tt.expectedErr {
				if !errors.Is(err, ErrInvalidConnectionString) {
					t.Fatalf("expected ErrInvalidConnectionString, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cs.Endpoint.String() != tt.expectedEndpoint {
				t.Errorf("expected endpoint %q, got %q", tt.expectedEndpoint, cs.Endpoint.String())
			}
			if string(cs.AccessKey) != "test-access-key" {
				t.Errorf("unexpected access key %q", cs.AccessKey)
			}
		})
	}
}

func TestSign(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "https://example.communication.azure.com/calling/callConnections:answer?api-version=2024-09-15", nil)
	body := []byte(`{"a":1}`)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	Sign(req, body, []byte("key"), now)

	if got := req.Header.Get("x-ms-date"); got != "Tue, 02 Jan 2024 03:04:05 GMT" {
		t.Errorf("unexpected date %q", got)
	}
	hash := sha256.Sum256(body)
	expectedHash := base64.StdEncoding.EncodeToString(hash[:])
	if got := req.Header.Get("x-ms-content-sha256"); got != expectedHash {
		t.Errorf("expected content hash %q, got %q", expectedHash, got)
	}
	mac := hmac.New(sha256.New, []byte("key"))
	mac.Write([]byte("POST\n/calling/callConnections:answer?api-version=2024-09-15\nTue, 02 Jan 2024 03:04:05 GMT;example.communication.azure.com;" + expectedHash))
	expectedAuth := "HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if got := req.Header.Get("Authorization"); got != expectedAuth {
		t.Errorf("expected %q, got %q", expectedAuth, got)
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	s := httptest.NewServer(handler)
	t.Cleanup(s.Close)
	cs, err := ParseConnectionString("endpoint=" + s.URL + ";accesskey=" + testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := New(slog.New(slog.NewTextHandler(io.Discard, nil)), cs)
	c.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return c
}

func TestAnswerCall(t *testing.T) {
	var received AnswerCallRequest
	var path, apiVersion, auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		apiVersion = r.URL.Query().Get("api-version")
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{"callConnectionId":"conn-1","serverCallId":"server-1"}`))
	})

	req := AnswerCallRequest{
		IncomingCallContext:   "ctx",
		CallbackURI:           "https://app/api/callbacks",
		MediaStreamingOptions: NewBidirectionalMediaStreaming("wss://app/api/media"),
	}
	resp, err := c.AnswerCall(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.CallConnectionID != "conn-1" {
		t.Errorf("expected call connection id conn-1, got %q", resp.CallConnectionID)
	}
	if path != "/calling/callConnections:answer" {
		t.Errorf("unexpected path %q", path)
	}
	if apiVersion != APIVersion {
		t.Errorf("unexpected api version %q", apiVersion)
	}
	if !strings.HasPrefix(auth, "HMAC-SHA256 ") {
		t.Errorf("expected HMAC authorization, got %q", auth)
	}
	if diff := cmp.Diff(req, received); diff != "" {
		t.Errorf("unexpected request: %v", diff)
	}
}

func TestAnswerCallRetries(t *testing.T) {
	t.Run("server errors are retried", func(t *testing.T) {
		var attempts atomic.Int32
		requestIDs := map[string]bool{}
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			requestIDs[r.Header.Get("Repeatability-Request-ID")] = true
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"callConnectionId":"conn-2"}`))
		})
		resp, err := c.AnswerCall(context.Background(), AnswerCallRequest{IncomingCallContext: "ctx"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.CallConnectionID != "conn-2" {
			t.Errorf("unexpected call connection id %q", resp.CallConnectionID)
		}
		if attempts.Load() != 3 {
			t.Errorf("expected 3 attempts, got %d", attempts.Load())
		}
		if len(requestIDs) != 1 {
			t.Errorf("expected retries to reuse the request id, got %v", requestIDs)
		}
	})
	t.Run("client errors are not retried", func(t *testing.T) {
		var attempts atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		})
		_, err := c.AnswerCall(context.Background(), AnswerCallRequest{IncomingCallContext: "ctx"})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if attempts.Load() != 1 {
			t.Errorf("expected 1 attempt, got %d", attempts.Load())
		}
	})
}

func TestHangUp(t *testing.T) {
	var method, path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})
	if err := c.HangUp(context.Background(), "conn-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != http.MethodDelete || path != "/calling/callConnections/conn-1" {
		t.Errorf("unexpected request %s %s", method, path)
	}
}
