package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/a-h/voicerag/auth"
)

func TestRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := New(1, 2, ok)
	rl.now = func() time.Time { return now }

	get := func(remoteAddr string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		rl.ServeHTTP(w, r)
		return w.Code
	}

	t.Run("requests within the burst are allowed", func(t *testing.T) {
		for i := range 2 {
			if code := get("10.0.0.1:1234"); code != http.StatusOK {
				t.Fatalf("request %d: expected 200, got %d", i, code)
			}
		}
	})
	t.Run("requests beyond the burst are rejected", func(t *testing.T) {
		if code := get("10.0.0.1:5678"); code != http.StatusTooManyRequests {
			t.Errorf("expected 429, got %d", code)
		}
	})
	t.Run("other addresses have their own limit", func(t *testing.T) {
		if code := get("10.0.0.2:1234"); code != http.StatusOK {
			t.Errorf("expected 200, got %d", code)
		}
	})
	t.Run("tokens are replenished over time", func(t *testing.T) {
		now = now.Add(time.Second)
		if code := get("10.0.0.1:1234"); code != http.StatusOK {
			t.Errorf("expected 200, got %d", code)
		}
	})
}

func TestRateLimitIsPerUser(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rl := New(0.001, 1, ok)
	h := auth.New(map[string]string{"a": "alice", "b": "bob"}, rl)

	get := func(key string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+key)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}
	if code := get("a"); code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if code := get("a"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", code)
	}
	if code := get("b"); code != http.StatusOK {
		t.Errorf("expected 200 for a different user from the same address, got %d", code)
	}
}
