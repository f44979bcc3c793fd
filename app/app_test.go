package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/a-h/voicerag/d365"
	"github.com/a-h/voicerag/search"
)

func baseConfig() Config {
	return Config{
		OpenAIEndpoint:        "https://example.openai.azure.com",
		OpenAIDeployment:      "gpt-4o-realtime-preview",
		OpenAIKey:             "openai-key",
		SearchEndpoint:        "https://example.search.windows.net",
		SearchIndex:           "index",
		SearchKey:             "search-key",
		SemanticConfiguration: "default",
		Fields: search.Fields{
			Identifier: "chunk_id",
			Content:    "chunk",
			Embedding:  "text_vector",
			Title:      "title",
		},
		UseVectorQuery: true,
	}
}

var validACSConnectionString = "endpoint=https://example.communication.azure.com/;accesskey=" + base64.StdEncoding.EncodeToString([]byte("secret"))

func newTestApp(t *testing.T, cfg Config) (a *App, logs *bytes.Buffer) {
	t.Helper()
	logs = new(bytes.Buffer)
	log := slog.New(slog.NewJSONHandler(logs, nil))
	a, err := New(context.Background(), log, cfg)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return a, logs
}

func TestFeatures(t *testing.T) {
	tests := []struct {
		name         string
		configure    func(cfg *Config)
		expected     Features
		expectedLogs []string
	}{
		{
			name:      "without D365 or ACS configuration, both are disabled with warnings",
			configure: func(cfg *Config) {},
			expected:  Features{},
			expectedLogs: []string{
				"D365 credentials not found",
				"ACS_CONNECTION_STRING not found",
			},
		},
		{
			name: "complete D365 and ACS configuration enables both",
			configure: func(cfg *Config) {
				cfg.D365 = d365.Config{TenantID: "tenant", ClientID: "client", ClientSecret: "secret", URL: "https://org.crm.dynamics.com"}
				cfg.ACSConnectionString = validACSConnectionString
				cfg.AppURL = "https://voice.example.com"
			},
			expected: Features{D365: true, ACS: true},
			expectedLogs: []string{
				"D365 integration enabled",
				"ACS call handling enabled",
				"https://voice.example.com/api/incomingCall",
				"https://voice.example.com/api/callbacks",
			},
		},
		{
			name: "incomplete D365 configuration is logged and disabled",
			configure: func(cfg *Config) {
				cfg.D365 = d365.Config{TenantID: "tenant"}
			},
			expected:     Features{},
			expectedLogs: []string{"D365 setup failed"},
		},
		{
			name: "an invalid ACS connection string is logged and disabled",
			configure: func(cfg *Config) {
				cfg.ACSConnectionString = "not-a-connection-string"
			},
			expected:     Features{},
			expectedLogs: []string{"ACS setup failed"},
		},
		{
			name: "ACS works without D365",
			configure: func(cfg *Config) {
				cfg.ACSConnectionString = validACSConnectionString
			},
			expected:     Features{ACS: true},
			expectedLogs: []string{"D365 credentials not found", DefaultAppURL + "/api/incomingCall"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.configure(&cfg)
			a, logs := newTestApp(t, cfg)
			if a.Features() != tt.expected {
				t.Errorf("expected features %+v, got %+v", tt.expected, a.Features())
			}
			for _, expected := range tt.expectedLogs {
				if !strings.Contains(logs.String(), expected) {
					t.Errorf("expected logs to contain %q, got:\n%s", expected, logs.String())
				}
			}
		})
	}
}

func TestRequiredSettings(t *testing.T) {
	tests := []struct {
		name      string
		configure func(cfg *Config)
	}{
		{
			name:      "the OpenAI endpoint is required",
			configure: func(cfg *Config) { cfg.OpenAIEndpoint = "" },
		},
		{
			name:      "the realtime deployment is required",
			configure: func(cfg *Config) { cfg.OpenAIDeployment = "" },
		},
		{
			name:      "the search endpoint is required",
			configure: func(cfg *Config) { cfg.SearchEndpoint = "" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.configure(&cfg)
			if _, err := New(context.Background(), slog.New(slog.DiscardHandler), cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRoutes(t *testing.T) {
	t.Run("ACS routes are only registered when ACS is enabled", func(t *testing.T) {
		a, _ := newTestApp(t, baseConfig())
		w := httptest.NewRecorder()
		a.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/incomingCall", strings.NewReader("[]")))
		if w.Code == http.StatusOK {
			t.Error("expected the incoming call route to be missing")
		}
	})
	cfg := baseConfig()
	cfg.ACSConnectionString = validACSConnectionString
	cfg.APIKeys = map[string]string{"ops-key": "ops"}
	a, _ := newTestApp(t, cfg)

	tests := []struct {
		name           string
		method         string
		target         string
		body           string
		apiKey         string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "the home page is served",
			method:         http.MethodGet,
			target:         "/",
			expectedStatus: http.StatusOK,
			expectedBody:   "Talk to your data",
		},
		{
			name:           "static files are served",
			method:         http.MethodGet,
			target:         "/app.js",
			expectedStatus: http.StatusOK,
			expectedBody:   "/realtime",
		},
		{
			name:           "metrics are served",
			method:         http.MethodGet,
			target:         "/metrics",
			expectedStatus: http.StatusOK,
			expectedBody:   "voicerag_",
		},
		{
			name:           "event grid subscriptions are validated",
			method:         http.MethodPost,
			target:         "/api/incomingCall",
			body:           `[{"eventType":"Microsoft.EventGrid.SubscriptionValidationEvent","data":{"validationCode":"code-123"}}]`,
			expectedStatus: http.StatusOK,
			expectedBody:   `"validationResponse":"code-123"`,
		},
		{
			name:           "callbacks are accepted",
			method:         http.MethodPost,
			target:         "/api/callbacks",
			body:           `[]`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "calls are listed for API users",
			method:         http.MethodGet,
			target:         "/api/calls",
			apiKey:         "ops-key",
			expectedStatus: http.StatusOK,
			expectedBody:   `"calls"`,
		},
		{
			name:           "calls are not listed without an API key",
			method:         http.MethodGet,
			target:         "/api/calls",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "calls are not listed with an unknown API key",
			method:         http.MethodGet,
			target:         "/api/calls",
			apiKey:         "guess",
			expectedStatus: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.apiKey != "" {
				r.Header.Set("Authorization", "Bearer "+tt.apiKey)
			}
			a.ServeHTTP(w, r)
			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.expectedBody) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedBody, w.Body.String())
			}
		})
	}
}

func TestCallLogRequiresAPIKeys(t *testing.T) {
	cfg := baseConfig()
	cfg.ACSConnectionString = validACSConnectionString
	a, logs := newTestApp(t, cfg)

	w := httptest.NewRecorder()
	a.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/calls", nil))
	if w.Code == http.StatusOK {
		t.Errorf("expected the call log to be unavailable without API keys, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(logs.String(), "the call log is not served") {
		t.Errorf("expected a warning, got logs %s", logs.String())
	}
}

func TestToolsAreLogged(t *testing.T) {
	_, logs := newTestApp(t, baseConfig())
	for _, tool := range []string{"search", "report_grounding"} {
		if !strings.Contains(logs.String(), `"`+tool+`"`) {
			t.Errorf("expected tool %q in logs, got:\n%s", tool, logs.String())
		}
	}
}

func TestProfile(t *testing.T) {
	t.Run("the default system message is used without a profile", func(t *testing.T) {
		a, _ := newTestApp(t, baseConfig())
		if a.RT.SystemMessage != DefaultSystemMessage {
			t.Error("expected the default system message")
		}
		if a.RT.Voice != "alloy" {
			t.Errorf("expected the default voice, got %q", a.RT.Voice)
		}
	})
	t.Run("a profile overrides the system message and voice", func(t *testing.T) {
		name := filepath.Join(t.TempDir(), "profile.yaml")
		err := os.WriteFile(name, []byte("systemMessage: You answer questions about trains.\nvoice: shimmer\ntemperature: 0.7\n"), 0o600)
		if err != nil {
			t.Fatalf("failed to write profile: %v", err)
		}
		p, err := LoadProfile(name)
		if err != nil {
			t.Fatalf("failed to load profile: %v", err)
		}
		cfg := baseConfig()
		cfg.Voice = "echo"
		cfg.Profile = p
		a, _ := newTestApp(t, cfg)
		if a.RT.SystemMessage != "You answer questions about trains." {
			t.Errorf("unexpected system message %q", a.RT.SystemMessage)
		}
		if a.RT.Voice != "shimmer" {
			t.Errorf("expected voice shimmer, got %q", a.RT.Voice)
		}
		if a.RT.Temperature == nil || *a.RT.Temperature != 0.7 {
			t.Errorf("expected temperature 0.7, got %v", a.RT.Temperature)
		}
	})
	t.Run("unknown profile fields are rejected", func(t *testing.T) {
		name := filepath.Join(t.TempDir(), "profile.yaml")
		if err := os.WriteFile(name, []byte("sytemMessage: typo\n"), 0o600); err != nil {
			t.Fatalf("failed to write profile: %v", err)
		}
		if _, err := LoadProfile(name); err == nil {
			t.Error("expected error")
		}
	})
}
