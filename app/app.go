// Package app assembles the voice RAG assistant's HTTP server.
package app

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/a-h/voicerag/acs"
	"github.com/a-h/voicerag/auth"
	"github.com/a-h/voicerag/calls"
	"github.com/a-h/voicerag/credential"
	"github.com/a-h/voicerag/d365"
	callbackspost "github.com/a-h/voicerag/handlers/callbacks/post"
	callsget "github.com/a-h/voicerag/handlers/calls/get"
	incomingcallpost "github.com/a-h/voicerag/handlers/incomingcall/post"
	mediaget "github.com/a-h/voicerag/handlers/media/get"
	"github.com/a-h/voicerag/ragtools"
	"github.com/a-h/voicerag/rtmt"
	"github.com/a-h/voicerag/search"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

const DefaultAppURL = "https://bizapps-webapp.azurewebsites.net"

//go:embed static
var static embed.FS

type Config struct {
	OpenAIEndpoint   string
	OpenAIDeployment string
	OpenAIKey        string
	Voice            string

	SearchEndpoint        string
	SearchIndex           string
	SearchKey             string
	SemanticConfiguration string
	Fields                search.Fields
	UseVectorQuery        bool

	// TenantID selects the Azure Developer CLI credential when API keys are missing.
	TenantID string

	// D365 is enabled when D365.TenantID is set.
	D365 d365.Config

	// ACSConnectionString enables telephony when set.
	ACSConnectionString string
	AppURL              string

	Profile Profile

	// Store of calls, defaults to an in-memory store.
	Store calls.Store

	// APIKeys maps API keys to user names. The call log is only served when keys are set,
	// because it contains caller phone numbers and contact names.
	APIKeys map[string]string
}

// Features reports the optional integrations that were enabled.
type Features struct {
	D365 bool
	ACS  bool
}

type App struct {
	RT *rtmt.RTMiddleTier

	log      *slog.Logger
	handler  http.Handler
	features Features
}

func (a *App) Features() Features {
	return a.features
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// New builds the server. Misconfigured D365 or ACS integrations are logged and disabled, but
// the realtime and search settings are required.
func New(ctx context.Context, log *slog.Logger, cfg Config) (a *App, err error) {
	a = &App{
		log: log,
	}

	creds, err := credential.Select(log, credential.Options{
		OpenAIKey: cfg.OpenAIKey,
		SearchKey: cfg.SearchKey,
		TenantID:  cfg.TenantID,
	})
	if err != nil {
		return nil, err
	}

	var crm calls.CRM
	if cfg.D365.TenantID != "" {
		c, err := d365.New(log, cfg.D365)
		if err != nil {
			log.Error("D365 setup failed", slog.Any("error", err))
		} else {
			log.Info("D365 integration enabled")
			crm = c
			a.features.D365 = true
		}
	} else {
		log.Warn("D365 credentials not found")
	}

	voice := cfg.Voice
	if cfg.Profile.Voice != "" {
		voice = cfg.Profile.Voice
	}
	a.RT, err = rtmt.New(log, cfg.OpenAIEndpoint, cfg.OpenAIDeployment, creds.OpenAI, voice)
	if err != nil {
		return nil, fmt.Errorf("failed to create realtime middle tier: %w", err)
	}
	a.RT.SystemMessage = DefaultSystemMessage
	if cfg.Profile.SystemMessage != "" {
		a.RT.SystemMessage = cfg.Profile.SystemMessage
	}
	a.RT.Temperature = cfg.Profile.Temperature
	a.RT.MaxTokens = cfg.Profile.MaxTokens

	sc, err := search.New(search.Config{
		Endpoint:              cfg.SearchEndpoint,
		Index:                 cfg.SearchIndex,
		SemanticConfiguration: cfg.SemanticConfiguration,
		Fields:                cfg.Fields,
		UseVectorQuery:        cfg.UseVectorQuery,
	}, creds.Search)
	if err != nil {
		return nil, fmt.Errorf("failed to create search client: %w", err)
	}
	ragtools.Attach(a.RT, sc)
	log.Info("realtime tools attached", slog.Any("tools", a.RT.ToolNames()))

	mux := http.NewServeMux()
	mux.Handle("GET /realtime", a.RT)

	store := cfg.Store
	if store == nil {
		store = calls.NewMemoryStore()
	}
	if cfg.ACSConnectionString != "" {
		if err = a.mountACS(mux, cfg, crm, store); err != nil {
			log.Error("ACS setup failed", slog.Any("error", err))
		} else {
			a.features.ACS = true
		}
	} else {
		log.Warn("ACS_CONNECTION_STRING not found")
	}

	staticFS, err := fs.Sub(static, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to open static files: %w", err)
	}
	mux.Handle("GET /", http.FileServerFS(staticFS))
	mux.Handle("GET /metrics", promhttp.Handler())

	a.handler = cors.AllowAll().Handler(mux)
	return a, nil
}

func (a *App) mountACS(mux *http.ServeMux, cfg Config, crm calls.CRM, store calls.Store) error {
	cs, err := acs.ParseConnectionString(cfg.ACSConnectionString)
	if err != nil {
		return err
	}
	appURL := cfg.AppURL
	if appURL == "" {
		appURL = DefaultAppURL
	}
	ac := acs.New(a.log, cs)
	ich, err := incomingcallpost.New(a.log, ac, crm, store, appURL)
	if err != nil {
		return err
	}
	mux.Handle("POST /api/incomingCall", ich)
	mux.Handle("POST /api/callbacks", callbackspost.New(a.log, crm, store, ac))
	mux.Handle("GET /api/media", mediaget.New(a.log, a.RT))
	if len(cfg.APIKeys) > 0 {
		mux.Handle("GET /api/calls", auth.New(cfg.APIKeys, callsget.New(a.log, store)))
	} else {
		a.log.Warn("API_KEYS_FILE not set, the call log is not served")
	}
	a.log.Info("ACS call handling enabled",
		slog.String("incoming_call_url", appURL+"/api/incomingCall"),
		slog.String("callbacks_url", appURL+"/api/callbacks"),
		slog.String("media_url", ich.MediaURL()))
	return nil
}
