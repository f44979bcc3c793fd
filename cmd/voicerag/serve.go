package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/voicerag/app"
	"github.com/a-h/voicerag/auth"
	"github.com/a-h/voicerag/calls"
	"github.com/a-h/voicerag/d365"
	"github.com/a-h/voicerag/db"
	"github.com/a-h/voicerag/search"
)

type ServeCommand struct {
	OpenAIEndpoint        string `help:"The Azure OpenAI endpoint." env:"AZURE_OPENAI_ENDPOINT" required:""`
	OpenAIDeployment      string `help:"The Azure OpenAI realtime deployment." env:"AZURE_OPENAI_REALTIME_DEPLOYMENT" required:""`
	OpenAIAPIKey          string `help:"The Azure OpenAI API key. If unset, an Azure credential is used." env:"AZURE_OPENAI_API_KEY" default:""`
	Voice                 string `help:"The voice of the realtime assistant." env:"AZURE_OPENAI_REALTIME_VOICE_CHOICE" default:"alloy"`
	SearchEndpoint        string `help:"The Azure AI Search endpoint." env:"AZURE_SEARCH_ENDPOINT" required:""`
	SearchIndex           string `help:"The Azure AI Search index." env:"AZURE_SEARCH_INDEX" required:""`
	SearchAPIKey          string `help:"The Azure AI Search API key. If unset, an Azure credential is used." env:"AZURE_SEARCH_API_KEY" default:""`
	SemanticConfiguration string `help:"The semantic configuration of the index." env:"AZURE_SEARCH_SEMANTIC_CONFIGURATION" default:"default"`
	IdentifierField       string `help:"The field that identifies a chunk." env:"AZURE_SEARCH_IDENTIFIER_FIELD" default:"chunk_id"`
	ContentField          string `help:"The field that contains the chunk text." env:"AZURE_SEARCH_CONTENT_FIELD" default:"chunk"`
	EmbeddingField        string `help:"The field that contains the chunk embedding." env:"AZURE_SEARCH_EMBEDDING_FIELD" default:"text_vector"`
	TitleField            string `help:"The field that contains the document title." env:"AZURE_SEARCH_TITLE_FIELD" default:"title"`
	UseVectorQuery        bool   `help:"Use a vector query alongside the text query." env:"AZURE_SEARCH_USE_VECTOR_QUERY" default:"true" negatable:""`
	TenantID              string `help:"The Azure tenant to use with the Azure Developer CLI credential." env:"AZURE_TENANT_ID" default:""`
	D365TenantID          string `help:"The Dynamics 365 tenant. Enables D365 when set." env:"D365_TENANT_ID" default:""`
	D365ClientID          string `help:"The Dynamics 365 client ID." env:"D365_CLIENT_ID" default:""`
	D365ClientSecret      string `help:"The Dynamics 365 client secret." env:"D365_CLIENT_SECRET" default:""`
	D365URL               string `help:"The Dynamics 365 organization URL." env:"D365_URL" default:""`
	ACSConnectionString   string `help:"The Azure Communication Services connection string. Enables telephony when set." env:"ACS_CONNECTION_STRING" default:""`
	AppURL                string `help:"The public URL of this server, used for ACS callbacks." env:"APP_URL" default:"https://bizapps-webapp.azurewebsites.net"`
	ProfileFile           string `help:"A YAML file that overrides the assistant's system message and voice." env:"ASSISTANT_PROFILE_FILE" default:""`
	APIKeysFile           string `help:"The file containing a JSON map of API keys to usernames. The call log is served to these users." env:"API_KEYS_FILE" default:""`
	RqliteURL             string `help:"The URL of an rqlite server to store calls in. Calls are kept in memory if unset." env:"RQLITE_URL" default:""`
	Host                  string `help:"The host to listen on." env:"HOST" default:"0.0.0.0"`
	Port                  int    `help:"The port to listen on." env:"PORT" default:"8765"`
	TLSCertFile           string `help:"The TLS certificate file." env:"TLS_CERT_FILE" default:""`
	TLSKeyFile            string `help:"The TLS key file." env:"TLS_KEY_FILE" default:""`
	LogLevel              string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c ServeCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)

	profile, err := app.LoadProfile(c.ProfileFile)
	if err != nil {
		return err
	}

	apiKeyToUserName, err := auth.LoadFromFile(c.APIKeysFile)
	if err != nil {
		return fmt.Errorf("failed to load API keys: %w", err)
	}

	var store calls.Store = calls.NewMemoryStore()
	if c.RqliteURL != "" {
		conn, err := db.Open(log, c.RqliteURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer conn.Close()
		store = db.New(conn)
	}

	a, err := app.New(ctx, log, app.Config{
		OpenAIEndpoint:        c.OpenAIEndpoint,
		OpenAIDeployment:      c.OpenAIDeployment,
		OpenAIKey:             c.OpenAIAPIKey,
		Voice:                 c.Voice,
		SearchEndpoint:        c.SearchEndpoint,
		SearchIndex:           c.SearchIndex,
		SearchKey:             c.SearchAPIKey,
		SemanticConfiguration: c.SemanticConfiguration,
		Fields: search.Fields{
			Identifier: c.IdentifierField,
			Content:    c.ContentField,
			Embedding:  c.EmbeddingField,
			Title:      c.TitleField,
		},
		UseVectorQuery: c.UseVectorQuery,
		TenantID:       c.TenantID,
		D365: d365.Config{
			TenantID:     c.D365TenantID,
			ClientID:     c.D365ClientID,
			ClientSecret: c.D365ClientSecret,
			URL:          c.D365URL,
		},
		ACSConnectionString: c.ACSConnectionString,
		AppURL:              c.AppURL,
		Profile:             profile,
		Store:               store,
		APIKeys:             apiKeyToUserName,
	})
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	log.Info("Listening", slog.String("addr", addr), slog.Any("features", a.Features()))
	s := &http.Server{
		Addr:    addr,
		Handler: a,
	}
	return listenAndServe(ctx, log, s, c.TLSCertFile, c.TLSKeyFile)
}

// listenAndServe serves until ctx is cancelled, then shuts down gracefully.
func listenAndServe(ctx context.Context, log *slog.Logger, s *http.Server, certFile, keyFile string) error {
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shut down", slog.Any("error", err))
		}
	}()
	var err error
	if certFile != "" && keyFile != "" {
		log.Info("Enabling TLS mode")
		var cert tls.Certificate
		cert, err = tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return fmt.Errorf("failed to load cert: %w", err)
		}
		s.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		err = s.ListenAndServeTLS(certFile, keyFile)
	} else {
		err = s.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
