package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/a-h/voicerag/auth"
	askpost "github.com/a-h/voicerag/handlers/ask/post"
	chatpost "github.com/a-h/voicerag/handlers/chat/post"
	contextpost "github.com/a-h/voicerag/handlers/context/post"
	documentspost "github.com/a-h/voicerag/handlers/documents/post"
	homeget "github.com/a-h/voicerag/handlers/home/get"
	homepost "github.com/a-h/voicerag/handlers/home/post"
	"github.com/a-h/voicerag/lawyer"
	"github.com/a-h/voicerag/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

type LawyerCommand struct {
	OllamaURL       string  `help:"The URL of the Ollama server." env:"OLLAMA_URL" default:"http://127.0.0.1:11434/"`
	EmbeddingModel  string  `help:"The model to use for embeddings." env:"EMBEDDING_MODEL" default:"nomic-embed-text"`
	GroqAPIKey      string  `help:"The Groq API key." env:"GROQ_API_KEY" required:""`
	GroqURL         string  `help:"The URL of the OpenAI compatible chat API." env:"GROQ_URL" default:"https://api.groq.com/openai/v1"`
	ChatModel       string  `help:"The model to answer questions with." env:"CHAT_MODEL" default:"deepseek-r1-distill-llama-70b"`
	Prompt          string  `help:"A file containing the prompt template, with {{.question}} and {{.context}} fields." env:"LAWYER_PROMPT" default:""`
	PDFDirectory    string  `help:"The directory uploaded PDFs are saved to." env:"PDF_DIRECTORY" default:"pdfs"`
	MaxContextDocs  int     `help:"The number of chunks used as context." env:"MAX_CONTEXT_DOCS" default:"4"`
	LibraryCapacity int     `help:"The number of uploaded PDFs kept for the API." env:"LIBRARY_CAPACITY" default:"32"`
	RateLimit       float64 `help:"The requests per second allowed to the API for each user, 0 to disable." env:"RATE_LIMIT" default:"1"`
	RateLimitBurst  int     `help:"The burst of API requests allowed for each user." env:"RATE_LIMIT_BURST" default:"10"`
	ListenAddr      string  `help:"The address to listen on." env:"LISTEN_ADDR" default:"localhost:8501"`
	TLSCertFile     string  `help:"The TLS certificate file." env:"TLS_CERT_FILE" default:""`
	TLSKeyFile      string  `help:"The TLS key file." env:"TLS_KEY_FILE" default:""`
	APIKeysFile     string  `help:"The file containing a JSON map of API keys to usernames. The API is open if unset." env:"API_KEYS_FILE" default:""`
	LogLevel        string  `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func readFileOrDefault(filename, defaultContent string) (string, error) {
	if filename == "" {
		return defaultContent, nil
	}
	contents, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return string(contents), nil
}

func (c LawyerCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	prompt, err := readFileOrDefault(c.Prompt, lawyer.DefaultPrompt)
	if err != nil {
		return fmt.Errorf("failed to read prompt: %w", err)
	}

	log.Info("creating LLM clients")
	httpClient := &http.Client{}
	emb, err := lawyer.EmbeddingModel(c.OllamaURL, c.EmbeddingModel, httpClient)
	if err != nil {
		return err
	}
	llm, err := lawyer.NewLLM(c.GroqAPIKey, c.ChatModel, c.GroqURL, httpClient)
	if err != nil {
		return err
	}
	pipeline, err := lawyer.New(log, emb, llm, lawyer.Config{
		Directory:    c.PDFDirectory,
		NumDocuments: c.MaxContextDocs,
		Prompt:       prompt,
	})
	if err != nil {
		return err
	}
	library := lawyer.NewLibrary(c.LibraryCapacity)

	api := http.NewServeMux()
	api.Handle("POST /api/documents", documentspost.New(log, pipeline, library))
	api.Handle("POST /api/context", contextpost.New(log, pipeline, library))
	api.Handle("POST /api/ask", askpost.New(log, pipeline, library))
	api.Handle("POST /api/chat", chatpost.New(log, pipeline, library))

	apiKeyToUserName, err := auth.LoadFromFile(c.APIKeysFile)
	if err != nil {
		return fmt.Errorf("failed to load API keys: %w", err)
	}
	if apiKeyToUserName == nil {
		log.Warn("API_KEYS_FILE not set, the API does not require authentication")
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", homeget.New(log))
	mux.Handle("POST /{$}", ratelimit.New(c.RateLimit, c.RateLimitBurst, homepost.New(log, pipeline)))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/api/", auth.Optional(apiKeyToUserName, ratelimit.New(c.RateLimit, c.RateLimitBurst, api)))

	log.Info("Listening", slog.String("addr", c.ListenAddr))
	s := &http.Server{
		Addr:    c.ListenAddr,
		Handler: cors.AllowAll().Handler(mux),
	}
	return listenAndServe(ctx, log, s, c.TLSCertFile, c.TLSKeyFile)
}
