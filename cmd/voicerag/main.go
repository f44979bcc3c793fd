package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

type CLI struct {
	Serve   ServeCommand   `cmd:"serve" help:"Start the voice RAG assistant server."`
	Lawyer  LawyerCommand  `cmd:"lawyer" help:"Start the AI Lawyer server."`
	Ask     AskCommand     `cmd:"ask" help:"Upload a PDF to the AI Lawyer and ask a question about it."`
	Context ContextCommand `cmd:"context" help:"Get the chunks of an uploaded PDF that are most similar to a piece of text."`
	Chat    ChatCommand    `cmd:"chat" help:"Chat with the AI Lawyer about a PDF."`
	Import  ImportCommand  `cmd:"import" help:"Upload a directory of PDFs to the AI Lawyer."`
	Version VersionCommand `cmd:"version" help:"Print the version of voicerag."`
}

func main() {
	// Outside production, settings can be kept in a .env file.
	var loadedEnv bool
	if os.Getenv("RUNNING_IN_PRODUCTION") == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			getLogger("error").Error("failed to load .env file", slog.Any("error", err))
			os.Exit(1)
		}
		loadedEnv = true
	}

	var cli CLI
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	kctx := kong.Parse(&cli, kong.UsageOnError(), kong.BindTo(ctx, (*context.Context)(nil)))
	if loadedEnv && kctx.Command() == "serve" {
		getLogger(cli.Serve.LogLevel).Info("running in development mode, loading from .env file")
	}
	if err := kctx.Run(); err != nil {
		log := getLogger("error")
		log.Error("error", slog.Any("error", err))
		os.Exit(1)
	}
}

func getLogger(level string) *slog.Logger {
	ll := slog.LevelInfo
	switch level {
	case "debug":
		ll = slog.LevelDebug
	case "info":
		ll = slog.LevelInfo
	case "warn":
		ll = slog.LevelWarn
	case "error":
		ll = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: ll,
	}))
}
