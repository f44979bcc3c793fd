package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/a-h/voicerag/client"
	"github.com/a-h/voicerag/models"
)

type AskCommand struct {
	LawyerURL    string `help:"The URL of the AI Lawyer server." env:"LAWYER_URL" default:"http://localhost:8501"`
	LawyerAPIKey string `help:"The API key for the AI Lawyer server." env:"LAWYER_API_KEY" default:""`
	PDF          string `help:"The PDF to ask about." type:"existingfile" xor:"doc" required:""`
	DocumentID   string `help:"The ID of a PDF that has already been uploaded." xor:"doc" required:""`
	Question     string `help:"The question to ask." short:"q" required:""`
	LogLevel     string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c AskCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	lc := client.New(c.LawyerURL, c.LawyerAPIKey)

	id, err := documentID(ctx, log, lc, c.PDF, c.DocumentID)
	if err != nil {
		return err
	}

	f := func(ctx context.Context, chunk []byte) error {
		_, err := os.Stdout.Write(chunk)
		return err
	}
	if err = lc.AskPost(ctx, models.AskPostRequest{DocumentID: id, Text: c.Question}, f); err != nil {
		return err
	}
	fmt.Println()
	return nil
}

// documentID uploads the PDF at path, unless an ID is provided.
func documentID(ctx context.Context, log *slog.Logger, lc client.Client, path, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()
	resp, err := lc.DocumentsPost(ctx, path, f)
	if err != nil {
		return "", fmt.Errorf("failed to upload PDF: %w", err)
	}
	log.Info("uploaded PDF", slog.String("id", resp.ID), slog.Int("pages", resp.Pages), slog.Int("chunks", resp.Chunks))
	return resp.ID, nil
}
