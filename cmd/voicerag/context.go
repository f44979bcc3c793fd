package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/a-h/voicerag/client"
	"github.com/a-h/voicerag/models"
)

type ContextCommand struct {
	LawyerURL    string `help:"The URL of the AI Lawyer server." env:"LAWYER_URL" default:"http://localhost:8501"`
	LawyerAPIKey string `help:"The API key for the AI Lawyer server." env:"LAWYER_API_KEY" default:""`
	PDF          string `help:"The PDF to search." type:"existingfile" xor:"doc" required:""`
	DocumentID   string `help:"The ID of a PDF that has already been uploaded." xor:"doc" required:""`
	Text         string `help:"The text to send." required:""`
	Pretty       bool   `help:"Pretty print the JSON output." default:"true"`
	LogLevel     string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c ContextCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	lc := client.New(c.LawyerURL, c.LawyerAPIKey)
	id, err := documentID(ctx, log, lc, c.PDF, c.DocumentID)
	if err != nil {
		return err
	}
	resp, err := lc.ContextPost(ctx, models.ContextPostRequest{
		DocumentID: id,
		Text:       c.Text,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	if c.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(resp)
}
