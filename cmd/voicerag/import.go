package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/a-h/voicerag/client"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

type ImportCommand struct {
	LawyerURL    string `help:"The URL of the AI Lawyer server." env:"LAWYER_URL" default:"http://localhost:8501"`
	LawyerAPIKey string `help:"The API key for the AI Lawyer server." env:"LAWYER_API_KEY" default:""`
	Dir          string `help:"The directory to import PDFs from." type:"existingdir" default:"."`
	Pattern      string `help:"A glob pattern that file paths, relative to the directory, must match." env:"PATTERN" default:"**.pdf"`
	DryRun       bool   `help:"Do not actually import the documents." env:"DRY_RUN" default:"false"`
	LogLevel     string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

type ImportedDocument struct {
	Path   string `yaml:"path"`
	ID     string `yaml:"id,omitempty"`
	Pages  int    `yaml:"pages,omitempty"`
	Chunks int    `yaml:"chunks,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

func (c ImportCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)

	paths, err := findFiles(os.DirFS(c.Dir), c.Pattern)
	if err != nil {
		return err
	}
	log.Info("found files", slog.Int("count", len(paths)), slog.String("pattern", c.Pattern))

	lc := client.New(c.LawyerURL, c.LawyerAPIKey)
	var imported []ImportedDocument
	var failed int
	for _, path := range paths {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fullPath := filepath.Join(c.Dir, filepath.FromSlash(path))
		if c.DryRun {
			log.Info("skipping document import in dry run mode", slog.String("path", fullPath))
			imported = append(imported, ImportedDocument{Path: fullPath})
			continue
		}
		doc := importFile(ctx, lc, fullPath)
		if doc.Error != "" {
			failed++
			log.Error("failed to import document", slog.String("path", fullPath), slog.String("error", doc.Error))
		} else {
			log.Info("document imported", slog.String("path", fullPath), slog.String("id", doc.ID))
		}
		imported = append(imported, doc)
	}

	if err = yaml.NewEncoder(os.Stdout).Encode(imported); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("failed to import %d of %d documents", failed, len(paths))
	}
	return nil
}

func importFile(ctx context.Context, lc client.Client, path string) (doc ImportedDocument) {
	doc.Path = path
	f, err := os.Open(path)
	if err != nil {
		doc.Error = err.Error()
		return doc
	}
	defer f.Close()
	resp, err := lc.DocumentsPost(ctx, path, f)
	if err != nil {
		doc.Error = err.Error()
		return doc
	}
	doc.ID = resp.ID
	doc.Pages = resp.Pages
	doc.Chunks = resp.Chunks
	return doc
}

// findFiles returns the sorted, slash separated paths of regular files in fsys that match the
// glob pattern. In the pattern, * does not cross directories, while ** does.
func findFiles(fsys fs.FS, pattern string) (paths []string, err error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if g.Match(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	slices.Sort(paths)
	return paths, nil
}
