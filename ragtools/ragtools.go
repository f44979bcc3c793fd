package ragtools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/a-h/voicerag/rtmt"
	"github.com/a-h/voicerag/search"
)

// Searcher is implemented by *search.Client.
type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
	Lookup(ctx context.Context, ids []string) ([]search.Result, error)
}

var searchSchema = map[string]any{
	"type":        "function",
	"name":        "search",
	"description": "Search the knowledge base. The knowledge base is in English, translate to and from English if needed. Results are formatted as a source name first in square brackets, followed by the text content, and a line with '-----' at the end of each result.",
	"parameters": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query",
			},
		},
		"required":             []string{"query"},
		"additionalProperties": false,
	},
}

var groundingSchema = map[string]any{
	"type":        "function",
	"name":        "report_grounding",
	"description": "Report use of a source from the knowledge base as part of an answer (effectively, cite the source). Sources appear in square brackets before each knowledge base passage. Always use this tool to cite sources when responding with information from the knowledge base.",
	"parameters": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sources": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "string",
				},
				"description": "List of source names from last statement actually used, do not include the ones not used to formulate a response",
			},
		},
		"required":             []string{"sources"},
		"additionalProperties": false,
	},
}

// Attach registers the search and report_grounding tools.
func Attach(rt *rtmt.RTMiddleTier, s Searcher) {
	rt.AddTool("search", rtmt.Tool{
		Schema: searchSchema,
		Target: func(ctx context.Context, args json.RawMessage) (rtmt.ToolResult, error) {
			return Search(ctx, s, args)
		},
	})
	rt.AddTool("report_grounding", rtmt.Tool{
		Schema: groundingSchema,
		Target: func(ctx context.Context, args json.RawMessage) (rtmt.ToolResult, error) {
			return ReportGrounding(ctx, s, args)
		},
	})
}

func Search(ctx context.Context, s Searcher, args json.RawMessage) (result rtmt.ToolResult, err error) {
	var a struct {
		Query string `json:"query"`
	}
	if err = json.Unmarshal(args, &a); err != nil {
		return result, fmt.Errorf("ragtools: invalid search arguments: %w", err)
	}
	results, err := s.Search(ctx, a.Query)
	if err != nil {
		return result, err
	}
	var sb strings.Builder
	for _, r := range results {
		sb.WriteString("[")
		sb.WriteString(r.ID)
		sb.WriteString("]: ")
		sb.WriteString(r.Content)
		sb.WriteString("\n-----\n")
	}
	return rtmt.ToolResult{Text: sb.String(), Destination: rtmt.ToServer}, nil
}

// Identifiers are interpolated into a search filter.
var invalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9_=\-]`)

type GroundingSource struct {
	ChunkID string `json:"chunk_id"`
	Title   string `json:"title"`
	Chunk   string `json:"chunk"`
}

type GroundingResult struct {
	Sources []GroundingSource `json:"sources"`
}

func ReportGrounding(ctx context.Context, s Searcher, args json.RawMessage) (result rtmt.ToolResult, err error) {
	var a struct {
		Sources []string `json:"sources"`
	}
	if err = json.Unmarshal(args, &a); err != nil {
		return result, fmt.Errorf("ragtools: invalid report_grounding arguments: %w", err)
	}
	ids := make([]string, 0, len(a.Sources))
	for _, source := range a.Sources {
		if id := invalidIDChars.ReplaceAllString(source, ""); id != "" {
			ids = append(ids, id)
		}
	}
	results, err := s.Lookup(ctx, ids)
	if err != nil {
		return result, err
	}
	gr := GroundingResult{Sources: make([]GroundingSource, len(results))}
	for i, r := range results {
		gr.Sources[i] = GroundingSource{ChunkID: r.ID, Title: r.Title, Chunk: r.Content}
	}
	b, err := json.Marshal(gr)
	if err != nil {
		return result, err
	}
	return rtmt.ToolResult{Text: string(b), Destination: rtmt.ToClient}, nil
}
