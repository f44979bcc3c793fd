package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/a-h/jsonapi"
	"github.com/a-h/voicerag/credential"
)

const APIVersion = "2024-07-01"

var ErrNoEndpoint = errors.New("search: endpoint is required")
var ErrNoIndex = errors.New("search: index is required")

type Fields struct {
	Identifier string
	Content    string
	Embedding  string
	Title      string
}

type Config struct {
	Endpoint              string
	Index                 string
	SemanticConfiguration string
	Fields                Fields
	UseVectorQuery        bool
	// Top is the number of results returned by Search, defaults to 5.
	Top int
}

func New(cfg Config, cred credential.Credential) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if cfg.Index == "" {
		return nil, ErrNoIndex
	}
	if cfg.Top <= 0 {
		cfg.Top = 5
	}
	cfg.Endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
	return &Client{
		cfg:  cfg,
		cred: cred,
	}, nil
}

// Client queries a single Azure AI Search index.
type Client struct {
	cfg  Config
	cred credential.Credential
}

type Result struct {
	ID      string
	Title   string
	Content string
	Score   float64
}

type searchRequest struct {
	Search                string        `json:"search"`
	Top                   int           `json:"top"`
	Select                string        `json:"select,omitempty"`
	Filter                string        `json:"filter,omitempty"`
	QueryType             string        `json:"queryType,omitempty"`
	SemanticConfiguration string        `json:"semanticConfiguration,omitempty"`
	VectorQueries         []vectorQuery `json:"vectorQueries,omitempty"`
}

type vectorQuery struct {
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	Fields string `json:"fields"`
	K      int    `json:"k"`
}

type searchResponse struct {
	Value []map[string]any `json:"value"`
}

// Search runs a hybrid query. Semantic ranking is used when a semantic configuration is
// set, and a text vector query is added when vector queries are enabled.
func (c *Client) Search(ctx context.Context, query string) (results []Result, err error) {
	req := searchRequest{
		Search: query,
		Top:    c.cfg.Top,
		Select: c.selectFields(),
	}
	if c.cfg.SemanticConfiguration != "" {
		req.QueryType = "semantic"
		req.SemanticConfiguration = c.cfg.SemanticConfiguration
	}
	if c.cfg.UseVectorQuery && c.cfg.Fields.Embedding != "" {
		req.VectorQueries = []vectorQuery{{
			Kind:   "text",
			Text:   query,
			Fields: c.cfg.Fields.Embedding,
			K:      50,
		}}
	}
	return c.search(ctx, req)
}

// Lookup returns the documents with the given identifiers.
func (c *Client) Lookup(ctx context.Context, ids []string) (results []Result, err error) {
	if len(ids) == 0 {
		return nil, nil
	}
	req := searchRequest{
		Search: "*",
		Top:    len(ids),
		Select: c.selectFields(),
		Filter: fmt.Sprintf("search.in(%s, '%s', ',')", c.cfg.Fields.Identifier, strings.Join(ids, ",")),
	}
	return c.search(ctx, req)
}

func (c *Client) selectFields() string {
	var fields []string
	for _, f := range []string{c.cfg.Fields.Identifier, c.cfg.Fields.Title, c.cfg.Fields.Content} {
		if f != "" {
			fields = append(fields, f)
		}
	}
	return strings.Join(fields, ",")
}

func (c *Client) search(ctx context.Context, req searchRequest) (results []Result, err error) {
	url, err := jsonapi.URL(c.cfg.Endpoint).
		Path("indexes", c.cfg.Index, "docs", "search").
		Query(map[string]string{"api-version": APIVersion}).
		String()
	if err != nil {
		return nil, fmt.Errorf("search: failed to create URL: %w", err)
	}
	name, value, err := c.cred.Header(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := jsonapi.Post[searchRequest, searchResponse](ctx, url, req, jsonapi.WithRequestHeader(name, value))
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	results = make([]Result, len(resp.Value))
	for i, v := range resp.Value {
		results[i] = Result{
			ID:      stringField(v, c.cfg.Fields.Identifier),
			Title:   stringField(v, c.cfg.Fields.Title),
			Content: stringField(v, c.cfg.Fields.Content),
		}
		if score, ok := v["@search.score"].(float64); ok {
			results[i].Score = score
		}
	}
	return results, nil
}

func stringField(v map[string]any, name string) string {
	if name == "" {
		return ""
	}
	s, _ := v[name].(string)
	return s
}
