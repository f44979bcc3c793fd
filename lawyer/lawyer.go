// Package lawyer answers questions about an uploaded PDF, using only the text of that PDF.
package lawyer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/a-h/voicerag/metrics"
	"github.com/a-h/voicerag/vectorindex"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

const (
	DefaultDirectory      = "pdfs"
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultChatModel      = "deepseek-r1-distill-llama-70b"
	GroqBaseURL           = "https://api.groq.com/openai/v1"
	DefaultNumDocuments   = 4
)

// DefaultPrompt is a Go template with question and context fields.
const DefaultPrompt = `Use the information below to answer the user's legal question.
If the answer is not in the context, say "I don't know".
Don't make up answers or go beyond the context.

Question: {{.question}}
Context: {{.context}}
Answer:
`

var ErrEmptyQuestion = errors.New("lawyer: question is empty")

// EmbeddingModel returns an Ollama embedder.
func EmbeddingModel(ollamaURL, model string, httpClient *http.Client) (embeddings.Embedder, error) {
	ec, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithHTTPClient(httpClient),
		ollama.WithServerURL(ollamaURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	emb, err := embeddings.NewEmbedder(ec)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return emb, nil
}

// NewLLM returns a chat model for an OpenAI compatible API, such as Groq.
func NewLLM(apiKey, model, baseURL string, httpClient *http.Client) (llms.Model, error) {
	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithBaseURL(baseURL),
		openai.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM: %w", err)
	}
	return llm, nil
}

type Config struct {
	// Directory that uploaded PDFs are saved to.
	Directory string
	// NumDocuments is the number of chunks used as context.
	NumDocuments int
	// Prompt template, see DefaultPrompt.
	Prompt string
}

func New(log *slog.Logger, embedder embeddings.Embedder, llm llms.Model, cfg Config) (*Pipeline, error) {
	if cfg.Directory == "" {
		cfg.Directory = DefaultDirectory
	}
	if cfg.NumDocuments <= 0 {
		cfg.NumDocuments = DefaultNumDocuments
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	prompt := prompts.NewPromptTemplate(cfg.Prompt, []string{"question", "context"})
	if _, err := prompt.Format(map[string]any{"question": "hello", "context": "world"}); err != nil {
		return nil, fmt.Errorf("invalid prompt template: %w", err)
	}
	return &Pipeline{
		log:          log,
		embedder:     embedder,
		llm:          llm,
		prompt:       prompt,
		directory:    cfg.Directory,
		numDocuments: cfg.NumDocuments,
	}, nil
}

type Pipeline struct {
	log          *slog.Logger
	embedder     embeddings.Embedder
	llm          llms.Model
	prompt       prompts.PromptTemplate
	directory    string
	numDocuments int
}

// Indexed is an uploaded PDF that is ready to be queried.
type Indexed struct {
	// Owner is the user that uploaded the PDF, if authentication is enabled.
	Owner  string
	Name   string
	Path   string
	Pages  int
	Chunks int
	Index  *vectorindex.Index
}

// CreateIndexFromUploadedPDF saves, loads, splits and embeds an uploaded PDF.
func (p *Pipeline) CreateIndexFromUploadedPDF(ctx context.Context, name string, r io.Reader) (doc Indexed, err error) {
	start := time.Now()
	doc.Path, doc.Pages, err = UploadPDF(p.directory, name, r)
	if err != nil {
		return doc, err
	}
	doc.Name = name
	p.log.Debug("uploaded PDF", slog.String("path", doc.Path), slog.Int("pages", doc.Pages))
	pages, err := LoadPDF(ctx, doc.Path)
	if err != nil {
		return doc, err
	}
	chunks, err := CreateChunks(pages)
	if err != nil {
		return doc, err
	}
	doc.Chunks = len(chunks)
	doc.Index, err = vectorindex.FromDocuments(ctx, chunks, p.embedder)
	if err != nil {
		return doc, fmt.Errorf("lawyer: failed to index PDF: %w", err)
	}
	metrics.LawyerIndexDuration.Observe(time.Since(start).Seconds())
	p.log.Info("indexed PDF", slog.String("path", doc.Path), slog.Int("pages", doc.Pages), slog.Int("chunks", doc.Chunks))
	return doc, nil
}

// RetrieveDocs returns the chunks most similar to the query.
func RetrieveDocs(ctx context.Context, query string, store vectorstores.VectorStore, numDocuments int) ([]schema.Document, error) {
	docs, err := store.SimilaritySearch(ctx, query, numDocuments)
	if err != nil {
		return nil, fmt.Errorf("lawyer: failed to retrieve documents: %w", err)
	}
	return docs, nil
}

// GetContext joins the content of docs with blank lines.
func GetContext(docs []schema.Document) string {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}
	return strings.Join(texts, "\n\n")
}

// Retrieve returns the context chunks for a question.
func (p *Pipeline) Retrieve(ctx context.Context, store vectorstores.VectorStore, question string) ([]schema.Document, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	return RetrieveDocs(ctx, question, store, p.numDocuments)
}

func (p *Pipeline) buildPrompt(ctx context.Context, store vectorstores.VectorStore, question string) (string, error) {
	docs, err := p.Retrieve(ctx, store, question)
	if err != nil {
		return "", err
	}
	p.log.Debug("retrieved context", slog.Int("docs", len(docs)))
	prompt, err := p.prompt.Format(map[string]any{
		"question": question,
		"context":  GetContext(docs),
	})
	if err != nil {
		return "", fmt.Errorf("lawyer: failed to format prompt: %w", err)
	}
	return prompt, nil
}

// AnswerQuery answers the question from the content of store.
func (p *Pipeline) AnswerQuery(ctx context.Context, store vectorstores.VectorStore, question string) (answer string, err error) {
	defer func() { countQuery(err) }()
	prompt, err := p.buildPrompt(ctx, store, question)
	if err != nil {
		return "", err
	}
	answer, err = llms.GenerateFromSinglePrompt(ctx, p.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("lawyer: failed to generate answer: %w", err)
	}
	return StripReasoning(answer), nil
}

// AnswerQueryStream is AnswerQuery, but passes the answer to f as it is generated.
func (p *Pipeline) AnswerQueryStream(ctx context.Context, store vectorstores.VectorStore, question string, f func(ctx context.Context, chunk []byte) error) (err error) {
	return p.ChatStream(ctx, store, nil, question, f)
}

// ChatStream answers a follow-up question. The history is passed to the model ahead of the
// question, which is sent with its context in the same prompt as AnswerQuery.
func (p *Pipeline) ChatStream(ctx context.Context, store vectorstores.VectorStore, history []llms.MessageContent, question string, f func(ctx context.Context, chunk []byte) error) (err error) {
	defer func() { countQuery(err) }()
	prompt, err := p.buildPrompt(ctx, store, question)
	if err != nil {
		return err
	}
	msgs := append(slices.Clone(history), llms.TextParts(llms.ChatMessageTypeHuman, prompt))
	if _, err = p.llm.GenerateContent(ctx, msgs, llms.WithStreamingFunc(f)); err != nil {
		return fmt.Errorf("lawyer: failed to generate answer: %w", err)
	}
	return nil
}

func countQuery(err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrEmptyQuestion):
		outcome = "invalid"
	case err != nil:
		outcome = "error"
	}
	metrics.LawyerQueries.WithLabelValues(outcome).Inc()
}

var reasoning = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripReasoning removes the <think> blocks that reasoning models emit before the answer.
func StripReasoning(s string) string {
	return strings.TrimSpace(reasoning.ReplaceAllString(s, ""))
}
