package rtmt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/a-h/voicerag/credential"
	"github.com/a-h/voicerag/metrics"
	"nhooyr.io/websocket"
)

const APIVersion = "2024-10-01-preview"

type ToolResultDirection int

const (
	// ToServer results are returned to the model as the function call output.
	ToServer ToolResultDirection = iota
	// ToClient results are sent to the client, the model receives an empty output.
	ToClient
)

type ToolResult struct {
	Text        string
	Destination ToolResultDirection
}

type Tool struct {
	// Schema is the function definition sent to the model in session.update.
	Schema map[string]any
	Target func(ctx context.Context, args json.RawMessage) (ToolResult, error)
}

func New(log *slog.Logger, endpoint, deployment string, cred credential.Credential, voice string) (*RTMiddleTier, error) {
	if endpoint == "" {
		return nil, errors.New("rtmt: endpoint is required")
	}
	if deployment == "" {
		return nil, errors.New("rtmt: deployment is required")
	}
	if voice == "" {
		voice = "alloy"
	}
	return &RTMiddleTier{
		Endpoint:   endpoint,
		Deployment: deployment,
		Credential: cred,
		Voice:      voice,
		APIVersion: APIVersion,
		log:        log,
		tools:      map[string]Tool{},
	}, nil
}

// RTMiddleTier relays between a client and the Azure OpenAI realtime API. It owns the
// session configuration and executes tools on the model's behalf.
type RTMiddleTier struct {
	Endpoint      string
	Deployment    string
	Credential    credential.Credential
	Voice         string
	SystemMessage string
	Temperature   *float64
	MaxTokens     *int
	DisableAudio  *bool
	APIVersion    string

	log   *slog.Logger
	tools map[string]Tool
}

func (rt *RTMiddleTier) AddTool(name string, t Tool) {
	rt.tools[name] = t
}

func (rt *RTMiddleTier) ToolNames() (names []string) {
	for name := range rt.tools {
		names = append(names, name)
	}
	return names
}

func (rt *RTMiddleTier) ServerURL() (string, error) {
	u, err := url.Parse(rt.Endpoint)
	if err != nil {
		return "", fmt.Errorf("rtmt: failed to parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("rtmt: unsupported endpoint scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/openai/realtime"
	q := url.Values{}
	q.Set("api-version", rt.APIVersion)
	q.Set("deployment", rt.Deployment)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DialServer connects to the realtime API.
func (rt *RTMiddleTier) DialServer(ctx context.Context) (conn *websocket.Conn, err error) {
	u, err := rt.ServerURL()
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	if err = credential.Authorize(ctx, rt.Credential, h); err != nil {
		return nil, fmt.Errorf("rtmt: failed to authorize: %w", err)
	}
	conn, _, err = websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPHeader: h,
	})
	if err != nil {
		return nil, fmt.Errorf("rtmt: failed to dial realtime API: %w", err)
	}
	return conn, nil
}

// Serve dials the realtime API and relays messages for client until either side closes.
func (rt *RTMiddleTier) Serve(ctx context.Context, client Conn) (err error) {
	sc, err := rt.DialServer(ctx)
	if err != nil {
		return err
	}
	defer sc.Close(websocket.StatusNormalClosure, "")
	return rt.NewSession(client, NewWebSocketConn(sc)).Run(ctx)
}

// ServeHTTP accepts the client's websocket and relays it to the realtime API.
func (rt *RTMiddleTier) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		rt.log.Error("failed to accept websocket", slog.Any("error", err))
		return
	}
	metrics.RealtimeSessions.Inc()
	defer metrics.RealtimeSessions.Dec()
	rt.log.Info("realtime session started", slog.String("remoteAddr", r.RemoteAddr))
	if err = rt.Serve(r.Context(), NewWebSocketConn(c)); err != nil && !errors.Is(err, io.EOF) {
		rt.log.Error("realtime session failed", slog.Any("error", err))
		c.Close(websocket.StatusInternalError, "realtime session failed")
		return
	}
	rt.log.Info("realtime session ended", slog.String("remoteAddr", r.RemoteAddr))
	c.Close(websocket.StatusNormalClosure, "")
}
