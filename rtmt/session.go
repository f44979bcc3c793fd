package rtmt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/a-h/voicerag/metrics"
	"golang.org/x/sync/errgroup"
)

func (rt *RTMiddleTier) NewSession(client, server Conn) *Session {
	return &Session{
		rt:           rt,
		log:          rt.log,
		client:       &lockedConn{Conn: client},
		server:       &lockedConn{Conn: server},
		toolsPending: map[string]pendingToolCall{},
	}
}

// Session relays one client connection. Tool calls are tracked by call ID from the moment
// the model creates the function call item until the response is done.
type Session struct {
	rt     *RTMiddleTier
	log    *slog.Logger
	client Conn
	server Conn
	// toolsPending is only accessed by the server pump.
	toolsPending map[string]pendingToolCall
}

type pendingToolCall struct {
	PreviousItemID string
}

type lockedConn struct {
	Conn
	m sync.Mutex
}

func (lc *lockedConn) Write(ctx context.Context, msg []byte) error {
	lc.m.Lock()
	defer lc.m.Unlock()
	return lc.Conn.Write(ctx, msg)
}

// Run relays until either side closes. A normal closure returns nil.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.pumpClient(ctx) })
	g.Go(func() error { return s.pumpServer(ctx) })
	err := g.Wait()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Session) pumpClient(ctx context.Context) error {
	for {
		msg, err := s.client.Read(ctx)
		if err != nil {
			return err
		}
		out, err := s.processFromClient(msg)
		if err != nil {
			return fmt.Errorf("rtmt: failed to process client message: %w", err)
		}
		if err = s.server.Write(ctx, out); err != nil {
			return err
		}
	}
}

func (s *Session) pumpServer(ctx context.Context) error {
	for {
		msg, err := s.server.Read(ctx)
		if err != nil {
			return err
		}
		out, err := s.processFromServer(ctx, msg)
		if err != nil {
			return fmt.Errorf("rtmt: failed to process server message: %w", err)
		}
		if out == nil {
			continue
		}
		if err = s.client.Write(ctx, out); err != nil {
			return err
		}
	}
}

type message map[string]any

func (m message) Type() string {
	t, _ := m["type"].(string)
	return t
}

func (m message) Object(key string) map[string]any {
	o, _ := m[key].(map[string]any)
	return o
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func (s *Session) processFromClient(msg []byte) ([]byte, error) {
	var m message
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, err
	}
	if m.Type() != "session.update" {
		return msg, nil
	}
	session := m.Object("session")
	if session == nil {
		session = map[string]any{}
	}
	if s.rt.SystemMessage != "" {
		session["instructions"] = s.rt.SystemMessage
	}
	if s.rt.Temperature != nil {
		session["temperature"] = *s.rt.Temperature
	}
	if s.rt.MaxTokens != nil {
		session["max_response_output_tokens"] = *s.rt.MaxTokens
	}
	if s.rt.DisableAudio != nil && *s.rt.DisableAudio {
		session["modalities"] = []string{"text"}
	}
	session["voice"] = s.rt.Voice
	session["turn_detection"] = map[string]any{"type": "server_vad"}
	session["input_audio_transcription"] = map[string]any{"model": "whisper-1"}
	tools := make([]map[string]any, 0, len(s.rt.tools))
	for _, t := range s.rt.tools {
		tools = append(tools, t.Schema)
	}
	session["tools"] = tools
	session["tool_choice"] = "none"
	if len(tools) > 0 {
		session["tool_choice"] = "auto"
	}
	m["session"] = session
	return json.Marshal(m)
}

// processFromServer returns the message to forward to the client, or nil if the message
// is consumed by the middle tier.
func (s *Session) processFromServer(ctx context.Context, msg []byte) ([]byte, error) {
	var m message
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, err
	}
	switch m.Type() {
	case "session.created":
		session := m.Object("session")
		if session == nil {
			return msg, nil
		}
		// The client must not see the server-side configuration.
		session["instructions"] = ""
		session["tools"] = []any{}
		session["voice"] = s.rt.Voice
		session["tool_choice"] = "none"
		session["max_response_output_tokens"] = nil
		return json.Marshal(m)
	case "response.output_item.added":
		if str(m.Object("item"), "type") == "function_call" {
			return nil, nil
		}
	case "conversation.item.created":
		item := m.Object("item")
		switch str(item, "type") {
		case "function_call":
			callID := str(item, "call_id")
			if _, ok := s.toolsPending[callID]; !ok {
				s.toolsPending[callID] = pendingToolCall{PreviousItemID: str(m, "previous_item_id")}
			}
			return nil, nil
		case "function_call_output":
			return nil, nil
		}
	case "response.function_call_arguments.delta", "response.function_call_arguments.done":
		return nil, nil
	case "response.output_item.done":
		item := m.Object("item")
		if str(item, "type") != "function_call" {
			return msg, nil
		}
		if err := s.callTool(ctx, item); err != nil {
			return nil, err
		}
		return nil, nil
	case "response.done":
		if len(s.toolsPending) > 0 {
			clear(s.toolsPending)
			if err := s.server.Write(ctx, []byte(`{"type":"response.create"}`)); err != nil {
				return nil, err
			}
		}
		response := m.Object("response")
		outputs, _ := response["output"].([]any)
		filtered := make([]any, 0, len(outputs))
		for _, o := range outputs {
			if om, ok := o.(map[string]any); ok && str(om, "type") == "function_call" {
				continue
			}
			filtered = append(filtered, o)
		}
		if len(filtered) == len(outputs) {
			return msg, nil
		}
		response["output"] = filtered
		return json.Marshal(m)
	}
	return msg, nil
}

func (s *Session) callTool(ctx context.Context, item map[string]any) error {
	name := str(item, "name")
	callID := str(item, "call_id")
	log := s.log.With(slog.String("tool", name), slog.String("callID", callID))

	result, err := s.runTool(ctx, name, json.RawMessage(str(item, "arguments")))
	if err != nil {
		log.Error("tool call failed", slog.Any("error", err))
		result = ToolResult{Text: "error: " + err.Error(), Destination: ToServer}
	}

	var output string
	if result.Destination == ToServer {
		output = result.Text
	}
	itemCreate, err := json.Marshal(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	})
	if err != nil {
		return err
	}
	if err = s.server.Write(ctx, itemCreate); err != nil {
		return err
	}
	if result.Destination != ToClient {
		return nil
	}
	toolResponse, err := json.Marshal(map[string]any{
		"type":             "extension.middle_tier_tool_response",
		"previous_item_id": s.toolsPending[callID].PreviousItemID,
		"tool_name":        name,
		"tool_result":      result.Text,
	})
	if err != nil {
		return err
	}
	return s.client.Write(ctx, toolResponse)
}

func (s *Session) runTool(ctx context.Context, name string, args json.RawMessage) (result ToolResult, err error) {
	tool, ok := s.rt.tools[name]
	if !ok {
		metrics.ToolCalls.WithLabelValues(name, "unknown").Inc()
		return result, fmt.Errorf("unknown tool %q", name)
	}
	start := time.Now()
	result, err = tool.Target(ctx, args)
	metrics.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ToolCalls.WithLabelValues(name, outcome).Inc()
	return result, err
}
