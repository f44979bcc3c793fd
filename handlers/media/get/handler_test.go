package get

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/a-h/voicerag/rtmt"
	"nhooyr.io/websocket"
)

type fakeServer struct {
	first chan []byte
}

func (f fakeServer) Serve(ctx context.Context, client rtmt.Conn) error {
	msg, err := client.Read(ctx)
	if err != nil {
		return err
	}
	f.first <- msg
	return client.Write(ctx, []byte(`{"type":"response.audio.delta","delta":"AAAA"}`))
}

func TestHandler(t *testing.T) {
	fs := fakeServer{first: make(chan []byte, 1)}
	s := httptest.NewServer(New(slog.New(slog.NewTextHandler(io.Discard, nil)), fs))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(s.URL, "http"), nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	_, msg, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if expected := `{"kind":"AudioData","audioData":{"data":"AAAA"}}`; string(msg) != expected {
		t.Errorf("expected %s, got %s", expected, msg)
	}
	select {
	case first := <-fs.first:
		if !strings.Contains(string(first), `"session.update"`) {
			t.Errorf("expected the relay to start with a session update, got %s", first)
		}
	case <-ctx.Done():
		t.Fatal("timed out")
	}
}
