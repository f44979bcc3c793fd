package get

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/a-h/voicerag/metrics"
	"github.com/a-h/voicerag/rtmt"
	"github.com/a-h/voicerag/rtmt/acsmedia"
	"nhooyr.io/websocket"
)

// Server is implemented by *rtmt.RTMiddleTier.
type Server interface {
	Serve(ctx context.Context, client rtmt.Conn) error
}

func New(log *slog.Logger, server Server) Handler {
	return Handler{
		log:    log,
		server: server,
	}
}

// Handler accepts the ACS media stream of an answered call and relays it to the realtime API.
type Handler struct {
	log    *slog.Logger
	server Server
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// ACS does not send an Origin header that matches the host.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error("failed to accept media websocket", slog.Any("error", err))
		return
	}
	metrics.RealtimeSessions.Inc()
	defer metrics.RealtimeSessions.Dec()

	h.log.Info("media stream connected")
	if err = h.server.Serve(r.Context(), acsmedia.New(rtmt.NewWebSocketConn(c))); err != nil {
		h.log.Error("media stream relay failed", slog.Any("error", err))
		c.Close(websocket.StatusInternalError, "relay failed")
		return
	}
	h.log.Info("media stream ended")
	c.Close(websocket.StatusNormalClosure, "")
}
