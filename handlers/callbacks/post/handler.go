package post

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/respond"
	"github.com/a-h/voicerag/calls"
	"github.com/a-h/voicerag/d365"
	"github.com/a-h/voicerag/db"
	"github.com/a-h/voicerag/metrics"
	"github.com/a-h/voicerag/models"
)

// HangUper is implemented by *acs.Client.
type HangUper interface {
	HangUp(ctx context.Context, callConnectionID string) error
}

// New creates the call automation callback handler. crm may be nil. Calls whose media stream
// fails are hung up, since the caller can no longer reach the assistant.
func New(log *slog.Logger, crm calls.CRM, store calls.Store, hangUper HangUper) Handler {
	return Handler{
		log:      log,
		crm:      crm,
		store:    store,
		hangUper: hangUper,
		now:      time.Now,
	}
}

type Handler struct {
	log      *slog.Logger
	crm      calls.CRM
	store    calls.Store
	hangUper HangUper
	now      func() time.Time
}

var eventStatus = map[string]db.CallStatus{
	"CallConnected":         db.CallStatusConnected,
	"MediaStreamingStarted": db.CallStatusStreaming,
	"MediaStreamingStopped": db.CallStatusStreamingStopped,
	"MediaStreamingFailed":  db.CallStatusFailed,
	"CallDisconnected":      db.CallStatusDisconnected,
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var events []models.CloudEvent
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		h.log.Error("failed to decode body", slog.Any("error", err))
		respond.WithError(w, "failed to decode body", http.StatusBadRequest)
		return
	}
	callerID := r.URL.Query().Get("callerId")

	for _, event := range events {
		eventType := strings.TrimPrefix(event.Type, "Microsoft.Communication.")
		metrics.CallEvents.WithLabelValues(eventType).Inc()

		var data models.CallEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			h.log.Error("failed to decode event data", slog.String("type", eventType), slog.Any("error", err))
			respond.WithError(w, "failed to decode event data", http.StatusBadRequest)
			return
		}
		log := h.log.With(slog.String("type", eventType), slog.String("callConnectionId", data.CallConnectionID))

		status, ok := eventStatus[eventType]
		if !ok {
			log.Info("call event")
			continue
		}
		if data.ResultInformation != nil && status == db.CallStatusFailed {
			log.Error("media streaming failed", slog.Int("code", data.ResultInformation.Code), slog.Int("subCode", data.ResultInformation.SubCode), slog.String("message", data.ResultInformation.Message))
		} else {
			log.Info("call status changed", slog.String("status", string(status)))
		}
		call, err := calls.UpdateStatus(r.Context(), h.store, data.CallConnectionID, status, h.now())
		if err != nil {
			log.Error("failed to update call", slog.Any("error", err))
			respond.WithError(w, "failed to update call", http.StatusInternalServerError)
			return
		}
		if status == db.CallStatusFailed {
			h.hangUp(r.Context(), log, data.CallConnectionID)
		}
		if status == db.CallStatusDisconnected {
			if call.CallerID == "" {
				call.CallerID = callerID
			}
			h.logPhoneCall(r.Context(), log, call)
		}
	}
	w.WriteHeader(http.StatusOK)
}

// hangUp ends a call. Failures are logged only, ACS ends the call when the caller hangs up.
func (h Handler) hangUp(ctx context.Context, log *slog.Logger, callConnectionID string) {
	if h.hangUper == nil || callConnectionID == "" {
		return
	}
	if err := h.hangUper.HangUp(ctx, callConnectionID); err != nil {
		log.Warn("failed to hang up call", slog.Any("error", err))
		return
	}
	log.Info("call hung up after media streaming failed")
}

// logPhoneCall records the call against the caller in the CRM. Failures are logged only.
func (h Handler) logPhoneCall(ctx context.Context, log *slog.Logger, call db.Call) {
	if h.crm == nil {
		return
	}
	err := h.crm.LogPhoneCall(ctx, d365.PhoneCall{
		Subject:     "Voice assistant call",
		PhoneNumber: call.CallerID,
		Description: fmt.Sprintf("Call %s handled by the voice assistant.", call.ID),
		ContactID:   call.ContactID,
		Duration:    call.LastUpdatedAt.Sub(call.CreatedAt),
	})
	if err != nil {
		log.Warn("failed to log phone call", slog.Any("error", err))
	}
}
