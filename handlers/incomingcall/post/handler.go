package post

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/a-h/respond"
	"github.com/a-h/voicerag/acs"
	"github.com/a-h/voicerag/calls"
	"github.com/a-h/voicerag/db"
	"github.com/a-h/voicerag/metrics"
	"github.com/a-h/voicerag/models"
	"github.com/google/uuid"
)

// Answerer is implemented by *acs.Client.
type Answerer interface {
	AnswerCall(ctx context.Context, req acs.AnswerCallRequest) (acs.AnswerCallResponse, error)
}

// New creates the incoming call webhook handler. crm may be nil.
func New(log *slog.Logger, answerer Answerer, crm calls.CRM, store calls.Store, appURL string) (h Handler, err error) {
	u, err := url.Parse(appURL)
	if err != nil {
		return h, fmt.Errorf("invalid app URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return h, fmt.Errorf("invalid app URL scheme %q", u.Scheme)
	}
	return Handler{
		log:      log,
		answerer: answerer,
		crm:      crm,
		store:    store,
		appURL:   u,
		now:      time.Now,
	}, nil
}

type Handler struct {
	log      *slog.Logger
	answerer Answerer
	crm      calls.CRM
	store    calls.Store
	appURL   *url.URL
	now      func() time.Time
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var events []models.EventGridEvent
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		h.log.Error("failed to decode body", slog.Any("error", err))
		respond.WithError(w, "failed to decode body", http.StatusBadRequest)
		return
	}

	for _, event := range events {
		metrics.CallEvents.WithLabelValues(event.EventType).Inc()
		switch event.EventType {
		case models.EventTypeSubscriptionValidation:
			var data models.SubscriptionValidationData
			if err := json.Unmarshal(event.Data, &data); err != nil {
				h.log.Error("failed to decode validation event", slog.Any("error", err))
				respond.WithError(w, "failed to decode validation event", http.StatusBadRequest)
				return
			}
			h.log.Info("event grid subscription validated")
			respond.WithJSON(w, models.SubscriptionValidationResponse{ValidationResponse: data.ValidationCode}, http.StatusOK)
			return
		case models.EventTypeIncomingCall:
			var data models.IncomingCallData
			if err := json.Unmarshal(event.Data, &data); err != nil {
				h.log.Error("failed to decode incoming call event", slog.Any("error", err))
				respond.WithError(w, "failed to decode incoming call event", http.StatusBadRequest)
				return
			}
			if err := h.answer(r.Context(), data); err != nil {
				h.log.Error("failed to answer call", slog.String("correlationId", data.CorrelationID), slog.Any("error", err))
				respond.WithError(w, "failed to answer call", http.StatusInternalServerError)
				return
			}
		default:
			h.log.Info("ignoring event", slog.String("eventType", event.EventType))
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h Handler) answer(ctx context.Context, data models.IncomingCallData) (err error) {
	callerID := data.From.Value()
	log := h.log.With(slog.String("callerId", callerID), slog.String("correlationId", data.CorrelationID))
	log.Info("incoming call")

	call := db.Call{
		CallerID:  callerID,
		Status:    db.CallStatusAnswered,
		CreatedAt: h.now(),
	}
	if h.crm != nil && data.From.PhoneNumber != nil {
		contact, ok, err := h.crm.LookupContactByPhone(ctx, callerID)
		if err != nil {
			// The call is still answered without CRM context.
			log.Warn("contact lookup failed", slog.Any("error", err))
		}
		if ok {
			log.Info("caller identified", slog.String("contactId", contact.ID))
			call.ContactID = contact.ID
			call.ContactName = contact.FullName
		}
	}

	resp, err := h.answerer.AnswerCall(ctx, acs.AnswerCallRequest{
		IncomingCallContext:   data.IncomingCallContext,
		CallbackURI:           h.CallbackURL(callerID),
		OperationContext:      uuid.NewString(),
		MediaStreamingOptions: acs.NewBidirectionalMediaStreaming(h.MediaURL()),
	})
	if err != nil {
		return err
	}
	log.Info("call answered", slog.String("callConnectionId", resp.CallConnectionID))

	call.ID = resp.CallConnectionID
	call.LastUpdatedAt = h.now()
	if err = h.store.CallPutCaller(ctx, call); err != nil {
		return fmt.Errorf("failed to store call: %w", err)
	}
	return nil
}

func (h Handler) CallbackURL(callerID string) string {
	u := *h.appURL
	u.Path = "/api/callbacks"
	q := url.Values{}
	q.Set("callerId", callerID)
	u.RawQuery = q.Encode()
	return u.String()
}

func (h Handler) MediaURL() string {
	u := *h.appURL
	u.Scheme = "wss"
	if h.appURL.Scheme == "http" {
		u.Scheme = "ws"
	}
	u.Path = "/api/media"
	u.RawQuery = ""
	return u.String()
}
