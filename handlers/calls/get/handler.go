package get

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/a-h/respond"
	"github.com/a-h/voicerag/calls"
	"github.com/a-h/voicerag/models"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

func New(log *slog.Logger, store calls.Store) Handler {
	return Handler{
		log:   log,
		store: store,
	}
}

// Handler lists the most recently updated calls.
type Handler struct {
	log   *slog.Logger
	store calls.Store
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		var err error
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 || limit > MaxLimit {
			respond.WithError(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
	}

	list, err := h.store.CallList(r.Context(), limit)
	if err != nil {
		h.log.Error("failed to list calls", slog.Any("error", err))
		respond.WithError(w, "failed to list calls", http.StatusInternalServerError)
		return
	}

	resp := models.CallsGetResponse{
		Calls: make([]models.Call, len(list)),
	}
	for i, c := range list {
		resp.Calls[i] = models.Call{
			ID:            c.ID,
			CallerID:      c.CallerID,
			ContactID:     c.ContactID,
			ContactName:   c.ContactName,
			Status:        string(c.Status),
			CreatedAt:     c.CreatedAt,
			LastUpdatedAt: c.LastUpdatedAt,
		}
	}
	respond.WithJSON(w, resp, http.StatusOK)
}
