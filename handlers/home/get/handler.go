package get

import (
	"log/slog"
	"net/http"

	"github.com/a-h/voicerag/handlers/home"
)

func New(log *slog.Logger) Handler {
	return Handler{
		log: log,
	}
}

type Handler struct {
	log *slog.Logger
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := home.Render(w, home.Page{}, http.StatusOK); err != nil {
		h.log.Error("failed to render page", slog.Any("error", err))
	}
}
