package httpapi

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/zakariya2002/autisme-connect-sub000/internal/calendar"
)

func (h *Handler) countdown(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.appointments.Countdown(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

// countdownStream pushes one server-sent event per second until the session
// duration has elapsed or the client goes away.
func (h *Handler) countdownStream(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	frames, err := h.appointments.WatchCountdown(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	controller := http.NewResponseController(w)
	_ = controller.Flush()

	for frame := range frames {
		payload, err := json.Marshal(frame)
		if err != nil {
			h.logger.Error("Failed to encode countdown frame", zap.Int64("appointment_id", id), zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "event: countdown\ndata: %s\n\n", payload); err != nil {
			return
		}
		_ = controller.Flush()
	}
}

func (h *Handler) calendar(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	event, err := h.appointments.Calendar(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="appointment-%d.ics"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(calendar.Render(event)))
}
