package httpapi

import (
	"context"
	"net/http"

	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
	"github.com/zakariya2002/autisme-connect-sub000/internal/service"
)

type createAppointmentRequest struct {
	FamilyID     int64              `json:"family_id" validate:"required,gt=0"`
	EducatorID   int64              `json:"educator_id" validate:"required,gt=0"`
	ChildID      *int64             `json:"child_id" validate:"omitempty,gt=0"`
	Date         string             `json:"date" validate:"required"`
	StartTime    string             `json:"start_time" validate:"required"`
	EndTime      string             `json:"end_time" validate:"required"`
	LocationType model.LocationType `json:"location_type" validate:"required,oneof=online home office"`
	Address      string             `json:"address" validate:"max=500"`
	Price        int64              `json:"price" validate:"gte=0"`
	Currency     string             `json:"currency" validate:"omitempty,len=3"`
	Notes        string             `json:"notes" validate:"max=2000"`
}

type respondRequest struct {
	Accept *bool  `json:"accept" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

type pinRequest struct {
	Pin string `json:"pin" validate:"required"`
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	a, err := h.appointments.Create(r.Context(), actorFrom(r.Context()), service.CreateAppointmentInput{
		FamilyID:     req.FamilyID,
		EducatorID:   req.EducatorID,
		ChildID:      req.ChildID,
		Date:         req.Date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		LocationType: req.LocationType,
		Address:      req.Address,
		Price:        req.Price,
		Currency:     req.Currency,
		Notes:        req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, a)
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.appointments.Get(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req respondRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.appointments.Respond(r.Context(), actorFrom(r.Context()), id, *req.Accept, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	h.sessionTransition(w, r, h.gate.StartSession)
}

func (h *Handler) completeSession(w http.ResponseWriter, r *http.Request) {
	h.sessionTransition(w, r, h.gate.CompleteSession)
}

type sessionFunc func(ctx context.Context, actor model.Actor, id int64, pin string) (*service.SessionResult, error)

func (h *Handler) sessionTransition(w http.ResponseWriter, r *http.Request, run sessionFunc) {
	id, err := pathInt64(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req pinRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := run(r.Context(), actorFrom(r.Context()), id, req.Pin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.appointments.Cancel(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (h *Handler) reportNoShow(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.appointments.ReportNoShow(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (h *Handler) policy(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	snapshot, err := h.appointments.Policy(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, snapshot)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		if err := h.opts.Health.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
