package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zakariya2002/autisme-connect-sub000/internal/apperr"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

type linkPartyRequest struct {
	TelegramChatID int64  `json:"telegram_chat_id" validate:"required"`
	Username       string `json:"username" validate:"max=64"`
	LanguageCode   string `json:"language_code" validate:"max=16"`
}

func pinMode(r *http.Request) (model.PinMode, error) {
	mode := model.PinMode(chi.URLParam(r, "mode"))
	if !mode.Valid() {
		return "", apperr.Validation("unknown PIN mode %q", mode)
	}
	return mode, nil
}

func (h *Handler) pinAttempts(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mode, err := pinMode(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	attempt, err := h.gate.Attempts(r.Context(), id, mode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"appointment_id": attempt.AppointmentID,
		"mode":           attempt.Mode,
		"attempts":       attempt.Attempts,
		"max_attempts":   attempt.MaxAttempts,
		"attempts_left":  attempt.AttemptsLeft(),
		"locked":         attempt.Locked(),
	})
}

func (h *Handler) unlockPin(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mode, err := pinMode(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.gate.UnlockPin(r.Context(), id, mode); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"appointment_id": id, "mode": mode, "unlocked": true})
}

func (h *Handler) linkParty(w http.ResponseWriter, r *http.Request) {
	role := model.PartyRole(chi.URLParam(r, "role"))
	partyID, err := pathInt64(r, "partyID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req linkPartyRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	link := &model.PartyLink{
		Role:           role,
		PartyID:        partyID,
		TelegramChatID: req.TelegramChatID,
		Username:       req.Username,
		LanguageCode:   req.LanguageCode,
	}
	if err := h.appointments.LinkParty(r.Context(), link); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, link)
}
