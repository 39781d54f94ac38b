package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/zakariya2002/autisme-connect-sub000/internal/apperr"
)

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success          bool      `json:"success"`
	Error            errorBody `json:"error"`
	AttemptsLeft     *int      `json:"attempts_left,omitempty"`
	Locked           bool      `json:"locked,omitempty"`
	HoursRemaining   int       `json:"hours_remaining,omitempty"`
	MinutesRemaining int       `json:"minutes_remaining,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, successResponse{Success: true, Data: data})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindExternalService:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		h.logger.Error("Unhandled error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: errorBody{Code: "internal", Message: "internal server error"},
		})
		return
	}

	if e.Kind == apperr.KindExternalService {
		h.logger.Warn("External service error", zap.String("path", r.URL.Path), zap.Error(err))
	}

	writeJSON(w, statusFor(e.Kind), errorResponse{
		Error:            errorBody{Code: string(e.Kind), Message: e.Error()},
		AttemptsLeft:     e.AttemptsLeft,
		Locked:           e.Locked,
		HoursRemaining:   e.HoursRemaining,
		MinutesRemaining: e.MinutesRemaining,
	})
}

// decode reads a JSON body into dst and runs the struct validation tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid JSON body: %v", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.Validation("field %s failed %s", fe.Field(), describeTag(fe))
		}
		return apperr.Validation("%v", err)
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
}

func pathInt64(r *http.Request, name string) (int64, error) {
	value, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || value <= 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return value, nil
}
