package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zakariya2002/autisme-connect-sub000/internal/apperr"
	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

const (
	headerActorRole  = "X-Actor-Role"
	headerActorID    = "X-Actor-ID"
	headerSupportKey = "X-Support-Key"
)

type contextKey string

const actorKey contextKey = "actor"

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		if status >= http.StatusInternalServerError {
			h.logger.Error("HTTP request", fields...)
			return
		}
		h.logger.Info("HTTP request", fields...)
	})
}

// requireActor reads the identity set by the authentication proxy.
func (h *Handler) requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := model.PartyRole(r.Header.Get(headerActorRole))
		if !role.Valid() {
			h.writeError(w, r, apperr.Authorization("missing or unknown %s header", headerActorRole))
			return
		}
		id, err := strconv.ParseInt(r.Header.Get(headerActorID), 10, 64)
		if err != nil || id <= 0 {
			h.writeError(w, r, apperr.Authorization("missing or invalid %s header", headerActorID))
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, model.Actor{Role: role, ID: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(ctx context.Context) model.Actor {
	actor, _ := ctx.Value(actorKey).(model.Actor)
	return actor
}

// requireSupport guards support operations. They are disabled when no key
// is configured.
func (h *Handler) requireSupport(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		given := r.Header.Get(headerSupportKey)
		if h.opts.SupportAPIKey == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.opts.SupportAPIKey)) != 1 {
			h.writeError(w, r, apperr.Authorization("support access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
