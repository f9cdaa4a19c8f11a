package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"connectifyr/internal/directory"
	"connectifyr/internal/models"
	"connectifyr/internal/push"
	"connectifyr/internal/session"

	"go.uber.org/zap"
)

// RequireSameOrigin rejects state-changing requests sent by other sites.
// Requests without an Origin header (curl, same-origin GETs) pass.
func RequireSameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			u, err := url.Parse(origin)
			if err != nil || u.Host != r.Host {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		}
		next(w, r)
	}
}

// RequireBasicAuth guards the admin API.
func RequireBasicAuth(user, password string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), []byte(password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="connectifyr admin"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.auth.Validate(getToken(r)); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func getToken(r *http.Request) string {
	token := r.Header.Get("token")
	if token == "" {
		if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
	}
	return token
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported as 500 without details.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var verr *models.ValidationError
	resp := models.APIResponse{Success: false, Message: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		resp.Message = verr.Message
		resp.Field = verr.Field
	case errors.Is(err, directory.ErrDuplicateEmail):
		status = http.StatusConflict
		resp.Message = "Contact already exists!"
	case errors.Is(err, session.ErrAnotherUser):
		status = http.StatusConflict
		resp.Message = "Someone else is logged in here. Log out first!"
	case errors.Is(err, session.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound), errors.Is(err, push.ErrDisabled):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		status = http.StatusServiceUnavailable
	default:
		logger.Error("request failed", zap.Error(err))
		resp.Message = "Internal error"
	}

	writeJSON(w, logger, status, resp)
}
