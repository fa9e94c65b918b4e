package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"moviecatalog/internal/auth"
)

const (
	msgInternal       = "Something went wrong, please try again later."
	msgUnauthorized   = "Unauthorized"
	msgBadCredentials = "Sorry, this user's login details cannot be found"
	msgUserNotFound   = "User could not be found"
	msgTokenInvalid   = "Password reset token is invalid or has expired."
	msgForbidden      = "You can only access your own account"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeError maps the auth error taxonomy onto status codes. Anything it
// doesn't recognise is logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": verr.Violations})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeMessage(w, http.StatusBadRequest, msgBadCredentials)
	case errors.Is(err, auth.ErrEmailTaken):
		writeMessage(w, http.StatusBadRequest, "Email is already registered")
	case errors.Is(err, auth.ErrAlreadyExists):
		writeMessage(w, http.StatusBadRequest, "User already exists")
	case errors.Is(err, auth.ErrTokenInvalidOrExpired):
		writeMessage(w, http.StatusUnauthorized, msgTokenInvalid)
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrTokenExpired):
		writeMessage(w, http.StatusUnauthorized, msgUnauthorized)
	case errors.Is(err, auth.ErrForbidden):
		writeMessage(w, http.StatusForbidden, msgForbidden)
	case errors.Is(err, auth.ErrNotFound):
		writeMessage(w, http.StatusNotFound, msgUserNotFound)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeMessage(w, http.StatusInternalServerError, msgInternal)
	}
}
