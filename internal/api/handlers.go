package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"moviecatalog/internal/auth"
	"moviecatalog/internal/models"
)

const maxBodyBytes = 1 << 20

// Service is the part of *auth.Gateway the HTTP layer needs.
type Service interface {
	Login(ctx context.Context, username, password string) (*models.User, string, error)
	Register(ctx context.Context, in auth.Registration) (*models.User, string, error)
	RequestReset(ctx context.Context, searchTerm string) error
	ValidateResetToken(ctx context.Context, userID, secret string) (*models.User, error)
	ApplyNewPassword(ctx context.Context, username, secret, newPassword string) (*models.User, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
	Account(ctx context.Context, caller *models.User, username string) (*models.User, error)
	UpdateAccount(ctx context.Context, caller *models.User, username string, in auth.AccountUpdate) (*models.User, error)
	Ping(ctx context.Context) error
}

type handler struct {
	svc Service
}

type sessionResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// decode reads a JSON body into dst. An empty body leaves dst untouched, so
// GET endpoints can fall back to query parameters.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	zerolog.Ctx(r.Context()).Debug().Err(err).Msg("Malformed request body")
	writeMessage(w, http.StatusBadRequest, "Invalid request payload")
	return false
}

func orQuery(r *http.Request, value, key string) string {
	if value != "" {
		return value
	}
	return r.URL.Query().Get(key)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string
		Password string
	}
	if !decode(w, r, &req) {
		return
	}
	user, token, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: user, Token: token})
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string
		Password string
		Email    string
		Birthday string
	}
	if !decode(w, r, &req) {
		return
	}
	user, token, err := h.svc.Register(r.Context(), auth.Registration{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Birthday: req.Birthday,
	})
	if errors.Is(err, auth.ErrEmailTaken) {
		writeMessage(w, http.StatusBadRequest, req.Email+" is already registered")
		return
	}
	if errors.Is(err, auth.ErrAlreadyExists) {
		writeMessage(w, http.StatusBadRequest, req.Username+" already exists")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{User: user, Token: token})
}

func (h *handler) requestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SearchTerm string `json:"searchterm"`
	}
	if !decode(w, r, &req) {
		return
	}
	err := h.svc.RequestReset(r.Context(), orQuery(r, req.SearchTerm, "searchterm"))
	if errors.Is(err, auth.ErrNotFound) {
		writeMessage(w, http.StatusBadRequest, msgUserNotFound)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "User found")
}

func (h *handler) validateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userid"`
		Token  string `json:"token"`
	}
	if !decode(w, r, &req) {
		return
	}
	user, err := h.svc.ValidateResetToken(r.Context(), orQuery(r, req.UserID, "userid"), orQuery(r, req.Token, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *handler) updatePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Token    string `json:"token"`
	}
	if !decode(w, r, &req) {
		return
	}
	_, err := h.svc.ApplyNewPassword(r.Context(), req.Username, req.Token, req.Password)
	if errors.Is(err, auth.ErrStorage) {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Password update failed")
		writeMessage(w, http.StatusInternalServerError, "Password could not be reset.")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Password has been reset.")
}

func (h *handler) account(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Account(r.Context(), currentUser(r.Context()), mux.Vars(r)["username"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string
		Email    string
		Birthday string
	}
	if !decode(w, r, &req) {
		return
	}
	user, err := h.svc.UpdateAccount(r.Context(), currentUser(r.Context()), mux.Vars(r)["username"], auth.AccountUpdate{
		Password: req.Password,
		Email:    req.Email,
		Birthday: req.Birthday,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
