// Package api exposes the account and password reset flows over HTTP.
package api

import (
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Options configures the middleware stack built by Wrap.
type Options struct {
	AllowedOrigins []string
	// AccessLog receives Apache combined log lines. Nil disables it.
	AccessLog io.Writer
	// PrintStack logs the goroutine stack of recovered panics.
	PrintStack bool
}

func NewRouter(svc Service) *mux.Router {
	h := &handler{svc: svc}

	r := mux.NewRouter()
	r.Use(requestID)

	r.HandleFunc("/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/resetpassword", h.requestReset).Methods(http.MethodGet)
	r.HandleFunc("/validatetoken", h.validateToken).Methods(http.MethodGet)
	r.HandleFunc("/updatepassword", h.updatePassword).Methods(http.MethodPut)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	account := r.PathPrefix("/account").Subrouter()
	account.Use(bearer(svc))
	account.HandleFunc("/{username}", h.account).Methods(http.MethodGet)
	account.HandleFunc("/{username}", h.updateAccount).Methods(http.MethodPut)

	return r
}

// Wrap adds CORS, panic recovery and access logging around h.
func Wrap(h http.Handler, opts Options) http.Handler {
	h = handlers.CORS(
		handlers.AllowedOrigins(opts.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
		handlers.ExposedHeaders([]string{requestIDHeader}),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(opts.PrintStack),
	)(h)
	if opts.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(opts.AccessLog, h)
	}
	return h
}
