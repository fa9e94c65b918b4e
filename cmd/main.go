package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"

	"moviecatalog/internal/api"
	"moviecatalog/internal/auth"
	"moviecatalog/internal/config"
	"moviecatalog/internal/database"
	"moviecatalog/internal/logging"
	"moviecatalog/internal/mail"
	"moviecatalog/internal/store"
)

func main() {
	cfg, foundDotenv, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format, os.Stdout, map[string]string{"service": "moviecatalog", "env": cfg.Env})
	if !foundDotenv {
		log.Warn().Msg(".env file not found")
	}

	// Create a context for initialization.
	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Mongo.Timeout)
	defer cancel()

	users, client, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Initialization error")
	}
	if client != nil {
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Error().Err(err).Msg("Error disconnecting from DB")
			}
		}()
	}

	mailer, err := newMailer(cfg.Mail)
	if err != nil {
		log.Fatal().Err(err).Msg("Mailer initialization error")
	}
	hasher, err := auth.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Hasher initialization error")
	}

	gw := auth.NewGateway(auth.GatewayConfig{
		Users:       users,
		Hasher:      hasher,
		Tokens:      auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer, cfg.Auth.SessionTTL),
		Resets:      auth.NewResetManager(users, cfg.Auth.ResetTTL),
		Mailer:      mailer,
		ClientURL:   cfg.Mail.ClientURL,
		MailTimeout: cfg.Mail.Timeout,
	})

	accessLog, closeAccessLog, err := openAccessLog(cfg.Log.AccessLogFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open access log")
	}
	defer closeAccessLog()

	srv := &http.Server{
		Handler: api.Wrap(api.NewRouter(gw), api.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AccessLog:      accessLog,
			PrintStack:     !cfg.IsProduction(),
		}),
		Addr:         ":" + cfg.HTTP.Port,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start the server in a goroutine.
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.Store).Str("mail", cfg.Mail.Driver).Msg("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signals for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	gw.Wait()
	log.Info().Msg("Server exiting gracefully.")
}

// openStore returns the configured UserStore. The client is nil for the
// memory driver.
func openStore(ctx context.Context, cfg *config.Config) (store.UserStore, *mongo.Client, error) {
	if cfg.Store == "memory" {
		log.Warn().Msg("Using in-memory user store; accounts are lost on restart")
		return store.NewMemory(), nil, nil
	}
	client, err := database.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Timeout)
	if err != nil {
		return nil, nil, err
	}
	col := database.GetUserCollection(client, cfg.Mongo.Database)
	if err := database.EnsureUserIndexes(ctx, col); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return store.NewMongo(col, cfg.Mongo.Timeout), client, nil
}

func newMailer(cfg config.Mail) (mail.Sender, error) {
	if cfg.Driver == "log" {
		return mail.Log{}, nil
	}
	renderer, err := mail.NewRenderer()
	if err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case "sendgrid":
		return mail.NewSendGrid(cfg.SendGridAPIKey, cfg.FromAddress, cfg.FromName, renderer)
	case "smtp":
		return mail.NewSMTP(cfg.SMTPServer, cfg.SMTPUser, cfg.SMTPPassword, cfg.FromAddress, renderer)
	}
	return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
}

// openAccessLog writes access lines to stdout and, when path is set, to
// that file as well.
func openAccessLog(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return io.MultiWriter(os.Stdout, f), func() { _ = f.Close() }, nil
}
