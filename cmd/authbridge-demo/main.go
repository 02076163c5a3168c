// Command authbridge-demo runs the authentication backend. With
// AUTHBRIDGE_DATABASE_URL set it runs on the gorm stores against postgres;
// without it, on the in-memory stores for local development and smoke
// testing.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rkolluri/authbridge"
	"github.com/rkolluri/authbridge/providers/firebase"
	"github.com/rkolluri/authbridge/providers/google"
	gormstores "github.com/rkolluri/authbridge/stores/gorm"
	"github.com/rkolluri/authbridge/stores/mem"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := authbridge.LoadConfig()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var identities authbridge.IdentityStore
	var sessions authbridge.SessionStore
	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		if err := gormstores.AutoMigrate(db); err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
		identities = gormstores.NewIdentityStore(db)
		sessions = gormstores.NewSessionStore(db)
		logger.Info("using postgres stores")
	} else {
		identities = mem.NewIdentityStore()
		sessions = mem.NewSessionStore()
		logger.Info("using in-memory stores")
	}

	reconciler := &authbridge.Reconciler{
		Store:  identities,
		Hasher: &authbridge.BcryptHasher{Cost: cfg.BcryptCost},
		Logger: logger,
	}

	var issuer authbridge.Issuer
	switch cfg.ProofMode {
	case authbridge.ProofBearer:
		issuer = &authbridge.TokenIssuer{
			SecretKey: cfg.JWTSecret,
			Issuer:    cfg.JWTIssuer,
			Audience:  cfg.JWTAudience,
			TTL:       cfg.TokenTTL,
		}
	default:
		sessionIssuer := &authbridge.SessionIssuer{Store: sessions, TTL: cfg.SessionTTL, Logger: logger}
		sessionIssuer.StartSweeper(ctx, cfg.SweepInterval)
		issuer = sessionIssuer
	}

	api := &authbridge.API{
		Reconciler: reconciler,
		Issuer:     issuer,
		Mode:       cfg.ProofMode,
		Cookie: authbridge.CookieConfig{
			Name:   cfg.CookieName,
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
		},
		Logger: logger,
	}
	if cfg.FirebaseProjectID != "" {
		api.Phone = firebase.NewVerifier(cfg.FirebaseProjectID)
	}
	if cfg.GoogleClientID != "" {
		api.Google = google.NewVerifier(cfg.GoogleClientID)
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Addr, "proof_mode", string(cfg.ProofMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
