package authbridge

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the deployment settings, loaded from the environment.
type Config struct {
	Addr string `env:"AUTHBRIDGE_ADDR" envDefault:":8080"`

	// ProofMode selects sessions or bearer; see ProofMode.
	ProofMode ProofMode `env:"AUTHBRIDGE_PROOF_MODE" envDefault:"sessions"`

	SessionTTL time.Duration `env:"AUTHBRIDGE_SESSION_TTL" envDefault:"168h"`
	TokenTTL   time.Duration `env:"AUTHBRIDGE_TOKEN_TTL" envDefault:"30m"`

	// JWTSecret signs bearer tokens; required in bearer mode.
	JWTSecret   string `env:"AUTHBRIDGE_JWT_SECRET"`
	JWTIssuer   string `env:"AUTHBRIDGE_JWT_ISSUER" envDefault:"authbridge"`
	JWTAudience string `env:"AUTHBRIDGE_JWT_AUDIENCE"`

	CookieName   string `env:"AUTHBRIDGE_COOKIE_NAME" envDefault:"session_id"`
	CookieDomain string `env:"AUTHBRIDGE_COOKIE_DOMAIN"`
	CookieSecure bool   `env:"AUTHBRIDGE_COOKIE_SECURE" envDefault:"true"`

	SweepInterval time.Duration `env:"AUTHBRIDGE_SWEEP_INTERVAL" envDefault:"1h"`

	BcryptCost int `env:"AUTHBRIDGE_BCRYPT_COST" envDefault:"0"`

	FirebaseProjectID string `env:"AUTHBRIDGE_FIREBASE_PROJECT_ID"`
	GoogleClientID    string `env:"AUTHBRIDGE_GOOGLE_CLIENT_ID"`

	// DatabaseURL selects the gorm store when set; empty runs on the
	// in-memory store.
	DatabaseURL string `env:"AUTHBRIDGE_DATABASE_URL"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.ProofMode != ProofSessions && cfg.ProofMode != ProofBearer {
		return nil, NewAuthError(ErrCodeInvalidRequest, "proof mode must be sessions or bearer", "AUTHBRIDGE_PROOF_MODE")
	}
	if cfg.ProofMode == ProofBearer && cfg.JWTSecret == "" {
		return nil, NewAuthError(ErrCodeInvalidRequest, "bearer mode requires a jwt secret", "AUTHBRIDGE_JWT_SECRET")
	}
	return &cfg, nil
}
