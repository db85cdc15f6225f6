package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	Addr        string `env:"ADDR" envDefault:":8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	LogSQL      bool   `env:"LOG_SQL" envDefault:"false"`

	// Punch token signing.
	Issuer        string        `env:"TOKEN_ISSUER" envDefault:"chrona"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"30s"`
	SigningAlg    string        `env:"SIGNING_ALG" envDefault:"ES256"`
	SigningSecret string        `env:"SIGNING_SECRET"`  // HS256 shared secret
	SigningKeyPEM string        `env:"SIGNING_KEY_PEM"` // PEM private key for asymmetric algs

	// Secret vault. The key is base64-encoded, 32 bytes decoded.
	VaultKey   string `env:"VAULT_KEY,required"`
	VaultKeyID string `env:"VAULT_KEY_ID" envDefault:"vault-key-1"`

	// TOTP.
	TOTPIssuer      string        `env:"TOTP_ISSUER" envDefault:"Chrona"`
	ProvisioningTTL time.Duration `env:"TOTP_PROVISIONING_TTL" envDefault:"300s"`
	RotationPeriod  time.Duration `env:"TOTP_ROTATION_PERIOD" envDefault:"2160h"` // 90 days
	VerifyWindow    int           `env:"TOTP_VERIFY_WINDOW" envDefault:"1"`

	// Security guard.
	GuardWindow     time.Duration `env:"GUARD_WINDOW" envDefault:"10m"`
	GuardMaxAttempt int           `env:"GUARD_MAX_ATTEMPTS" envDefault:"5"`
	AlertThreshold  int           `env:"GUARD_ALERT_THRESHOLD" envDefault:"3"`
	LockoutDuration time.Duration `env:"GUARD_LOCKOUT_DURATION" envDefault:"15m"`
	NonceGrace      time.Duration `env:"GUARD_NONCE_GRACE" envDefault:"24h"`

	// Transport-level throttle, requests per IP per minute.
	HTTPRateLimit int `env:"HTTP_RATE_LIMIT" envDefault:"120"`
}

// Load reads .env when present, then parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
