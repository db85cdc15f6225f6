package main

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"os"
	"time"

	"chrona/internal/audit"
	"chrona/internal/config"
	"chrona/internal/observability/logging"
	"chrona/internal/observability/metrics"
	"chrona/internal/observability/middleware"
	"chrona/internal/service/impl"
	"chrona/internal/store"
	httpx "chrona/internal/transport/http"
	"chrona/internal/vault"
	"chrona/pkg/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "chrona",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)
	logger.Info("starting service")

	metrics.MustRegister("chrona")

	gdb, err := db.OpenGorm(db.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	st := store.New(gdb)

	vaultKey, err := base64.StdEncoding.DecodeString(cfg.VaultKey)
	if err != nil {
		logger.Error("vault key is not valid base64", "error", err)
		os.Exit(1)
	}
	v, err := vault.New(vaultKey, cfg.VaultKeyID)
	if err != nil {
		logger.Error("vault init", "error", err)
		os.Exit(1)
	}

	signer, err := impl.NewSigner(cfg.SigningAlg, []byte(cfg.SigningSecret), []byte(cfg.SigningKeyPEM))
	if err != nil {
		logger.Error("signer init", "error", err)
		os.Exit(1)
	}

	sink := audit.NewGormSink(gdb)

	tokens := impl.NewTokenServiceImpl(impl.TokenConfig{
		Issuer: cfg.Issuer,
		TTL:    cfg.TokenTTL,
	}, signer, st)
	punches := impl.NewPunchServiceImpl(st, signer, sink)
	totps := impl.NewTOTPServiceImpl(impl.TOTPConfig{
		Issuer:          cfg.TOTPIssuer,
		ProvisioningTTL: cfg.ProvisioningTTL,
		RotationPeriod:  cfg.RotationPeriod,
		VerifyWindow:    cfg.VerifyWindow,
		QRSize:          256,
		Guard: impl.GuardConfig{
			Window:          cfg.GuardWindow,
			MaxAttempts:     cfg.GuardMaxAttempt,
			AlertThreshold:  cfg.AlertThreshold,
			LockoutDuration: cfg.LockoutDuration,
			NonceGrace:      cfg.NonceGrace,
		},
	}, st, v, sink)
	recoveries := impl.NewRecoveryServiceImpl(st, sink)

	router := httpx.NewRouter(httpx.RouterConfig{RateLimit: cfg.HTTPRateLimit}, tokens, punches, totps, recoveries)
	handler := middleware.WithRequestAndTrace(router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("chrona listening", "addr", srv.Addr, "issuer", cfg.Issuer, "signing_alg", cfg.SigningAlg)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
