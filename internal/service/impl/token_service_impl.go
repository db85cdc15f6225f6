package impl

import (
	"context"
	"log/slog"
	"time"

	"chrona/internal/domain"
	"chrona/internal/dto"
	"chrona/internal/netutil"
	"chrona/internal/observability/metrics"
	"chrona/internal/observability/middleware"
	"chrona/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTypeEphemeralQR is the only token type the punch validator accepts.
const TokenTypeEphemeralQR = "ephemeral_qr"

type TokenConfig struct {
	Issuer string        // e.g. "chrona"
	TTL    time.Duration // e.g. 30 * time.Second
}

// EphemeralClaims is the payload of a single-punch QR credential. The jti
// doubles as the ledger key; the nonce feeds the blacklist.
type EphemeralClaims struct {
	DeviceID  string `json:"did"`
	Nonce     string `json:"nonce"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

type TokenServiceImpl struct {
	cfg    TokenConfig
	signer Signer
	store  dataStore

	now func() time.Time
}

func NewTokenServiceImpl(cfg TokenConfig, signer Signer, st *store.Store) *TokenServiceImpl {
	return &TokenServiceImpl{
		cfg:    cfg,
		signer: signer,
		store:  gormStoreAdapter{store: st},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue mints a short-lived credential for one punch and records the ledger
// row that later arbitrates consumption. Device binding is checked inside
// the same transaction.
func (t *TokenServiceImpl) Issue(ctx context.Context, userID domain.UserID, deviceID domain.DeviceID, ip, ua string) (*dto.IssueTokenResponse, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues(result).Inc()
	}()
	now := t.now()

	jti := uuid.New()
	nonce := uuid.New()
	expiresAt := now.Add(t.cfg.TTL)

	var signed string
	err := t.store.WithTx(ctx, func(tx storeTx) error {
		user, err := tx.Users().Get(ctx, userID)
		if err != nil {
			return domain.ErrUserNotFound
		}
		if user.IsDisabled {
			return domain.ErrUserDisabled
		}

		device, err := tx.Devices().GetForUser(ctx, deviceID, userID)
		if err != nil {
			return domain.ErrDeviceNotFound
		}
		if device.RevokedAt != nil {
			return domain.ErrDeviceRevoked
		}

		claims := EphemeralClaims{
			DeviceID:  uuid.UUID(deviceID).String(),
			Nonce:     nonce.String(),
			TokenType: TokenTypeEphemeralQR,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    t.cfg.Issuer,
				Subject:   uuid.UUID(userID).String(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
				ID:        jti.String(),
			},
		}
		signed, err = jwt.NewWithClaims(t.signer.Method(), claims).SignedString(t.signer.SignKey())
		if err != nil {
			return err
		}

		if err := tx.Tokens().Create(ctx, &domain.EphemeralToken{
			JTI:       jti,
			Nonce:     nonce,
			UserID:    userID,
			DeviceID:  deviceID,
			IssuedAt:  now,
			ExpiresAt: expiresAt,
		}); err != nil {
			return err
		}
		return tx.Devices().TouchLastSeen(ctx, deviceID, now)
	})
	if err != nil {
		result = "failure"
		return nil, err
	}

	slog.Info("issued punch token",
		"jti", jti, "user_id", userID, "device_id", deviceID,
		"ip", normalizeIP(ip), "ua", netutil.TruncateUserAgent(ua),
		"request_id", middleware.RequestIDFromContext(ctx),
		"trace_id", middleware.TraceIDFromContext(ctx))

	return &dto.IssueTokenResponse{
		Token:     signed,
		ExpiresIn: int64(t.cfg.TTL.Seconds()),
		ExpiresAt: expiresAt,
	}, nil
}

// parseEphemeral verifies the signature only. Claims validation is done by
// the caller so that type is checked before expiry, and expiry against the
// caller's clock.
func parseEphemeral(signer Signer, token string) (*EphemeralClaims, error) {
	claims := &EphemeralClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signer.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return signer.VerifyKey(), nil
	}); err != nil {
		return nil, domain.ErrInvalidSignature
	}
	return claims, nil
}

func normalizeIP(ip string) string {
	if normalized, ok := netutil.NormalizeIP(ip); ok {
		return normalized
	}
	return ip
}
