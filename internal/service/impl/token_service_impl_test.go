package impl

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"chrona/internal/domain"
	"chrona/internal/observability/metrics"

	"github.com/google/uuid"
)

func TestMain(m *testing.M) {
	metrics.MustRegister("chrona-test")
	os.Exit(m.Run())
}

var testClock = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func testSigner(t *testing.T) Signer {
	t.Helper()
	signer, err := NewSigner("HS256", []byte("0123456789abcdef0123456789abcdef"), nil)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

func newTokenService(st *memoryStore, signer Signer, now time.Time) *TokenServiceImpl {
	return &TokenServiceImpl{
		cfg:    TokenConfig{Issuer: "chrona", TTL: 30 * time.Second},
		signer: signer,
		store:  st,
		now:    func() time.Time { return now },
	}
}

func seedUserAndDevice(st *memoryStore) (*domain.User, *domain.Device) {
	user := &domain.User{ID: uuid.New(), Email: "worker@example.com"}
	device := &domain.Device{ID: uuid.New(), UserID: user.ID, Name: "phone", Platform: "ios"}
	st.addUser(user)
	st.addDevice(device)
	return user, device
}

func TestTokenServiceIssue(t *testing.T) {
	st := newMemoryStore()
	user, device := seedUserAndDevice(st)
	svc := newTokenService(st, testSigner(t), testClock)

	resp, err := svc.Issue(context.Background(), user.ID, device.ID, "10.1.2.3:4455", "unit-test")
	if err != nil {
		t.Fatalf("issue returned error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a signed token")
	}
	if resp.ExpiresIn != 30 {
		t.Fatalf("expires_in = %d, want 30", resp.ExpiresIn)
	}
	if !resp.ExpiresAt.Equal(testClock.Add(30 * time.Second)) {
		t.Fatalf("unexpected expires_at: %v", resp.ExpiresAt)
	}

	claims, err := parseEphemeral(svc.signer, resp.Token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.TokenType != TokenTypeEphemeralQR {
		t.Fatalf("token type = %q", claims.TokenType)
	}
	if claims.Subject != user.ID.String() || claims.DeviceID != device.ID.String() {
		t.Fatalf("claims identity mismatch: %+v", claims)
	}
	if claims.Nonce == "" {
		t.Fatal("expected a nonce claim")
	}

	jti := uuid.MustParse(claims.ID)
	tok, ok := st.tokenByJTI(jti)
	if !ok {
		t.Fatal("ledger row was not created")
	}
	if tok.ConsumedAt != nil {
		t.Fatal("fresh ledger row must be unconsumed")
	}
	if tok.UserID != user.ID || tok.DeviceID != device.ID {
		t.Fatalf("ledger identity mismatch: %+v", tok)
	}
	if tok.Nonce.String() != claims.Nonce {
		t.Fatal("ledger nonce does not match token nonce")
	}
}

func TestTokenServiceIssueRejections(t *testing.T) {
	st := newMemoryStore()
	user, device := seedUserAndDevice(st)

	disabled := &domain.User{ID: uuid.New(), Email: "gone@example.com", IsDisabled: true}
	st.addUser(disabled)
	revokedAt := testClock.Add(-time.Hour)
	revoked := &domain.Device{ID: uuid.New(), UserID: user.ID, RevokedAt: &revokedAt}
	st.addDevice(revoked)

	svc := newTokenService(st, testSigner(t), testClock)
	ctx := context.Background()

	cases := []struct {
		name     string
		userID   domain.UserID
		deviceID domain.DeviceID
		want     error
	}{
		{"unknown user", uuid.New(), device.ID, domain.ErrUserNotFound},
		{"disabled user", disabled.ID, device.ID, domain.ErrUserDisabled},
		{"unknown device", user.ID, uuid.New(), domain.ErrDeviceNotFound},
		{"revoked device", user.ID, revoked.ID, domain.ErrDeviceRevoked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Issue(ctx, tc.userID, tc.deviceID, "", ""); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
