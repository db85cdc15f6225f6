package impl

import (
	"context"
	"sync"
	"time"

	"chrona/internal/domain"
	"chrona/internal/store"

	"github.com/google/uuid"
)

// memoryStore implements dataStore for tests. WithTx serializes transactions
// under one mutex and restores a snapshot on error, which is close enough to
// the database's behavior for the service logic under test, including the
// consume-once arbitration.
type memoryStore struct {
	mu sync.Mutex

	users    map[uuid.UUID]*domain.User
	devices  map[uuid.UUID]*domain.Device
	kiosks   map[uuid.UUID]*domain.Kiosk
	tokens   map[uuid.UUID]*domain.EphemeralToken
	punches  map[uuid.UUID]*domain.Punch
	secrets  map[uuid.UUID]*domain.TOTPSecret
	codes    map[uuid.UUID]*domain.RecoveryCode
	attempts []*domain.ValidationAttempt
	lockouts map[uuid.UUID]*domain.Lockout
	nonces   map[string]*domain.NonceBlacklistEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:    make(map[uuid.UUID]*domain.User),
		devices:  make(map[uuid.UUID]*domain.Device),
		kiosks:   make(map[uuid.UUID]*domain.Kiosk),
		tokens:   make(map[uuid.UUID]*domain.EphemeralToken),
		punches:  make(map[uuid.UUID]*domain.Punch),
		secrets:  make(map[uuid.UUID]*domain.TOTPSecret),
		codes:    make(map[uuid.UUID]*domain.RecoveryCode),
		lockouts: make(map[uuid.UUID]*domain.Lockout),
		nonces:   make(map[string]*domain.NonceBlacklistEntry),
	}
}

func copyMap[K comparable, V any](src map[K]*V) map[K]*V {
	dst := make(map[K]*V, len(src))
	for k, v := range src {
		cp := *v
		dst[k] = &cp
	}
	return dst
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(tx storeTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := copyMap(m.users)
	devices := copyMap(m.devices)
	kiosks := copyMap(m.kiosks)
	tokens := copyMap(m.tokens)
	punches := copyMap(m.punches)
	secrets := copyMap(m.secrets)
	codes := copyMap(m.codes)
	lockouts := copyMap(m.lockouts)
	nonces := copyMap(m.nonces)
	attempts := append([]*domain.ValidationAttempt(nil), m.attempts...)

	if err := fn(memoryTx{store: m}); err != nil {
		m.users, m.devices, m.kiosks = users, devices, kiosks
		m.tokens, m.punches, m.secrets = tokens, punches, secrets
		m.codes, m.lockouts, m.nonces = codes, lockouts, nonces
		m.attempts = attempts
		return err
	}
	return nil
}

// Seed and inspection helpers for tests.

func (m *memoryStore) addUser(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[uuid.UUID(u.ID)] = &cp
}

func (m *memoryStore) addDevice(d *domain.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.devices[uuid.UUID(d.ID)] = &cp
}

func (m *memoryStore) addKiosk(k *domain.Kiosk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *k
	m.kiosks[uuid.UUID(k.ID)] = &cp
}

func (m *memoryStore) addSecret(s *domain.TOTPSecret) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.secrets[uuid.UUID(s.ID)] = &cp
}

func (m *memoryStore) tokenByJTI(jti uuid.UUID) (*domain.EphemeralToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[jti]
	if !ok {
		return nil, false
	}
	cp := *tok
	return &cp, true
}

func (m *memoryStore) punchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.punches)
}

func (m *memoryStore) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

func (m *memoryStore) hasActiveLockout(userID uuid.UUID, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lock := range m.lockouts {
		if uuid.UUID(lock.UserID) == userID && lock.IsActive && lock.LockedUntil.After(now) {
			return true
		}
	}
	return false
}

func (m *memoryStore) activatedSecretCount(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sec := range m.secrets {
		if uuid.UUID(sec.UserID) == userID && sec.IsActive && sec.IsActivated {
			n++
		}
	}
	return n
}

func (m *memoryStore) unusedCodeCount(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, code := range m.codes {
		if uuid.UUID(code.UserID) == userID && !code.IsUsed {
			n++
		}
	}
	return n
}

type memoryTx struct{ store *memoryStore }

func (m memoryTx) Users() userStore                 { return memoryUsers{m.store} }
func (m memoryTx) Devices() deviceStore             { return memoryDevices{m.store} }
func (m memoryTx) Kiosks() kioskStore               { return memoryKiosks{m.store} }
func (m memoryTx) Tokens() tokenStore               { return memoryTokens{m.store} }
func (m memoryTx) Punches() punchStore              { return memoryPunches{m.store} }
func (m memoryTx) TOTPSecrets() totpSecretStore     { return memorySecrets{m.store} }
func (m memoryTx) RecoveryCodes() recoveryCodeStore { return memoryCodes{m.store} }
func (m memoryTx) Attempts() attemptStore           { return memoryAttempts{m.store} }
func (m memoryTx) Lockouts() lockoutStore           { return memoryLockouts{m.store} }
func (m memoryTx) Nonces() nonceStore               { return memoryNonces{m.store} }

type memoryUsers struct{ s *memoryStore }

func (u memoryUsers) Get(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	usr, ok := u.s.users[userID]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	cp := *usr
	return &cp, nil
}

type memoryDevices struct{ s *memoryStore }

func (d memoryDevices) Get(ctx context.Context, deviceID uuid.UUID) (*domain.Device, error) {
	dev, ok := d.s.devices[deviceID]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	cp := *dev
	return &cp, nil
}

func (d memoryDevices) GetForUser(ctx context.Context, deviceID, userID uuid.UUID) (*domain.Device, error) {
	dev, ok := d.s.devices[deviceID]
	if !ok || uuid.UUID(dev.UserID) != userID {
		return nil, store.ErrRecordNotFound
	}
	cp := *dev
	return &cp, nil
}

func (d memoryDevices) TouchLastSeen(ctx context.Context, deviceID uuid.UUID, at time.Time) error {
	if dev, ok := d.s.devices[deviceID]; ok {
		t := at
		dev.LastSeenAt = &t
	}
	return nil
}

type memoryKiosks struct{ s *memoryStore }

func (k memoryKiosks) Get(ctx context.Context, kioskID uuid.UUID) (*domain.Kiosk, error) {
	kiosk, ok := k.s.kiosks[kioskID]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	cp := *kiosk
	return &cp, nil
}

type memoryTokens struct{ s *memoryStore }

func (t memoryTokens) Create(ctx context.Context, tok *domain.EphemeralToken) error {
	cp := *tok
	t.s.tokens[tok.JTI] = &cp
	return nil
}

func (t memoryTokens) GetByJTI(ctx context.Context, jti uuid.UUID) (*domain.EphemeralToken, error) {
	tok, ok := t.s.tokens[jti]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	cp := *tok
	return &cp, nil
}

func (t memoryTokens) Consume(ctx context.Context, jti uuid.UUID, kioskID domain.KioskID, at time.Time) (bool, error) {
	tok, ok := t.s.tokens[jti]
	if !ok || tok.ConsumedAt != nil {
		return false, nil
	}
	ts := at
	kid := kioskID
	tok.ConsumedAt = &ts
	tok.ConsumedByKioskID = &kid
	return true, nil
}

type memoryPunches struct{ s *memoryStore }

func (p memoryPunches) Create(ctx context.Context, punch *domain.Punch) error {
	cp := *punch
	p.s.punches[uuid.UUID(punch.ID)] = &cp
	return nil
}

type memorySecrets struct{ s *memoryStore }

func (t memorySecrets) Create(ctx context.Context, secret *domain.TOTPSecret) error {
	cp := *secret
	t.s.secrets[uuid.UUID(secret.ID)] = &cp
	return nil
}

func (t memorySecrets) Get(ctx context.Context, id uuid.UUID) (*domain.TOTPSecret, error) {
	sec, ok := t.s.secrets[id]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	cp := *sec
	return &cp, nil
}

func (t memorySecrets) GetActive(ctx context.Context, userID uuid.UUID) (*domain.TOTPSecret, error) {
	for _, sec := range t.s.secrets {
		if uuid.UUID(sec.UserID) == userID && sec.IsActive && sec.IsActivated {
			cp := *sec
			return &cp, nil
		}
	}
	return nil, store.ErrRecordNotFound
}

func (t memorySecrets) Activate(ctx context.Context, id uuid.UUID, at time.Time) error {
	if sec, ok := t.s.secrets[id]; ok && !sec.IsActivated {
		ts := at
		sec.IsActivated = true
		sec.ActivatedAt = &ts
		sec.LastUsedAt = &ts
	}
	return nil
}

func (t memorySecrets) Deactivate(ctx context.Context, id uuid.UUID) error {
	if sec, ok := t.s.secrets[id]; ok {
		sec.IsActive = false
	}
	return nil
}

func (t memorySecrets) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	if sec, ok := t.s.secrets[id]; ok {
		ts := at
		sec.LastUsedAt = &ts
	}
	return nil
}

type memoryCodes struct{ s *memoryStore }

func (c memoryCodes) CreateBatch(ctx context.Context, codes []*domain.RecoveryCode) error {
	for _, code := range codes {
		cp := *code
		c.s.codes[code.ID] = &cp
	}
	return nil
}

func (c memoryCodes) ListUnused(ctx context.Context, userID uuid.UUID) ([]*domain.RecoveryCode, error) {
	var out []*domain.RecoveryCode
	for _, code := range c.s.codes {
		if uuid.UUID(code.UserID) == userID && !code.IsUsed {
			cp := *code
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (c memoryCodes) ListAll(ctx context.Context, userID uuid.UUID) ([]*domain.RecoveryCode, error) {
	var out []*domain.RecoveryCode
	for _, code := range c.s.codes {
		if uuid.UUID(code.UserID) == userID {
			cp := *code
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (c memoryCodes) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time, ip string) (bool, error) {
	code, ok := c.s.codes[id]
	if !ok || code.IsUsed {
		return false, nil
	}
	ts := at
	code.IsUsed = true
	code.UsedAt = &ts
	code.UsedFromIP = ip
	return true, nil
}

func (c memoryCodes) DeleteUnused(ctx context.Context, userID, totpSecretID uuid.UUID) (int64, error) {
	var n int64
	for id, code := range c.s.codes {
		if uuid.UUID(code.UserID) == userID && uuid.UUID(code.TOTPSecretID) == totpSecretID && !code.IsUsed {
			delete(c.s.codes, id)
			n++
		}
	}
	return n, nil
}

type memoryAttempts struct{ s *memoryStore }

func (a memoryAttempts) Record(ctx context.Context, attempt *domain.ValidationAttempt) error {
	cp := *attempt
	a.s.attempts = append(a.s.attempts, &cp)
	return nil
}

func (a memoryAttempts) CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	for _, at := range a.s.attempts {
		if uuid.UUID(at.UserID) == userID && !at.AttemptedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (a memoryAttempts) CountFailedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	for _, at := range a.s.attempts {
		if uuid.UUID(at.UserID) == userID && !at.IsSuccess && !at.AttemptedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type memoryLockouts struct{ s *memoryStore }

func (l memoryLockouts) GetActive(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Lockout, error) {
	for _, lock := range l.s.lockouts {
		if uuid.UUID(lock.UserID) == userID && lock.IsActive && lock.LockedUntil.After(now) {
			cp := *lock
			return &cp, nil
		}
	}
	return nil, store.ErrRecordNotFound
}

func (l memoryLockouts) DeactivateAll(ctx context.Context, userID uuid.UUID, at time.Time) error {
	for _, lock := range l.s.lockouts {
		if uuid.UUID(lock.UserID) == userID && lock.IsActive {
			ts := at
			lock.IsActive = false
			lock.ReleasedAt = &ts
			lock.ReleasedBy = "system"
		}
	}
	return nil
}

func (l memoryLockouts) Create(ctx context.Context, lockout *domain.Lockout) error {
	cp := *lockout
	l.s.lockouts[lockout.ID] = &cp
	return nil
}

type memoryNonces struct{ s *memoryStore }

func (n memoryNonces) Insert(ctx context.Context, entry *domain.NonceBlacklistEntry) error {
	if _, ok := n.s.nonces[entry.Nonce]; ok {
		return store.ErrDuplicateKey
	}
	cp := *entry
	n.s.nonces[entry.Nonce] = &cp
	return nil
}

func (n memoryNonces) Exists(ctx context.Context, nonce string) (bool, error) {
	_, ok := n.s.nonces[nonce]
	return ok, nil
}

func (n memoryNonces) Cleanup(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	var deleted int64
	for nonce, entry := range n.s.nonces {
		if deleted >= int64(batchSize) {
			break
		}
		if entry.JWTExpiresAt.Before(cutoff) {
			delete(n.s.nonces, nonce)
			deleted++
		}
	}
	return deleted, nil
}
