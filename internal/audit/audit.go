// Package audit emits structured security events. Writes are fire-and-forget:
// a sink failure is logged and never fails the request that produced the
// event.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"chrona/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityHigh    = "high"
)

// Well-known event types.
const (
	EventPunchValidated   = "punch_validated"
	EventReplayDetected   = "replay_detected"
	EventTOTPActivated    = "totp_activated"
	EventTOTPLockout      = "totp_lockout"
	EventTOTPAlert        = "totp_alert_threshold"
	EventRecoveryCodeUsed = "recovery_code_used"
	EventRecoveryRotated  = "recovery_codes_regenerated"
	EventTOTPDeactivated  = "totp_deactivated"
)

type Event struct {
	Type      string
	Severity  string
	UserID    *uuid.UUID
	DeviceID  *uuid.UUID
	KioskID   *uuid.UUID
	Metadata  map[string]any
	IP        string
	UserAgent string
	At        time.Time
}

// Sink receives security events.
type Sink interface {
	Log(ctx context.Context, e Event)
}

// GormSink persists events to the audit_logs table.
type GormSink struct {
	db *gorm.DB
}

func NewGormSink(db *gorm.DB) *GormSink { return &GormSink{db: db} }

func (s *GormSink) Log(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	var data []byte
	if len(e.Metadata) > 0 {
		var err error
		if data, err = json.Marshal(e.Metadata); err != nil {
			slog.Warn("audit metadata marshal failed", "event_type", e.Type, "error", err)
		}
	}
	row := &domain.AuditLog{
		ID:        uuid.New(),
		EventType: e.Type,
		Severity:  e.Severity,
		UserID:    e.UserID,
		DeviceID:  e.DeviceID,
		KioskID:   e.KioskID,
		EventData: data,
		IPAddress: e.IP,
		UserAgent: e.UserAgent,
		CreatedAt: e.At,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		slog.Warn("audit write failed", "event_type", e.Type, "error", err)
	}
}

// NopSink drops events. Useful in tests.
type NopSink struct{}

func (NopSink) Log(context.Context, Event) {}
