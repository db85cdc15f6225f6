package dto

import "time"

type ValidatePunchRequest struct {
	Token     string `json:"token"`
	KioskID   string `json:"kioskId"`
	PunchType string `json:"punchType"`
}

type ValidatePunchResponse struct {
	Valid      bool      `json:"valid"`
	PunchID    string    `json:"punchId,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	DeviceID   string    `json:"deviceId,omitempty"`
	KioskID    string    `json:"kioskId,omitempty"`
	PunchType  string    `json:"punchType,omitempty"`
	RecordedAt time.Time `json:"recordedAt,omitzero"`

	// Populated on replay rejections so operators can see who consumed the
	// token first.
	Reason            string     `json:"reason,omitempty"`
	ConsumedByKioskID string     `json:"consumedByKioskId,omitempty"`
	ConsumedAt        *time.Time `json:"consumedAt,omitempty"`
}
