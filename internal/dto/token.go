package dto

import "time"

type IssueTokenRequest struct {
	DeviceID string `json:"deviceId"`
}

type IssueTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expiresIn"`
	ExpiresAt time.Time `json:"expiresAt"`
}
