package dto

import "time"

type ProvisionTOTPRequest struct {
	DeviceID string `json:"deviceId,omitempty"`
}

type ProvisionTOTPResponse struct {
	TOTPSecretID    string    `json:"totpSecretId"`
	Secret          string    `json:"secret"`
	ProvisioningURI string    `json:"provisioningUri"`
	QRPNGBase64     string    `json:"qrPngBase64"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

type ActivateTOTPRequest struct {
	TOTPSecretID     string `json:"totpSecretId"`
	VerificationCode string `json:"verificationCode"`
}

type ActivateTOTPResponse struct {
	Success       bool     `json:"success"`
	RecoveryCodes []string `json:"recoveryCodes"`
}

type ValidateTOTPRequest struct {
	TOTPCode string `json:"totpCode"`
	KioskID  string `json:"kioskId,omitempty"`
	Nonce    string `json:"nonce,omitempty"`
	JWTJTI   string `json:"jwtJti,omitempty"`
}

type ValidateTOTPResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message,omitempty"`
	TimeOffsetPeriods *int   `json:"timeOffsetPeriods,omitempty"`
}

type UseRecoveryCodeRequest struct {
	RecoveryCode string `json:"recoveryCode"`
}

type UseRecoveryCodeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type RecoveryStatusResponse struct {
	Total   int      `json:"total"`
	Unused  int      `json:"unused"`
	Used    int      `json:"used"`
	Expired int      `json:"expired"`
	Hints   []string `json:"hints"`
}

type RegenerateRecoveryResponse struct {
	RecoveryCodes []string `json:"recoveryCodes"`
}

type CleanupNoncesRequest struct {
	BatchSize int `json:"batchSize,omitempty"`
}

type CleanupNoncesResponse struct {
	Deleted int64 `json:"deleted"`
}
