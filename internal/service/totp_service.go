package service

import (
	"context"

	"chrona/internal/domain"
	"chrona/internal/dto"
)

type TOTPService interface {
	Provision(ctx context.Context, userID domain.UserID, r dto.ProvisionTOTPRequest) (*dto.ProvisionTOTPResponse, error)
	Activate(ctx context.Context, userID domain.UserID, r dto.ActivateTOTPRequest, ip, ua string) (*dto.ActivateTOTPResponse, error)
	Validate(ctx context.Context, userID domain.UserID, r dto.ValidateTOTPRequest, ip, ua string) (*dto.ValidateTOTPResponse, error)
	Deactivate(ctx context.Context, userID domain.UserID) error
	CleanupNonces(ctx context.Context, batchSize int) (int64, error)
}
