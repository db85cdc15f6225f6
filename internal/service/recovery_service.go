package service

import (
	"context"

	"chrona/internal/domain"
	"chrona/internal/dto"
)

type RecoveryService interface {
	Use(ctx context.Context, userID domain.UserID, r dto.UseRecoveryCodeRequest, ip, ua string) (*dto.UseRecoveryCodeResponse, error)
	Status(ctx context.Context, userID domain.UserID) (*dto.RecoveryStatusResponse, error)
	Regenerate(ctx context.Context, userID domain.UserID, ip, ua string) (*dto.RegenerateRecoveryResponse, error)
}
