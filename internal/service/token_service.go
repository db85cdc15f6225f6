package service

import (
	"context"

	"chrona/internal/domain"
	"chrona/internal/dto"
)

type TokenService interface {
	Issue(ctx context.Context, userID domain.UserID, deviceID domain.DeviceID, ip, ua string) (*dto.IssueTokenResponse, error)
}
