package service

import (
	"context"

	"chrona/internal/domain"
	"chrona/internal/dto"
)

type PunchService interface {
	Validate(ctx context.Context, kioskID domain.KioskID, r dto.ValidatePunchRequest, ip, ua string) (*dto.ValidatePunchResponse, error)
}
