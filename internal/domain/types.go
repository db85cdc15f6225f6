package domain

import "github.com/google/uuid"

type UserID = uuid.UUID
type DeviceID = uuid.UUID
type KioskID = uuid.UUID
type PunchID = uuid.UUID
type TOTPSecretID = uuid.UUID
