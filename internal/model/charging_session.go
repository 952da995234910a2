package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SessionStatus is the lifecycle state of a ChargingSession.
type SessionStatus string

const (
	SessionInProgress  SessionStatus = "in_progress"
	SessionCompleted   SessionStatus = "completed"
	SessionInterrupted SessionStatus = "interrupted"
)

// ChargingSession is a charging episode inferred from consecutive vehicle snapshots.
// The partial unique index keeps at most one in_progress row per vehicle.
type ChargingSession struct {
	ID        string        `gorm:"primaryKey;size:36" json:"id"`
	VehicleID string        `gorm:"size:36;not null;index;uniqueIndex:idx_charging_sessions_one_open,where:status = 'in_progress'" json:"vehicleId"`
	StartedAt time.Time     `gorm:"not null;index" json:"startedAt"`
	EndedAt   *time.Time    `json:"endedAt"`
	Status    SessionStatus `gorm:"size:16;not null;index" json:"status"`

	StartBatteryLevel *int `json:"startBatteryLevel"`
	EndBatteryLevel   *int `json:"endBatteryLevel"`
	DurationMinutes   *int `json:"durationMinutes"`

	ChargeRateKwAvg decimal.NullDecimal `gorm:"type:decimal(8,3)" json:"chargeRateKwAvg"`
	ChargeRateKwMax decimal.NullDecimal `gorm:"type:decimal(8,3)" json:"chargeRateKwMax"`
	EnergyAddedKwh  decimal.NullDecimal `gorm:"type:decimal(10,3)" json:"energyAddedKwh"`
	Cost            decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"cost"`

	Latitude  decimal.NullDecimal `gorm:"type:decimal(10,7)" json:"latitude"`
	Longitude decimal.NullDecimal `gorm:"type:decimal(10,7)" json:"longitude"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Vehicle Vehicle `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (s *ChargingSession) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
