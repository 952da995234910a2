package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Vehicle is the durable identity of a car on the account. Rows are upserted on sync and never deleted.
type Vehicle struct {
	ID          string `gorm:"primaryKey;size:36"`
	TeslaID     string `gorm:"uniqueIndex;size:32;not null"` // Fleet API "id"
	VehicleID   string `gorm:"size:32;index"`                // Fleet API "vehicle_id"
	VIN         string `gorm:"size:17;index"`
	DisplayName string `gorm:"size:128"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (v *Vehicle) BeforeCreate(*gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// EnergySite is a Powerwall or solar installation.
type EnergySite struct {
	ID                      string              `gorm:"primaryKey;size:36"`
	TeslaSiteID             string              `gorm:"uniqueIndex;size:32;not null"` // energy_site_id
	SiteName                string              `gorm:"size:128"`
	ResourceType            string              `gorm:"size:32"`
	TotalBatteryCapacityKwh decimal.NullDecimal `gorm:"type:decimal(10,3)"`
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (s *EnergySite) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
