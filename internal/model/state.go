package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// VehicleState is one immutable telemetry snapshot of a vehicle (hypertable on observed_at).
type VehicleState struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	VehicleID string    `gorm:"size:36;not null;index:idx_vehicle_states_vehicle_ts,priority:1" json:"vehicleId"`
	Timestamp time.Time `gorm:"column:observed_at;primaryKey;not null;index:idx_vehicle_states_vehicle_ts,priority:2,sort:desc" json:"timestamp"`

	Latitude           decimal.NullDecimal `gorm:"type:decimal(10,7)" json:"latitude"`
	Longitude          decimal.NullDecimal `gorm:"type:decimal(10,7)" json:"longitude"`
	Heading            *int                `json:"heading"`
	Speed              *int                `json:"speed"`
	BatteryLevel       *int                `json:"batteryLevel"`
	BatteryRange       decimal.NullDecimal `gorm:"type:decimal(8,2)" json:"batteryRange"`
	UsableBatteryLevel *int                `json:"usableBatteryLevel"`
	ChargingState      *string             `gorm:"size:32" json:"chargingState"`
	ChargeRate         decimal.NullDecimal `gorm:"type:decimal(8,2)" json:"chargeRate"`
	ChargerPower       *int                `json:"chargerPower"`
	Odometer           decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"odometer"`

	DestinationName      *string             `gorm:"size:256" json:"destinationName"`
	DestinationLatitude  decimal.NullDecimal `gorm:"type:decimal(10,7)" json:"destinationLatitude"`
	DestinationLongitude decimal.NullDecimal `gorm:"type:decimal(10,7)" json:"destinationLongitude"`

	InsideTemp  decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"insideTemp"`
	OutsideTemp decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"outsideTemp"`
	IsLocked    *bool               `json:"isLocked"`
	SentryMode  *bool               `json:"sentryMode"`

	RawData   datatypes.JSON `json:"-"`
	CreatedAt time.Time      `json:"createdAt"`

	Vehicle Vehicle `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (s *VehicleState) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// EnergyState is one immutable live-status snapshot of an energy site.
type EnergyState struct {
	ID           string    `gorm:"primaryKey;size:36"`
	EnergySiteID string    `gorm:"size:36;not null;index:idx_energy_states_site_ts,priority:1"`
	Timestamp    time.Time `gorm:"column:observed_at;primaryKey;not null;index:idx_energy_states_site_ts,priority:2,sort:desc"`

	SolarPowerW       decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	BatteryPowerW     decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	GridPowerW        decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	LoadPowerW        decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	BatteryPercentage decimal.NullDecimal `gorm:"type:decimal(6,3)"`
	GridStatus        *string             `gorm:"size:32"`

	RawData   datatypes.JSON
	CreatedAt time.Time

	EnergySite EnergySite `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (s *EnergyState) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
