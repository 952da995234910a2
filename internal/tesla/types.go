// Package tesla is a read-only client for the Tesla Fleet API.
package tesla

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -destination=../mocks/mock_gateway.go -package=mocks tesla-telemetry-backend/internal/tesla Gateway

// Gateway is the subset of the Fleet API the service consumes. Every call is a billed,
// rate-limited request; callers are expected to pace them.
type Gateway interface {
	ListVehicles(ctx context.Context, token string) ([]Vehicle, error)
	// VehicleData returns the body of the response envelope, which may itself be wrapped once more.
	VehicleData(ctx context.Context, token, id string, endpoints []string) ([]byte, error)
	WakeUp(ctx context.Context, token, id string) (*Vehicle, error)
	ListEnergySites(ctx context.Context, token string) ([]EnergySite, error)
	SiteLiveStatus(ctx context.Context, token, siteID string) ([]byte, error)
}

// Vehicle is an entry of GET /api/1/vehicles.
type Vehicle struct {
	ID          int64  `json:"id"`
	VehicleID   int64  `json:"vehicle_id"`
	VIN         string `json:"vin"`
	DisplayName string `json:"display_name"`
	State       string `json:"state"`
	InService   bool   `json:"in_service"`
	AccessType  string `json:"access_type,omitempty"`
}

// Vehicle connectivity states.
const (
	StateOnline  = "online"
	StateAsleep  = "asleep"
	StateOffline = "offline"
)

func (v Vehicle) Online() bool {
	return v.State == StateOnline
}

// TeslaID is the id used in Fleet API paths.
func (v Vehicle) TeslaID() string {
	return strconv.FormatInt(v.ID, 10)
}

// DefaultVehicleEndpoints are requested on every vehicle_data call.
var DefaultVehicleEndpoints = []string{"charge_state", "drive_state", "vehicle_state", "climate_state", "location_data"}

// VehicleData is a vehicle_data snapshot.
type VehicleData struct {
	ID           int64             `json:"id"`
	VehicleID    int64             `json:"vehicle_id"`
	VIN          string            `json:"vin"`
	DisplayName  string            `json:"display_name"`
	State        string            `json:"state"`
	ChargeState  *ChargeState      `json:"charge_state,omitempty"`
	DriveState   *DriveState       `json:"drive_state,omitempty"`
	VehicleState *VehicleStateData `json:"vehicle_state,omitempty"`
	ClimateState *ClimateState     `json:"climate_state,omitempty"`

	// Raw is the normalized payload the struct was decoded from.
	Raw []byte `json:"-"`
}

type ChargeState struct {
	BatteryLevel       *int                `json:"battery_level"`
	BatteryRange       decimal.NullDecimal `json:"battery_range"`
	UsableBatteryLevel *int                `json:"usable_battery_level"`
	ChargingState      *string             `json:"charging_state"`
	ChargeRate         decimal.NullDecimal `json:"charge_rate"`
	ChargerPower       *int                `json:"charger_power"`
	ChargeLimitSOC     *int                `json:"charge_limit_soc"`
	ChargeEnergyAdded  decimal.NullDecimal `json:"charge_energy_added"`
}

type DriveState struct {
	GPSAsOf    *int64              `json:"gps_as_of"` // epoch seconds
	Heading    *int                `json:"heading"`
	Latitude   decimal.NullDecimal `json:"latitude"`
	Longitude  decimal.NullDecimal `json:"longitude"`
	Speed      *int                `json:"speed"`
	ShiftState *string             `json:"shift_state"`

	ActiveRouteDestination *string             `json:"active_route_destination,omitempty"`
	ActiveRouteLatitude    decimal.NullDecimal `json:"active_route_latitude"`
	ActiveRouteLongitude   decimal.NullDecimal `json:"active_route_longitude"`
}

type VehicleStateData struct {
	Odometer   decimal.NullDecimal `json:"odometer"`
	Locked     *bool               `json:"locked"`
	SentryMode *bool               `json:"sentry_mode"`
	CarVersion string              `json:"car_version,omitempty"`
	Timestamp  *int64              `json:"timestamp"` // epoch milliseconds
}

type ClimateState struct {
	InsideTemp  decimal.NullDecimal `json:"inside_temp"`
	OutsideTemp decimal.NullDecimal `json:"outside_temp"`
	IsClimateOn *bool               `json:"is_climate_on"`
}

// EnergySite is an energy product of GET /api/1/products.
type EnergySite struct {
	EnergySiteID      int64               `json:"energy_site_id"`
	ResourceType      string              `json:"resource_type"`
	SiteName          string              `json:"site_name"`
	TotalPackEnergy   decimal.NullDecimal `json:"total_pack_energy"`
	PercentageCharged decimal.NullDecimal `json:"percentage_charged"`
}

func (s EnergySite) TeslaSiteID() string {
	return strconv.FormatInt(s.EnergySiteID, 10)
}

// LiveStatus is GET /api/1/energy_sites/{id}/live_status.
type LiveStatus struct {
	Timestamp         string              `json:"timestamp,omitempty"` // RFC3339
	SolarPower        decimal.NullDecimal `json:"solar_power"`
	BatteryPower      decimal.NullDecimal `json:"battery_power"`
	GridPower         decimal.NullDecimal `json:"grid_power"`
	LoadPower         decimal.NullDecimal `json:"load_power"`
	GridStatus        *string             `json:"grid_status"`
	PercentageCharged decimal.NullDecimal `json:"percentage_charged"`
	EnergyLeft        decimal.NullDecimal `json:"energy_left"`
	TotalPackEnergy   decimal.NullDecimal `json:"total_pack_energy"`

	Raw []byte `json:"-"`
}
