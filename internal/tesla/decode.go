package tesla

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// DecodeVehicleData decodes a vehicle_data payload. The bare shape is tried first, then
// exactly one {"response": ...} level. A payload with no telemetry block in either shape
// is rejected with ErrEmptySnapshot.
func DecodeVehicleData(raw []byte) (*VehicleData, error) {
	var bare VehicleData
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, fmt.Errorf("decode vehicle data: %w", err)
	}
	if bare.HasTelemetry() {
		bare.Raw = raw
		return &bare, nil
	}

	var wrapped struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Response) > 0 {
		var inner VehicleData
		if err := json.Unmarshal(wrapped.Response, &inner); err == nil && inner.HasTelemetry() {
			inner.Raw = wrapped.Response
			return &inner, nil
		}
	}
	return nil, ErrEmptySnapshot
}

// HasTelemetry reports whether any state block is present.
func (d *VehicleData) HasTelemetry() bool {
	return d.ChargeState != nil || d.DriveState != nil || d.VehicleState != nil || d.ClimateState != nil
}

// SnapshotTime is vehicle_state.timestamp, else drive_state.gps_as_of, else fallback.
func (d *VehicleData) SnapshotTime(fallback time.Time) time.Time {
	if d.VehicleState != nil && d.VehicleState.Timestamp != nil && *d.VehicleState.Timestamp > 0 {
		return time.UnixMilli(*d.VehicleState.Timestamp).UTC()
	}
	if d.DriveState != nil && d.DriveState.GPSAsOf != nil && *d.DriveState.GPSAsOf > 0 {
		return time.Unix(*d.DriveState.GPSAsOf, 0).UTC()
	}
	return fallback
}

// ChargingState returns charge_state.charging_state or "".
func (d *VehicleData) ChargingState() string {
	if d.ChargeState == nil || d.ChargeState.ChargingState == nil {
		return ""
	}
	return *d.ChargeState.ChargingState
}

// DecodeLiveStatus decodes a live_status payload, unwrapping at most one extra envelope.
func DecodeLiveStatus(raw []byte) (*LiveStatus, error) {
	var wrapped struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode live status: %w", err)
	}
	if len(wrapped.Response) > 0 && wrapped.Response[0] == '{' {
		raw = wrapped.Response
	}

	var status LiveStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("decode live status: %w", err)
	}
	status.Raw = raw
	return &status, nil
}

// SnapshotTime is the RFC3339 timestamp field, else fallback.
func (s *LiveStatus) SnapshotTime(fallback time.Time) time.Time {
	if s.Timestamp == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, s.Timestamp)
	if err != nil {
		return fallback
	}
	return t.UTC()
}
