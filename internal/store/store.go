package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tesla-telemetry-backend/internal/model"
	"tesla-telemetry-backend/internal/parse"
)

// Store defines the interface for all database operations.
type Store interface {
	UpsertVehicle(ctx context.Context, v model.Vehicle) (*model.Vehicle, error)
	UpsertEnergySite(ctx context.Context, s model.EnergySite) (*model.EnergySite, error)
	ListEnergySites(ctx context.Context) ([]model.EnergySite, error)

	LatestVehicleState(ctx context.Context, vehicleID string) (*model.VehicleState, error)
	CreateVehicleState(ctx context.Context, s *model.VehicleState) error
	ListVehicleStates(ctx context.Context, f StateFilter) ([]model.VehicleState, error)
	LatestEnergyState(ctx context.Context, siteID string) (*model.EnergyState, error)
	CreateEnergyState(ctx context.Context, s *model.EnergyState) error

	FindOpenSession(ctx context.Context, vehicleID string) (*model.ChargingSession, error)
	CreateSession(ctx context.Context, s *model.ChargingSession) error
	UpdateSession(ctx context.Context, s *model.ChargingSession) error
	GetSession(ctx context.Context, id string) (*model.ChargingSession, error)
	ListSessions(ctx context.Context, f SessionFilter) ([]model.ChargingSession, error)
	SessionStats(ctx context.Context, f SessionFilter) (SessionStats, error)

	SaveSubscription(ctx context.Context, sub model.PushSubscription, vehicleIDs []string) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForVehicle(ctx context.Context, vehicleID string) ([]model.PushSubscription, error)

	ResolveVehicleID(ctx context.Context, identifier string) (string, error)
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// UpsertVehicle inserts the vehicle or refreshes its descriptive fields, keyed by TeslaID,
// and returns the stored row.
func (s *gormStore) UpsertVehicle(ctx context.Context, v model.Vehicle) (*model.Vehicle, error) {
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tesla_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vehicle_id", "vin", "display_name", "updated_at"}),
	}).Create(&v).Error; err != nil {
		return nil, fmt.Errorf("upsert vehicle %s: %w", v.TeslaID, err)
	}

	var stored model.Vehicle
	if err := db.Where("tesla_id = ?", v.TeslaID).Take(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve vehicle %s after upsert: %w", v.TeslaID, err)
	}
	return &stored, nil
}

func (s *gormStore) UpsertEnergySite(ctx context.Context, site model.EnergySite) (*model.EnergySite, error) {
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tesla_site_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"site_name", "resource_type", "total_battery_capacity_kwh", "updated_at"}),
	}).Create(&site).Error; err != nil {
		return nil, fmt.Errorf("upsert energy site %s: %w", site.TeslaSiteID, err)
	}

	var stored model.EnergySite
	if err := db.Where("tesla_site_id = ?", site.TeslaSiteID).Take(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve energy site %s after upsert: %w", site.TeslaSiteID, err)
	}
	return &stored, nil
}

func (s *gormStore) ListEnergySites(ctx context.Context) ([]model.EnergySite, error) {
	var sites []model.EnergySite
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&sites).Error; err != nil {
		return nil, fmt.Errorf("list energy sites: %w", err)
	}
	return sites, nil
}

// LatestVehicleState returns the newest snapshot by timestamp, or nil when there is none.
func (s *gormStore) LatestVehicleState(ctx context.Context, vehicleID string) (*model.VehicleState, error) {
	var st model.VehicleState
	err := s.db.WithContext(ctx).
		Where("vehicle_id = ?", vehicleID).
		Order("observed_at DESC").
		Limit(1).
		Find(&st).Error
	if err != nil {
		return nil, fmt.Errorf("latest vehicle state for %s: %w", vehicleID, err)
	}
	if st.ID == "" {
		return nil, nil
	}
	return &st, nil
}

func (s *gormStore) CreateVehicleState(ctx context.Context, st *model.VehicleState) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(st).Error; err != nil {
		return fmt.Errorf("create vehicle state for %s: %w", st.VehicleID, err)
	}
	return nil
}

func (s *gormStore) ListVehicleStates(ctx context.Context, f StateFilter) ([]model.VehicleState, error) {
	q := s.db.WithContext(ctx).Model(&model.VehicleState{})
	if f.VehicleID != "" {
		q = q.Where("vehicle_id = ?", f.VehicleID)
	}
	if f.From != nil {
		q = q.Where("observed_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("observed_at <= ?", *f.To)
	}

	var states []model.VehicleState
	if err := q.Order("observed_at DESC").Limit(clampLimit(f.Limit)).Find(&states).Error; err != nil {
		return nil, fmt.Errorf("list vehicle states: %w", err)
	}
	return states, nil
}

// LatestEnergyState returns the newest snapshot by timestamp, or nil when there is none.
func (s *gormStore) LatestEnergyState(ctx context.Context, siteID string) (*model.EnergyState, error) {
	var st model.EnergyState
	err := s.db.WithContext(ctx).
		Where("energy_site_id = ?", siteID).
		Order("observed_at DESC").
		Limit(1).
		Find(&st).Error
	if err != nil {
		return nil, fmt.Errorf("latest energy state for %s: %w", siteID, err)
	}
	if st.ID == "" {
		return nil, nil
	}
	return &st, nil
}

func (s *gormStore) CreateEnergyState(ctx context.Context, st *model.EnergyState) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(st).Error; err != nil {
		return fmt.Errorf("create energy state for %s: %w", st.EnergySiteID, err)
	}
	return nil
}

// FindOpenSession returns the in_progress session of a vehicle, or nil.
func (s *gormStore) FindOpenSession(ctx context.Context, vehicleID string) (*model.ChargingSession, error) {
	var sess model.ChargingSession
	err := s.db.WithContext(ctx).
		Where("vehicle_id = ? AND status = ?", vehicleID, model.SessionInProgress).
		Order("started_at DESC").
		Limit(1).
		Find(&sess).Error
	if err != nil {
		return nil, fmt.Errorf("find open session for %s: %w", vehicleID, err)
	}
	if sess.ID == "" {
		return nil, nil
	}
	return &sess, nil
}

func (s *gormStore) CreateSession(ctx context.Context, sess *model.ChargingSession) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(sess).Error; err != nil {
		return fmt.Errorf("create charging session for %s: %w", sess.VehicleID, err)
	}
	return nil
}

func (s *gormStore) UpdateSession(ctx context.Context, sess *model.ChargingSession) error {
	if sess.ID == "" {
		return errors.New("update charging session: missing id")
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(sess).Error; err != nil {
		return fmt.Errorf("update charging session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *gormStore) GetSession(ctx context.Context, id string) (*model.ChargingSession, error) {
	var sess model.ChargingSession
	err := s.db.WithContext(ctx).Preload("Vehicle").Where("id = ?", id).Take(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get charging session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *gormStore) sessionQuery(ctx context.Context, f SessionFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&model.ChargingSession{})
	if f.VehicleID != "" {
		q = q.Where("vehicle_id = ?", f.VehicleID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("started_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("started_at <= ?", *f.To)
	}
	return q
}

func (s *gormStore) ListSessions(ctx context.Context, f SessionFilter) ([]model.ChargingSession, error) {
	var sessions []model.ChargingSession
	if err := s.sessionQuery(ctx, f).
		Order("started_at DESC").
		Limit(clampLimit(f.Limit)).
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list charging sessions: %w", err)
	}
	return sessions, nil
}

// SessionStats sums over every matching session. The sums are done on decimals in Go
// so the result does not depend on the database's numeric aggregation.
func (s *gormStore) SessionStats(ctx context.Context, f SessionFilter) (SessionStats, error) {
	var sessions []model.ChargingSession
	if err := s.sessionQuery(ctx, f).
		Select("id", "duration_minutes", "energy_added_kwh", "cost", "charge_rate_kw_avg").
		Find(&sessions).Error; err != nil {
		return SessionStats{}, fmt.Errorf("charging session stats: %w", err)
	}
	return aggregate(sessions), nil
}

func aggregate(sessions []model.ChargingSession) SessionStats {
	stats := SessionStats{SessionCount: int64(len(sessions))}
	rateSum := decimal.Zero
	rateCount := int64(0)
	costedEnergy := decimal.Zero

	for _, sess := range sessions {
		if sess.DurationMinutes != nil {
			stats.TotalDurationMinutes += int64(*sess.DurationMinutes)
		}
		if sess.EnergyAddedKwh.Valid {
			stats.TotalEnergyAddedKwh = stats.TotalEnergyAddedKwh.Add(sess.EnergyAddedKwh.Decimal)
		}
		if sess.Cost.Valid {
			stats.TotalCost = stats.TotalCost.Add(sess.Cost.Decimal)
			if sess.EnergyAddedKwh.Valid {
				costedEnergy = costedEnergy.Add(sess.EnergyAddedKwh.Decimal)
			}
		}
		if sess.ChargeRateKwAvg.Valid {
			rateSum = rateSum.Add(sess.ChargeRateKwAvg.Decimal)
			rateCount++
		}
	}

	if rateCount > 0 {
		stats.AverageChargeRateKw = rateSum.Div(decimal.NewFromInt(rateCount)).Round(3)
	}
	if costedEnergy.IsPositive() {
		stats.AverageCostPerKwh = stats.TotalCost.Div(costedEnergy).Round(4)
	}
	return stats
}

// ResolveVehicleID maps a local UUID, Fleet API id, vehicle_id or VIN to the local vehicle id.
func (s *gormStore) ResolveVehicleID(ctx context.Context, identifier string) (string, error) {
	id, err := parse.ParseIdentifier(identifier)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	q := s.db.WithContext(ctx).Model(&model.Vehicle{}).Select("id")
	switch id.Kind {
	case parse.KindLocalID:
		q = q.Where("id = ?", id.Value)
	case parse.KindTeslaID:
		q = q.Where("tesla_id = ? OR vehicle_id = ?", id.Value, id.Value)
	case parse.KindVIN:
		q = q.Where("vin = ?", id.Value)
	}

	var v model.Vehicle
	err = q.Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve vehicle %q: %w", identifier, err)
	}
	return v.ID, nil
}
