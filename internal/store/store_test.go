package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tesla-telemetry-backend/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Vehicle{}, &model.EnergySite{}, &model.VehicleState{}, &model.EnergyState{}, &model.ChargingSession{}, &model.PushSubscription{}))
	return NewGormStore(db)
}

func TestGormStore_UpsertVehicleSQL(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewGormStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "vehicles" .* ON CONFLICT \("tesla_id"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vehicles" WHERE tesla_id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tesla_id", "vin", "display_name"}).
			AddRow("6f1c4a54-3c2b-4b0e-9d89-2f0f7f0d9a11", "100021", "5YJ3E1EA7KF000001", "Blue"))

	v, err := s.UpsertVehicle(context.Background(), model.Vehicle{TeslaID: "100021", VIN: "5YJ3E1EA7KF000001", DisplayName: "Blue"})
	require.NoError(t, err)
	assert.Equal(t, "6f1c4a54-3c2b-4b0e-9d89-2f0f7f0d9a11", v.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_LatestVehicleStateNone(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewGormStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "vehicle_states" WHERE vehicle_id = $1 ORDER BY observed_at DESC LIMIT`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "vehicle_id", "observed_at"}))

	st, err := s.LatestVehicleState(context.Background(), "veh-1")
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_GetSessionNotFound(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewGormStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "charging_sessions" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_FindOpenSessionPropagatesErrors(t *testing.T) {
	db, mock := newTestDB(t)
	s := NewGormStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "charging_sessions" WHERE vehicle_id = $1 AND status = $2`)).
		WillReturnError(errors.New("connection reset"))

	_, err := s.FindOpenSession(context.Background(), "veh-1")
	assert.ErrorContains(t, err, "connection reset")
}

func TestGormStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	first, err := s.UpsertVehicle(ctx, model.Vehicle{TeslaID: "100021", VehicleID: "99", VIN: "5YJ3E1EA7KF000001", DisplayName: "Blue"})
	require.NoError(t, err)
	second, err := s.UpsertVehicle(ctx, model.Vehicle{TeslaID: "100021", VehicleID: "99", VIN: "5YJ3E1EA7KF000001", DisplayName: "Renamed"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Renamed", second.DisplayName)

	site, err := s.UpsertEnergySite(ctx, model.EnergySite{TeslaSiteID: "2252000", SiteName: "Home",
		TotalBatteryCapacityKwh: decimal.NewNullDecimal(decimal.RequireFromString("13.5"))})
	require.NoError(t, err)
	again, err := s.UpsertEnergySite(ctx, model.EnergySite{TeslaSiteID: "2252000", SiteName: "Home 2"})
	require.NoError(t, err)
	assert.Equal(t, site.ID, again.ID)

	sites, err := s.ListEnergySites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "Home 2", sites[0].SiteName)
}

func TestGormStore_ResolveVehicleID(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	v, err := s.UpsertVehicle(ctx, model.Vehicle{TeslaID: "100021", VehicleID: "99", VIN: "5YJ3E1EA7KF000001"})
	require.NoError(t, err)

	for _, ref := range []string{v.ID, "100021", "99", "5yj3e1ea7kf000001"} {
		got, err := s.ResolveVehicleID(ctx, ref)
		require.NoError(t, err, ref)
		assert.Equal(t, v.ID, got, ref)
	}

	_, err = s.ResolveVehicleID(ctx, "555")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ResolveVehicleID(ctx, "not an id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_LatestStateOrdersByTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	v, err := s.UpsertVehicle(ctx, model.Vehicle{TeslaID: "1"})
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, 10 * time.Minute, 5 * time.Minute} {
		require.NoError(t, s.CreateVehicleState(ctx, &model.VehicleState{VehicleID: v.ID, Timestamp: base.Add(offset)}))
	}

	latest, err := s.LatestVehicleState(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Timestamp.Equal(base.Add(10*time.Minute)))

	from := base.Add(time.Minute)
	states, err := s.ListVehicleStates(ctx, StateFilter{VehicleID: v.ID, From: &from})
	require.NoError(t, err)
	assert.Len(t, states, 2)
}

func TestGormStore_SessionQueriesAndStats(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	v, err := s.UpsertVehicle(ctx, model.Vehicle{TeslaID: "1"})
	require.NoError(t, err)
	other, err := s.UpsertVehicle(ctx, model.Vehicle{TeslaID: "2"})
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	dec := func(s string) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.RequireFromString(s)) }
	minutes := func(n int) *int { return &n }

	sessions := []*model.ChargingSession{
		{VehicleID: v.ID, StartedAt: base, Status: model.SessionCompleted, DurationMinutes: minutes(60),
			EnergyAddedKwh: dec("10.5"), Cost: dec("3.15"), ChargeRateKwAvg: dec("7.2")},
		{VehicleID: v.ID, StartedAt: base.Add(24 * time.Hour), Status: model.SessionInterrupted, DurationMinutes: minutes(30),
			EnergyAddedKwh: dec("4.5"), ChargeRateKwAvg: dec("9.0")},
		{VehicleID: v.ID, StartedAt: base.Add(48 * time.Hour), Status: model.SessionInProgress},
		{VehicleID: other.ID, StartedAt: base, Status: model.SessionCompleted, DurationMinutes: minutes(5)},
	}
	for _, sess := range sessions {
		require.NoError(t, s.CreateSession(ctx, sess))
	}

	all, err := s.ListSessions(ctx, SessionFilter{VehicleID: v.ID})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, model.SessionInProgress, all[0].Status, "newest first")

	completed, err := s.ListSessions(ctx, SessionFilter{Status: model.SessionCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	limited, err := s.ListSessions(ctx, SessionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	to := base.Add(time.Hour)
	stats, err := s.SessionStats(ctx, SessionFilter{VehicleID: v.ID, To: &to})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.SessionCount)

	stats, err = s.SessionStats(ctx, SessionFilter{VehicleID: v.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.SessionCount)
	assert.EqualValues(t, 90, stats.TotalDurationMinutes)
	assert.Equal(t, "15", stats.TotalEnergyAddedKwh.String())
	assert.Equal(t, "3.15", stats.TotalCost.String())
	assert.Equal(t, "8.1", stats.AverageChargeRateKw.String())
	assert.Equal(t, "0.3", stats.AverageCostPerKwh.String())

	open, err := s.FindOpenSession(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, sessions[2].ID, open.ID)

	none, err := s.FindOpenSession(ctx, other.ID)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestGormStore_UpdateSession(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	v, err := s.UpsertVehicle(ctx, model.Vehicle{TeslaID: "1"})
	require.NoError(t, err)

	sess := &model.ChargingSession{VehicleID: v.ID, StartedAt: time.Now().UTC(), Status: model.SessionInProgress}
	require.NoError(t, s.CreateSession(ctx, sess))

	ended := sess.StartedAt.Add(time.Hour)
	sess.Status = model.SessionCompleted
	sess.EndedAt = &ended
	require.NoError(t, s.UpdateSession(ctx, sess))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, got.Status)
	assert.Equal(t, "1", got.Vehicle.TeslaID)

	assert.Error(t, s.UpdateSession(ctx, &model.ChargingSession{}))
}

func TestGormStore_Subscriptions(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	a, err := s.UpsertVehicle(ctx, model.Vehicle{TeslaID: "1"})
	require.NoError(t, err)
	b, err := s.UpsertVehicle(ctx, model.Vehicle{TeslaID: "2"})
	require.NoError(t, err)

	sub := model.PushSubscription{Endpoint: "https://push.example.com/abc", P256DH: "key", Auth: "auth"}
	require.NoError(t, s.SaveSubscription(ctx, sub, []string{a.ID, b.ID}))

	got, err := s.GetSubscription(ctx, sub.Endpoint)
	require.NoError(t, err)
	assert.Len(t, got.Vehicles, 2)

	sub.Auth = "rotated"
	require.NoError(t, s.SaveSubscription(ctx, sub, []string{b.ID}))
	got, err = s.GetSubscription(ctx, sub.Endpoint)
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.Auth)
	require.Len(t, got.Vehicles, 1)
	assert.Equal(t, b.ID, got.Vehicles[0].ID)

	subs, err := s.SubscriptionsForVehicle(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
	subs, err = s.SubscriptionsForVehicle(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.Endpoint, subs[0].Endpoint)

	require.NoError(t, s.DeleteSubscription(ctx, sub.Endpoint))
	_, err = s.GetSubscription(ctx, sub.Endpoint)
	assert.ErrorIs(t, err, ErrNotFound)
	subs, err = s.SubscriptionsForVehicle(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)

	require.NoError(t, s.DeleteSubscription(ctx, "https://push.example.com/unknown"))
}
