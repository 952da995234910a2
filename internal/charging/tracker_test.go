package charging

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tesla-telemetry-backend/internal/apperr"
	"tesla-telemetry-backend/internal/db"
	"tesla-telemetry-backend/internal/model"
	"tesla-telemetry-backend/internal/store"
	"tesla-telemetry-backend/internal/tesla"
)

var t0 = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (store.Store, *model.Vehicle) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))

	s := store.NewGormStore(gdb)
	v, err := s.UpsertVehicle(context.Background(), model.Vehicle{
		TeslaID: "1001", VehicleID: "2001", VIN: "5YJ3E1EA7KF000001", DisplayName: "Blue",
	})
	require.NoError(t, err)
	return s, v
}

func snapshot(state string, level int, rate string) *tesla.VehicleData {
	cs := &tesla.ChargeState{BatteryLevel: &level, ChargingState: &state}
	if rate != "" {
		cs.ChargeRate = decimal.NewNullDecimal(decimal.RequireFromString(rate))
	}
	return &tesla.VehicleData{
		ChargeState: cs,
		DriveState: &tesla.DriveState{
			Latitude:  decimal.NewNullDecimal(decimal.RequireFromString("52.52")),
			Longitude: decimal.NewNullDecimal(decimal.RequireFromString("13.405")),
		},
	}
}

func TestTracker_SessionRoundTrip(t *testing.T) {
	s, v := newStore(t)
	tr := NewTracker(s)
	ctx := context.Background()

	res, err := tr.Apply(ctx, v.ID, t0, snapshot(StateCharging, 50, "7"))
	require.NoError(t, err)
	require.Equal(t, TransitionOpened, res.Transition)
	id := res.Session.ID

	res, err = tr.Apply(ctx, v.ID, t0.Add(10*time.Minute), snapshot(StateCharging, 55, "9"))
	require.NoError(t, err)
	assert.Equal(t, TransitionUpdated, res.Transition)

	res, err = tr.Apply(ctx, v.ID, t0.Add(45*time.Minute+20*time.Second), snapshot("Complete", 55, ""))
	require.NoError(t, err)
	assert.Equal(t, TransitionClosed, res.Transition)

	sess, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, sess.Status)
	assert.Equal(t, 50, *sess.StartBatteryLevel)
	assert.Equal(t, 55, *sess.EndBatteryLevel)
	assert.Equal(t, 45, *sess.DurationMinutes)
	require.NotNil(t, sess.EndedAt)
	assert.True(t, sess.EndedAt.Equal(t0.Add(45*time.Minute+20*time.Second)))
	assert.True(t, decimal.NewFromInt(8).Equal(sess.ChargeRateKwAvg.Decimal))
	assert.True(t, decimal.NewFromInt(9).Equal(sess.ChargeRateKwMax.Decimal))
	assert.True(t, decimal.RequireFromString("52.52").Equal(sess.Latitude.Decimal))

	open, err := s.FindOpenSession(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestTracker_StoppedIsInterrupted(t *testing.T) {
	s, v := newStore(t)
	tr := NewTracker(s)
	ctx := context.Background()

	_, err := tr.Apply(ctx, v.ID, t0, snapshot(StateStarting, 20, "11"))
	require.NoError(t, err)
	res, err := tr.Apply(ctx, v.ID, t0.Add(5*time.Minute), snapshot(StateStopped, 22, ""))
	require.NoError(t, err)

	require.Equal(t, TransitionClosed, res.Transition)
	assert.Equal(t, model.SessionInterrupted, res.Session.Status)
	assert.Equal(t, 5, *res.Session.DurationMinutes)
}

func TestTracker_OutOfOrderSnapshotDoesNotClose(t *testing.T) {
	s, v := newStore(t)
	tr := NewTracker(s)
	ctx := context.Background()

	_, err := tr.Apply(ctx, v.ID, t0, snapshot(StateCharging, 40, "7"))
	require.NoError(t, err)

	res, err := tr.Apply(ctx, v.ID, t0.Add(-time.Minute), snapshot("Disconnected", 40, ""))
	require.NoError(t, err)
	assert.Equal(t, TransitionNone, res.Transition)

	open, err := s.FindOpenSession(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, open)

	res, err = tr.Apply(ctx, v.ID, t0.Add(time.Minute), snapshot("Disconnected", 41, ""))
	require.NoError(t, err)
	assert.Equal(t, TransitionClosed, res.Transition)
}

func TestTracker_AtMostOneOpenSession(t *testing.T) {
	s, v := newStore(t)
	tr := NewTracker(s)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := tr.Apply(ctx, v.ID, t0.Add(time.Duration(i)*time.Minute), snapshot(StateCharging, 60+i, "7"))
		require.NoError(t, err)
	}

	sessions, err := s.ListSessions(ctx, store.SessionFilter{VehicleID: v.ID, Status: model.SessionInProgress})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestTracker_NoOpCases(t *testing.T) {
	s, v := newStore(t)
	tr := NewTracker(s)
	ctx := context.Background()

	res, err := tr.Apply(ctx, v.ID, t0, snapshot("Disconnected", 70, ""))
	require.NoError(t, err)
	assert.Equal(t, TransitionNone, res.Transition)

	res, err = tr.Apply(ctx, v.ID, t0, &tesla.VehicleData{DriveState: &tesla.DriveState{}})
	require.NoError(t, err)
	assert.Equal(t, TransitionNone, res.Transition)
	assert.Nil(t, res.Session)
}

func TestBlendAverage(t *testing.T) {
	null := decimal.NullDecimal{}
	d := func(s string) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.RequireFromString(s)) }

	assert.Equal(t, "6", blendAverage(null, d("6")).Decimal.String())
	assert.Equal(t, "6", blendAverage(d("6"), null).Decimal.String())
	assert.False(t, blendAverage(null, null).Valid)
	assert.Equal(t, "7.5", blendAverage(d("6"), d("9")).Decimal.String())
	// Equal-weight blend, not a true mean: 7, 9, 11 ends at 9.5.
	assert.Equal(t, "9.5", blendAverage(blendAverage(d("7"), d("9")), d("11")).Decimal.String())

	assert.Equal(t, "9", runningMax(d("9"), d("7")).Decimal.String())
	assert.Equal(t, "9", runningMax(null, d("9")).Decimal.String())
	assert.Equal(t, "9", runningMax(d("9"), null).Decimal.String())
}

func TestQueries(t *testing.T) {
	s, v := newStore(t)
	tr := NewTracker(s)
	q := NewQueries(s)
	ctx := context.Background()

	_, err := tr.Apply(ctx, v.ID, t0, snapshot(StateCharging, 50, "7"))
	require.NoError(t, err)
	res, err := tr.Apply(ctx, v.ID, t0.Add(30*time.Minute), snapshot("Complete", 60, ""))
	require.NoError(t, err)

	sessions, err := q.ListSessions(ctx, Filter{Vehicle: "5YJ3E1EA7KF000001"})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, res.Session.ID, sessions[0].ID)

	_, err = q.ListSessions(ctx, Filter{Vehicle: "999"})
	assert.True(t, apperr.Is(err, apperr.NotFound))

	got, err := q.GetSession(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Blue", got.Vehicle.DisplayName)

	_, err = q.GetSession(ctx, "8f14e45f-ceea-4e7a-9f3b-8b9c2a1d0e11")
	assert.True(t, apperr.Is(err, apperr.NotFound))

	stats, err := q.Stats(ctx, Filter{Vehicle: "1001", Status: model.SessionCompleted})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SessionCount)
	assert.Equal(t, int64(30), stats.TotalDurationMinutes)
}
