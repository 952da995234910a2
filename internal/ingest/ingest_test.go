package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tesla-telemetry-backend/internal/charging"
	"tesla-telemetry-backend/internal/db"
	"tesla-telemetry-backend/internal/store"
	"tesla-telemetry-backend/internal/tesla"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeVehicles struct {
	list    []tesla.Vehicle
	listErr error
	data    map[string]*tesla.VehicleData
	errs    map[string]error
}

func (f *fakeVehicles) GetVehicles(context.Context, bool) ([]tesla.Vehicle, error) {
	return f.list, f.listErr
}

func (f *fakeVehicles) GetVehicleData(_ context.Context, id string, _ bool) (*tesla.VehicleData, error) {
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	d, ok := f.data[id]
	if !ok {
		return nil, tesla.ErrEmptySnapshot
	}
	return d, nil
}

type fakeEnergy struct {
	sites     []tesla.EnergySite
	listCalls int
	status    map[string]*tesla.LiveStatus
}

func (f *fakeEnergy) GetEnergySites(context.Context) ([]tesla.EnergySite, error) {
	f.listCalls++
	return f.sites, nil
}

func (f *fakeEnergy) GetSiteData(_ context.Context, id string, _ bool) (*tesla.LiveStatus, error) {
	s, ok := f.status[id]
	if !ok {
		return nil, errors.New("site offline")
	}
	return s, nil
}

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *recordingDispatcher) Dispatch(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))
	return store.NewGormStore(gdb)
}

func car(id int64) tesla.Vehicle {
	return tesla.Vehicle{ID: id, VehicleID: id + 1000, VIN: fmt.Sprintf("5YJ3E1EA7KF%06d", id), DisplayName: "car", State: tesla.StateOnline}
}

func vehicleData(ts time.Time, chargingState string, level int) *tesla.VehicleData {
	ms := ts.UnixMilli()
	return &tesla.VehicleData{
		ChargeState: &tesla.ChargeState{
			BatteryLevel:  &level,
			ChargingState: &chargingState,
			ChargeRate:    decimal.NewNullDecimal(decimal.RequireFromString("7.5")),
			BatteryRange:  decimal.NewNullDecimal(decimal.RequireFromString("210.37")),
		},
		VehicleState: &tesla.VehicleStateData{Timestamp: &ms},
		Raw:          []byte(`{"charge_state":{}}`),
	}
}

func newIngestor(s store.Store, v *fakeVehicles, e *fakeEnergy, d Dispatcher) *Ingestor {
	i := New(s, v, e, charging.NewTracker(s), d, Config{VehicleDedupe: 30 * time.Second, EnergyDedupe: 30 * time.Second})
	i.now = func() time.Time { return base.Add(time.Hour) }
	return i
}

func TestSyncVehicles_DedupeWindow(t *testing.T) {
	tests := []struct {
		name    string
		offset  time.Duration
		created int
	}{
		{"same timestamp", 0, 0},
		{"inside window", 20 * time.Second, 0},
		{"at window edge", 30 * time.Second, 0},
		{"after window", 35 * time.Second, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			src := &fakeVehicles{
				list: []tesla.Vehicle{car(1)},
				data: map[string]*tesla.VehicleData{"1": vehicleData(base, "Disconnected", 80)},
			}
			ing := newIngestor(s, src, &fakeEnergy{}, nil)
			ctx := context.Background()

			res, err := ing.SyncVehicles(ctx)
			require.NoError(t, err)
			require.Equal(t, 1, res.StatesCreated)

			src.data["1"] = vehicleData(base.Add(tt.offset), "Disconnected", 80)
			res, err = ing.SyncVehicles(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.created, res.StatesCreated)
			assert.Zero(t, res.Skipped, "duplicates are not skipped devices")
		})
	}
}

func TestSyncVehicles_PerDeviceFailureDoesNotAbortBatch(t *testing.T) {
	s := newStore(t)
	src := &fakeVehicles{data: map[string]*tesla.VehicleData{}, errs: map[string]error{"3": tesla.ErrVehicleUnavailable}}
	for id := int64(1); id <= 5; id++ {
		src.list = append(src.list, car(id))
		src.data[fmt.Sprint(id)] = vehicleData(base, "Disconnected", 70)
	}
	ing := newIngestor(s, src, &fakeEnergy{}, nil)

	res, err := ing.SyncVehicles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, VehicleResult{Synced: 5, StatesCreated: 4, Skipped: 1}, res)
}

func TestSyncVehicles_EmptySnapshotIsSkipped(t *testing.T) {
	s := newStore(t)
	src := &fakeVehicles{list: []tesla.Vehicle{car(1)}}
	ing := newIngestor(s, src, &fakeEnergy{}, nil)

	res, err := ing.SyncVehicles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, VehicleResult{Synced: 1, Skipped: 1}, res)
}

func TestSyncVehicles_ListFailureIsReturned(t *testing.T) {
	ing := newIngestor(newStore(t), &fakeVehicles{listErr: errors.New("upstream down")}, &fakeEnergy{}, nil)

	_, err := ing.SyncVehicles(context.Background())
	assert.Error(t, err)
}

func TestSyncVehicles_MapsStateAndDispatchesClosedSessions(t *testing.T) {
	s := newStore(t)
	d := &recordingDispatcher{}
	src := &fakeVehicles{
		list: []tesla.Vehicle{car(7)},
		data: map[string]*tesla.VehicleData{"7": vehicleData(base, charging.StateCharging, 50)},
	}
	ing := newIngestor(s, src, &fakeEnergy{}, d)
	ctx := context.Background()

	_, err := ing.SyncVehicles(ctx)
	require.NoError(t, err)

	vehicleID, err := s.ResolveVehicleID(ctx, "7")
	require.NoError(t, err)
	latest, err := s.LatestVehicleState(ctx, vehicleID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Timestamp.Equal(base))
	assert.Equal(t, 50, *latest.BatteryLevel)
	assert.True(t, decimal.RequireFromString("210.37").Equal(latest.BatteryRange.Decimal))
	assert.Empty(t, d.ids)

	src.data["7"] = vehicleData(base.Add(time.Hour), "Complete", 80)
	_, err = ing.SyncVehicles(ctx)
	require.NoError(t, err)
	require.Len(t, d.ids, 1)

	sess, err := s.GetSession(ctx, d.ids[0])
	require.NoError(t, err)
	assert.Equal(t, 60, *sess.DurationMinutes)
}

func TestSyncVehicles_FallsBackToWallClock(t *testing.T) {
	s := newStore(t)
	level := 10
	src := &fakeVehicles{
		list: []tesla.Vehicle{car(1)},
		data: map[string]*tesla.VehicleData{"1": {ChargeState: &tesla.ChargeState{BatteryLevel: &level}}},
	}
	ing := newIngestor(s, src, &fakeEnergy{}, nil)
	ctx := context.Background()

	_, err := ing.SyncVehicles(ctx)
	require.NoError(t, err)

	vehicleID, err := s.ResolveVehicleID(ctx, "1")
	require.NoError(t, err)
	latest, err := s.LatestVehicleState(ctx, vehicleID)
	require.NoError(t, err)
	assert.True(t, latest.Timestamp.Equal(base.Add(time.Hour)))
}

func TestSyncEnergySites_UsesStoredSitesAfterFirstPass(t *testing.T) {
	s := newStore(t)
	grid := "Active"
	src := &fakeEnergy{
		sites: []tesla.EnergySite{{EnergySiteID: 42, SiteName: "Home", ResourceType: "battery"}, {EnergySiteID: 43, SiteName: "Cabin"}},
		status: map[string]*tesla.LiveStatus{
			"42": {
				Timestamp:  base.Format(time.RFC3339),
				SolarPower: decimal.NewNullDecimal(decimal.NewFromInt(3200)),
				GridStatus: &grid,
				Raw:        []byte(`{"solar_power":3200}`),
			},
		},
	}
	ing := newIngestor(s, &fakeVehicles{}, src, nil)
	ctx := context.Background()

	res, err := ing.SyncEnergySites(ctx)
	require.NoError(t, err)
	assert.Equal(t, EnergyResult{Synced: 2, StatesCreated: 1, Skipped: 1}, res)

	res, err = ing.SyncEnergySites(ctx)
	require.NoError(t, err)
	assert.Equal(t, EnergyResult{Synced: 2, Skipped: 1}, res)
	assert.Equal(t, 1, src.listCalls)

	sites, err := s.ListEnergySites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	var home string
	for _, site := range sites {
		if site.TeslaSiteID == "42" {
			home = site.ID
		}
	}
	latest, err := s.LatestEnergyState(ctx, home)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "Active", *latest.GridStatus)
}
