// Package ingest turns upstream snapshots into persisted state rows, one device at a time.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"

	"tesla-telemetry-backend/internal/charging"
	"tesla-telemetry-backend/internal/logging"
	"tesla-telemetry-backend/internal/metrics"
	"tesla-telemetry-backend/internal/model"
	"tesla-telemetry-backend/internal/store"
	"tesla-telemetry-backend/internal/tesla"
)

// VehicleSource is the cache-backed vehicle read path.
type VehicleSource interface {
	GetVehicles(ctx context.Context, forceFresh bool) ([]tesla.Vehicle, error)
	GetVehicleData(ctx context.Context, id string, forceFresh bool) (*tesla.VehicleData, error)
}

// EnergySource is the cache-backed energy read path.
type EnergySource interface {
	GetEnergySites(ctx context.Context) ([]tesla.EnergySite, error)
	GetSiteData(ctx context.Context, siteID string, forceFresh bool) (*tesla.LiveStatus, error)
}

// Dispatcher receives the ids of charging sessions that just closed.
type Dispatcher interface {
	Dispatch(sessionID string)
}

type Config struct {
	VehicleDedupe time.Duration
	EnergyDedupe  time.Duration
}

// VehicleResult counts the outcome of one vehicle pass.
type VehicleResult struct {
	Synced        int
	StatesCreated int
	Skipped       int
}

// EnergyResult counts the outcome of one energy site pass.
type EnergyResult struct {
	Synced        int
	StatesCreated int
	Skipped       int
}

type Ingestor struct {
	store      store.Store
	vehicles   VehicleSource
	energy     EnergySource
	tracker    *charging.Tracker
	dispatcher Dispatcher
	cfg        Config
	now        func() time.Time
}

// New creates an Ingestor. dispatcher may be nil.
func New(s store.Store, vehicles VehicleSource, energy EnergySource, tracker *charging.Tracker, dispatcher Dispatcher, cfg Config) *Ingestor {
	return &Ingestor{
		store:      s,
		vehicles:   vehicles,
		energy:     energy,
		tracker:    tracker,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
	}
}

// SyncVehicles lists the account's vehicles and ingests one snapshot per vehicle.
// Only a failure to list the vehicles is returned; per-vehicle failures are counted as skipped.
func (i *Ingestor) SyncVehicles(ctx context.Context) (VehicleResult, error) {
	vehicles, err := i.vehicles.GetVehicles(ctx, false)
	if err != nil {
		return VehicleResult{}, fmt.Errorf("list vehicles: %w", err)
	}

	records := i.syncVehicleRecords(ctx, vehicles)
	res := VehicleResult{Synced: len(vehicles)}
	log := logging.Ctx(ctx)

	for _, v := range vehicles {
		rec, ok := records[v.TeslaID()]
		if !ok {
			res.Skipped++
			metrics.Snapshots.WithLabelValues("vehicle", "skipped").Inc()
			continue
		}

		created, err := i.ingestVehicle(ctx, rec, v)
		if err != nil {
			res.Skipped++
			metrics.Snapshots.WithLabelValues("vehicle", "skipped").Inc()
			log.Warn().Err(err).Str("tesla_id", v.TeslaID()).Msg("vehicle sync skipped")
			continue
		}
		if created {
			res.StatesCreated++
		}
	}
	return res, nil
}

// syncVehicleRecords upserts every listed vehicle and indexes the stored rows by
// Fleet API id, vehicle_id and VIN. Vehicles that fail to upsert are left out.
func (i *Ingestor) syncVehicleRecords(ctx context.Context, vehicles []tesla.Vehicle) map[string]*model.Vehicle {
	records := make(map[string]*model.Vehicle, len(vehicles)*3)
	for _, v := range vehicles {
		rec, err := i.store.UpsertVehicle(ctx, model.Vehicle{
			TeslaID:     v.TeslaID(),
			VehicleID:   strconv.FormatInt(v.VehicleID, 10),
			VIN:         v.VIN,
			DisplayName: v.DisplayName,
		})
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("tesla_id", v.TeslaID()).Msg("failed to upsert vehicle record")
			continue
		}
		records[rec.TeslaID] = rec
		if rec.VehicleID != "" {
			records[rec.VehicleID] = rec
		}
		if rec.VIN != "" {
			records[rec.VIN] = rec
		}
	}
	return records
}

func (i *Ingestor) ingestVehicle(ctx context.Context, rec *model.Vehicle, v tesla.Vehicle) (bool, error) {
	data, err := i.vehicles.GetVehicleData(ctx, v.TeslaID(), false)
	if err != nil {
		return false, err
	}
	ts := data.SnapshotTime(i.now().UTC())

	latest, err := i.store.LatestVehicleState(ctx, rec.ID)
	if err != nil {
		return false, err
	}
	if latest != nil && !latest.Timestamp.Add(i.cfg.VehicleDedupe).Before(ts) {
		metrics.Snapshots.WithLabelValues("vehicle", "duplicate").Inc()
		return false, nil
	}

	state := vehicleState(rec.ID, ts, data)
	if err := i.store.CreateVehicleState(ctx, state); err != nil {
		return false, err
	}
	metrics.Snapshots.WithLabelValues("vehicle", "created").Inc()

	res, err := i.tracker.Apply(ctx, rec.ID, ts, data)
	if err != nil {
		return false, fmt.Errorf("charging session: %w", err)
	}
	if res.Transition == charging.TransitionClosed && i.dispatcher != nil {
		i.dispatcher.Dispatch(res.Session.ID)
	}
	return true, nil
}

// SyncEnergySites ingests one snapshot per known site. The upstream site list is only
// consulted while no site has been stored yet.
func (i *Ingestor) SyncEnergySites(ctx context.Context) (EnergyResult, error) {
	sites, err := i.energySites(ctx)
	if err != nil {
		return EnergyResult{}, err
	}

	res := EnergyResult{Synced: len(sites)}
	for _, site := range sites {
		created, err := i.ingestSite(ctx, site)
		if err != nil {
			res.Skipped++
			metrics.Snapshots.WithLabelValues("energy", "skipped").Inc()
			logging.Ctx(ctx).Warn().Err(err).Str("site_id", site.TeslaSiteID).Msg("energy sync skipped")
			continue
		}
		if created {
			res.StatesCreated++
		}
	}
	return res, nil
}

func (i *Ingestor) energySites(ctx context.Context) ([]model.EnergySite, error) {
	stored, err := i.store.ListEnergySites(ctx)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		return stored, nil
	}

	upstream, err := i.energy.GetEnergySites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list energy sites: %w", err)
	}
	sites := make([]model.EnergySite, 0, len(upstream))
	for _, s := range upstream {
		rec, err := i.store.UpsertEnergySite(ctx, model.EnergySite{
			TeslaSiteID:             s.TeslaSiteID(),
			SiteName:                s.SiteName,
			ResourceType:            s.ResourceType,
			TotalBatteryCapacityKwh: s.TotalPackEnergy,
		})
		if err != nil {
			return nil, err
		}
		sites = append(sites, *rec)
	}
	return sites, nil
}

func (i *Ingestor) ingestSite(ctx context.Context, site model.EnergySite) (bool, error) {
	status, err := i.energy.GetSiteData(ctx, site.TeslaSiteID, false)
	if err != nil {
		return false, err
	}
	ts := status.SnapshotTime(i.now().UTC())

	latest, err := i.store.LatestEnergyState(ctx, site.ID)
	if err != nil {
		return false, err
	}
	if latest != nil && !latest.Timestamp.Add(i.cfg.EnergyDedupe).Before(ts) {
		metrics.Snapshots.WithLabelValues("energy", "duplicate").Inc()
		return false, nil
	}

	if err := i.store.CreateEnergyState(ctx, energyState(site.ID, ts, status)); err != nil {
		return false, err
	}
	metrics.Snapshots.WithLabelValues("energy", "created").Inc()
	return true, nil
}

func vehicleState(vehicleID string, ts time.Time, d *tesla.VehicleData) *model.VehicleState {
	st := &model.VehicleState{
		VehicleID: vehicleID,
		Timestamp: ts,
		RawData:   datatypes.JSON(d.Raw),
	}
	if cs := d.ChargeState; cs != nil {
		st.BatteryLevel = cs.BatteryLevel
		st.BatteryRange = cs.BatteryRange
		st.UsableBatteryLevel = cs.UsableBatteryLevel
		st.ChargingState = cs.ChargingState
		st.ChargeRate = cs.ChargeRate
		st.ChargerPower = cs.ChargerPower
	}
	if ds := d.DriveState; ds != nil {
		st.Latitude = ds.Latitude
		st.Longitude = ds.Longitude
		st.Heading = ds.Heading
		st.Speed = ds.Speed
		st.DestinationName = ds.ActiveRouteDestination
		st.DestinationLatitude = ds.ActiveRouteLatitude
		st.DestinationLongitude = ds.ActiveRouteLongitude
	}
	if vs := d.VehicleState; vs != nil {
		st.Odometer = vs.Odometer
		st.IsLocked = vs.Locked
		st.SentryMode = vs.SentryMode
	}
	if cl := d.ClimateState; cl != nil {
		st.InsideTemp = cl.InsideTemp
		st.OutsideTemp = cl.OutsideTemp
	}
	return st
}

func energyState(siteID string, ts time.Time, s *tesla.LiveStatus) *model.EnergyState {
	return &model.EnergyState{
		EnergySiteID:      siteID,
		Timestamp:         ts,
		SolarPowerW:       s.SolarPower,
		BatteryPowerW:     s.BatteryPower,
		GridPowerW:        s.GridPower,
		LoadPowerW:        s.LoadPower,
		BatteryPercentage: s.PercentageCharged,
		GridStatus:        s.GridStatus,
		RawData:           datatypes.JSON(s.Raw),
	}
}
