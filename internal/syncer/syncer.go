// Package syncer runs the periodic pass that sweeps expired cache rows and ingests a
// snapshot of every vehicle and energy site.
package syncer

import (
	"context"
	"sync"
	"time"

	"tesla-telemetry-backend/internal/cache"
	"tesla-telemetry-backend/internal/ingest"
	"tesla-telemetry-backend/internal/logging"
	"tesla-telemetry-backend/internal/metrics"
)

const (
	messageSuccess = "Cache cleanup and ingestion completed"
	messageFailure = "Cache cleanup or ingestion failed"
)

// Ingester ingests snapshots for all devices.
type Ingester interface {
	SyncVehicles(ctx context.Context) (ingest.VehicleResult, error)
	SyncEnergySites(ctx context.Context) (ingest.EnergyResult, error)
}

// CleanupResult counts the cache rows removed by the expiry sweep.
type CleanupResult struct {
	VehicleDataDeleted int64 `json:"vehicleDataDeleted"`
	EnergyDataDeleted  int64 `json:"energyDataDeleted"`
	VehicleListDeleted int64 `json:"vehicleListDeleted"`
}

type IngestionResult struct {
	VehiclesSynced       int `json:"vehiclesSynced"`
	VehicleStatesCreated int `json:"vehicleStatesCreated"`
	VehiclesSkipped      int `json:"vehiclesSkipped"`
	EnergySitesSynced    int `json:"energySitesSynced"`
	EnergyStatesCreated  int `json:"energyStatesCreated"`
	EnergySitesSkipped   int `json:"energySitesSkipped"`
}

// Result is returned by RunSync. Cleanup and Ingestion are omitted on failure.
type Result struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Cleanup   *CleanupResult   `json:"cleanup,omitempty"`
	Ingestion *IngestionResult `json:"ingestion,omitempty"`
}

type Config struct {
	Enabled  bool
	Interval time.Duration
}

// Service orchestrates sync passes. Passes never overlap.
type Service struct {
	cache    *cache.Cache
	ingestor Ingester
	status   *StatusHolder
	cfg      Config
	now      func() time.Time

	mu sync.Mutex
}

func NewService(c *cache.Cache, ingestor Ingester, cfg Config) *Service {
	return &Service{
		cache:    c,
		ingestor: ingestor,
		status:   NewStatusHolder(),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Status returns the outcome of the last pass.
func (s *Service) Status() Status {
	return s.status.Get()
}

// Cleanup deletes every expired cache row.
func (s *Service) Cleanup(ctx context.Context) (CleanupResult, error) {
	expired, err := s.cache.ExpireAll(ctx, s.now())
	if err != nil {
		return CleanupResult{}, err
	}
	res := CleanupResult{
		VehicleDataDeleted: expired[cache.KindVehicleData],
		EnergyDataDeleted:  expired[cache.KindEnergyData],
		VehicleListDeleted: expired[cache.KindVehicleList],
	}
	logging.Ctx(ctx).Info().
		Int64("vehicle_data", res.VehicleDataDeleted).
		Int64("energy_data", res.EnergyDataDeleted).
		Int64("vehicle_list", res.VehicleListDeleted).
		Msg("cache cleanup completed")
	return res, nil
}

// RunSync performs one full pass. Only a failure of the sweep or of a device list
// fails the pass; per-device failures show up as skipped counts.
func (s *Service) RunSync(ctx context.Context) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)
	start := s.now()
	log.Info().Msg("sync pass starting")

	cleanup, ingestion, err := s.run(ctx)
	finished := s.now().UTC()
	metrics.RecordSync(time.Since(start), err == nil)

	if err != nil {
		log.Error().Err(err).Msg("sync pass failed")
		s.status.record(finished, RunFailed, messageFailure)
		return Result{Success: false, Message: messageFailure}
	}

	log.Info().
		Int("vehicles", ingestion.VehiclesSynced).
		Int("vehicle_states", ingestion.VehicleStatesCreated).
		Int("vehicles_skipped", ingestion.VehiclesSkipped).
		Int("sites", ingestion.EnergySitesSynced).
		Int("energy_states", ingestion.EnergyStatesCreated).
		Int("sites_skipped", ingestion.EnergySitesSkipped).
		Msg("sync pass finished")
	s.status.record(finished, RunSuccess, messageSuccess)
	return Result{Success: true, Message: messageSuccess, Cleanup: &cleanup, Ingestion: &ingestion}
}

func (s *Service) run(ctx context.Context) (CleanupResult, IngestionResult, error) {
	cleanup, err := s.Cleanup(ctx)
	if err != nil {
		return CleanupResult{}, IngestionResult{}, err
	}

	vehicles, err := s.ingestor.SyncVehicles(ctx)
	if err != nil {
		return CleanupResult{}, IngestionResult{}, err
	}
	sites, err := s.ingestor.SyncEnergySites(ctx)
	if err != nil {
		return CleanupResult{}, IngestionResult{}, err
	}

	return cleanup, IngestionResult{
		VehiclesSynced:       vehicles.Synced,
		VehicleStatesCreated: vehicles.StatesCreated,
		VehiclesSkipped:      vehicles.Skipped,
		EnergySitesSynced:    sites.Synced,
		EnergyStatesCreated:  sites.StatesCreated,
		EnergySitesSkipped:   sites.Skipped,
	}, nil
}

// Serve runs a pass immediately and then every Interval until ctx is done.
func (s *Service) Serve(ctx context.Context) error {
	if !s.cfg.Enabled || s.cfg.Interval <= 0 {
		logging.Info().Msg("sync loop is disabled, not starting")
		<-ctx.Done()
		return nil
	}
	logging.Info().Dur("interval", s.cfg.Interval).Msg("starting sync loop")

	s.RunSync(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("sync loop shutting down")
			return nil
		case <-timer.C:
			s.RunSync(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) String() string {
	return "sync-loop"
}
