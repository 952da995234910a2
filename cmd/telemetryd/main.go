package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"tesla-telemetry-backend/config"
	"tesla-telemetry-backend/internal/api"
	"tesla-telemetry-backend/internal/cache"
	"tesla-telemetry-backend/internal/charging"
	"tesla-telemetry-backend/internal/db"
	"tesla-telemetry-backend/internal/fleet"
	"tesla-telemetry-backend/internal/ingest"
	"tesla-telemetry-backend/internal/logging"
	"tesla-telemetry-backend/internal/notification"
	"tesla-telemetry-backend/internal/ratelimit"
	"tesla-telemetry-backend/internal/store"
	"tesla-telemetry-backend/internal/syncer"
	"tesla-telemetry-backend/internal/tesla"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (defaults to $CONFIG_PATH)")
	printConfig := flag.Bool("print-config", false, "print the effective configuration with secrets redacted and exit")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %q: %v\n", path, err)
		os.Exit(1)
	}

	if *printConfig {
		out, err := cfg.YAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to render configuration: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logging.WithComponent("main")
	log.Info().Str("path", path).Msg("configuration loaded")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("telemetryd stopped with error")
	}
	log.Info().Msg("telemetryd gracefully stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	appStore := store.NewGormStore(gormDB)

	backend := cache.NewGormBackend(gormDB)
	if cfg.Cache.Backend == "memory" {
		backend = cache.NewMemoryBackend()
	}
	entityCache := cache.New(backend)

	gateway := tesla.NewBreakerClient(
		tesla.NewClient(tesla.ClientConfig{
			BaseURL:   cfg.Tesla.BaseURL,
			Region:    cfg.Tesla.Region,
			UserAgent: cfg.Tesla.UserAgent,
			Timeout:   cfg.Tesla.RequestTimeout,
		}, nil),
		tesla.DefaultBreakerSettings(),
	)
	tokens := tokenProvider(cfg.Tesla)
	limiter := ratelimit.New(cfg.Sync.MinCallInterval)

	vehicles := fleet.NewVehicleService(gateway, tokens, limiter, entityCache, fleet.VehicleConfig{
		ListTTL:   cfg.Cache.VehicleListTTL,
		DataTTL:   cfg.Cache.VehicleDataTTL,
		WakeDelay: cfg.Sync.WakeDelay,
	})
	energy := fleet.NewEnergyService(gateway, tokens, limiter, entityCache, cfg.Cache.EnergyDataTTL)

	rootSpec := suture.Spec{
		EventHook: supervisorEvents(logging.WithComponent("supervisor")),
		Timeout:   10 * time.Second,
	}
	sup := suture.New("telemetryd", rootSpec)

	var webpushOptions *webpush.Options
	var dispatcher ingest.Dispatcher
	if cfg.Push.Enabled {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
		sup.Add(pool)
		dispatcher = pool
	}

	ingestor := ingest.New(appStore, vehicles, energy, charging.NewTracker(appStore), dispatcher, ingest.Config{
		VehicleDedupe: cfg.Sync.VehicleDedupe,
		EnergyDedupe:  cfg.Sync.EnergyDedupe,
	})
	syncSvc := syncer.NewService(entityCache, ingestor, syncer.Config{
		Enabled:  cfg.Sync.Enabled,
		Interval: cfg.Sync.Interval,
	})
	sup.Add(syncSvc)

	router := api.NewRouter(api.Deps{
		Store:    appStore,
		Vehicles: vehicles,
		Energy:   energy,
		Sync:     syncSvc,
		Charging: charging.NewQueries(appStore),
		WebPush:  webpushOptions,
	}, api.RouterConfig{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	sup.Add(api.NewServer(server, 5*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Int("port", cfg.Server.Port).Bool("sync_enabled", cfg.Sync.Enabled).
		Dur("sync_interval", cfg.Sync.Interval).Str("cache_backend", cfg.Cache.Backend).
		Bool("push_enabled", cfg.Push.Enabled).Msg("starting services")

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// tokenProvider refreshes through OAuth when a refresh token is configured.
func tokenProvider(cfg config.TeslaConfig) tesla.TokenProvider {
	if cfg.RefreshToken == "" {
		return tesla.StaticToken(cfg.AccessToken)
	}
	return tesla.NewRefreshingToken(tesla.RefreshConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		RefreshToken: cfg.RefreshToken,
		AccessToken:  cfg.AccessToken,
	})
}

func supervisorEvents(log zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		event := log.Warn()
		if e.Type() == suture.EventTypeResume {
			event = log.Info()
		}
		event.Fields(e.Map()).Msg(e.String())
	}
}
