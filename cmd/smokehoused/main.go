package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"smokehouse/internal/config"
	"smokehouse/internal/configstore"
	"smokehouse/internal/flash"
	"smokehouse/internal/handlers"
	"smokehouse/internal/logger"
	"smokehouse/internal/models"
	"smokehouse/internal/remote"
	"smokehouse/internal/repository"
	"smokehouse/internal/repository/db"
	"smokehouse/internal/sensor"
	"smokehouse/internal/server"
	"smokehouse/internal/service"
	"smokehouse/internal/sim"
	"smokehouse/internal/state"
	"smokehouse/internal/storage"

	"golang.org/x/sync/errgroup"
)

func main() {
	boot := time.Now()

	cfg, err := config.Load("")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// console from the start; the flash log file is attached once mounted
	fileSink := logger.NewSink()
	log := logger.New(cfg.LogLevel, fileSink)
	defer func() { _ = log.Sync() }()

	sqlDB, err := openDB(cfg.DB.Path, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()
	repos := repository.NewRepository(sqlDB)

	hw := sim.NewSmoker(log)

	vol := flash.NewManager(
		flash.NewDirDriver(cfg.Flash.ImageDir, cfg.Flash.SizeBytes),
		flash.Options{
			Label:         cfg.Flash.PartitionLabel,
			Attempts:      cfg.Flash.Attempts,
			RetryBackoff:  cfg.Flash.RetryBackoff,
			BusResetDelay: cfg.Flash.BusResetDelay,
			FormatSettle:  cfg.Flash.FormatSettle,
		}, hw, hw, log)
	flashOK := vol.Initialize()

	settings := configstore.New(repos.KV, configstore.Defaults{
		AuthUser:    cfg.Defaults.AuthUser,
		AuthPass:    cfg.Defaults.AuthPass,
		ProfilePath: cfg.Defaults.ProfilePath,
		Manual: models.ManualSettings{
			SetpointC: cfg.Process.Limits.MinSetC,
			PowerMode: cfg.Process.Limits.MinPower,
		},
	}, log)

	machine, err := state.NewMachine(cfg.Locks.Timeout, hw, state.NewHysteresis(cfg.Process.HysteresisC), log)
	if err != nil {
		// no safe mode of operation without the locks
		log.Fatalw("failed to create process locks", "err", err)
	}
	if err := machine.AllOutputsOff(); err != nil {
		log.Warnw("outputs_off_failed", "err", err)
	}
	machine.SetStorageError(!flashOK)

	remoteClient := remote.NewClient(hw, remote.Options{
		APIURL:       cfg.Remote.APIURL,
		BaseURL:      cfg.Remote.BaseURL,
		UserAgent:    cfg.Remote.UserAgent,
		ListTimeout:  cfg.Remote.ListTimeout,
		FetchTimeout: cfg.Remote.FetchTimeout,
		ListCacheTTL: cfg.Remote.ListCacheTTL,
		RatePerSec:   cfg.Remote.RatePerSec,
		Burst:        cfg.Remote.Burst,
	}, log)

	store := storage.NewStore(vol, settings, machine, remoteClient,
		storage.NewParser(cfg.Process.Limits, cfg.Process.MaxSteps, log),
		storage.Options{
			BackupEvery: cfg.Storage.BackupEvery,
			MaxBackups:  cfg.Storage.MaxBackups,
			MaxLogs:     cfg.Storage.MaxLogs,
		}, log)
	store.SetClock(boot, time.Now)

	logFile := storage.NewLogFile(vol)
	if flashOK {
		if _, err := store.OpenSessionLog(vol.Size()); err == nil {
			fileSink.Attach(logFile)
		}
	}

	sensors := sensor.New(hw, machine, settings, hw, sensor.Options{
		RequestInterval: cfg.Sensors.RequestInterval,
		ConversionTime:  cfg.Sensors.ConversionTime,
		ErrorThreshold:  cfg.Sensors.ErrorThreshold,
		MinValidC:       cfg.Sensors.MinValidC,
		MaxValidC:       cfg.Sensors.MaxValidC,
		OverheatC:       cfg.Process.OverheatC,
		Defaults: models.SensorAssignment{
			Chamber: cfg.Sensors.DefaultChamber,
			Meat:    cfg.Sensors.DefaultMeat,
		},
	}, log)
	door := state.NewDoorMonitor(machine, hw, hw, cfg.Process.DoorDebounce, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := store.LoadActive(ctx); err != nil {
		log.Warnw("no_active_profile", "err", err)
	}
	if manual, err := settings.ManualSettings(ctx); err != nil {
		log.Warnw("manual_settings_read_failed", "err", err)
	} else if err := machine.SetManual(manual); err != nil {
		log.Warnw("manual_settings_apply_failed", "err", err)
	}

	services := service.NewService(service.Deps{
		Repos:    repos,
		Machine:  machine,
		Sensors:  sensors,
		Door:     door,
		Settings: settings,
		Store:    store,
		LogFile:  logFile,
		Volume:   vol,
		Auth: service.AuthConfig{
			SigningKey: cfg.Auth.SigningKey,
			TokenTTL:   cfg.Auth.TokenTTL,
		},
		Limits:           cfg.Process.Limits,
		SnapshotInterval: cfg.Process.SnapshotInterval,
		Log:              log,
	})
	apiHandler := handlers.NewHandler(services, log)
	apiHandler.LimitSignIn(cfg.HTTP.SignInRatePerSec, cfg.HTTP.SignInBurst)

	srv := &server.Server{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		services.Controller.Run(gctx, cfg.Process.Tick)
		return nil
	})
	g.Go(func() error {
		service.NewRecorder(machine.Events(), repos.EventRepo, log).Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Infow("http_server_starting", "port", cfg.Port)
		return srv.Run(cfg.Port, apiHandler.InitRoutes())
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Infow("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Errorw("server stopped with error", "err", err)
	}

	// leave the hardware safe on the way out
	if err := machine.AllOutputsOff(); err != nil {
		log.Warnw("outputs_off_failed", "err", err)
	}
	fileSink.Attach(nil)
	vol.Unmount()
}

// openDB initializes the SQLite database, falling back to a default file.
func openDB(path string, log *logger.Logger) (*sql.DB, error) {
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "smokehouse.db")
		path = "smokehouse.db"
	}
	return db.InitDB(path)
}
