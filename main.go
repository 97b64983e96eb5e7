package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/zots0127/drive/internal/adapter/handler"
	"github.com/zots0127/drive/internal/domain/repository"
	infra "github.com/zots0127/drive/internal/infrastructure/repository"
	"github.com/zots0127/drive/internal/usecase"
	"github.com/zots0127/drive/pkg/config"
	"github.com/zots0127/drive/pkg/logger"
	"github.com/zots0127/drive/pkg/middleware"
	"github.com/zots0127/drive/pkg/replica"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "drive",
		Usage:   "chunked upload storage server",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "drive.yaml",
				EnvVars: []string{"DRIVE_CONFIG"},
				Usage:   "configuration file; a missing file means defaults plus environment",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Value: true,
				Usage: "reload the configuration file when it changes",
			},
		},
		Action: func(c *cli.Context) error {
			return serve(c.Context, c.String("config"), c.Bool("watch"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath string, watch bool) error {
	configManager := config.NewConfigManager()
	cfg, err := configManager.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New("drive", logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Infow("starting drive", append([]interface{}{"version", version}, cfg.Summary()...)...)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := infra.OpenDatabase(cfg.Database.Path, infra.DatabaseOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		BusyTimeout:     cfg.Database.BusyTimeout,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	disks, err := cfg.Storage.AbsDisks()
	if err != nil {
		return err
	}
	for _, disk := range disks {
		if err := os.MkdirAll(disk, 0o755); err != nil {
			log.Warnw("storage disk not available", "disk", disk, "error", err)
		}
	}

	sessions := infra.NewSessionRepository(db)
	files := infra.NewFileRepository(db)
	storage := infra.NewDiskStorage()
	probe := infra.NewDiskProbe()
	locks := usecase.NewSessionLocker()
	allocator := usecase.NewDiskAllocator(disks, probe, uint64(cfg.Storage.SafetyMargin))

	var replicator repository.FileReplicator
	if cfg.Replica.Enabled {
		r, err := newReplicator(cfg.Replica, log.Named("replica"))
		if err != nil {
			return err
		}
		r.Start(context.Background())
		defer r.Stop()
		replicator = r
	}

	receiver := usecase.NewChunkReceiver(sessions, storage, locks, log.Named("chunks"))
	finalizer := usecase.NewFinalizer(sessions, files, storage, locks, replicator, log.Named("finalizer"))
	uploads := usecase.NewUploadUseCase(sessions, storage, allocator, locks, receiver, finalizer, uploadLimits(cfg.Upload), log.Named("upload"))
	fileUseCase := usecase.NewFileUseCase(files, storage, log.Named("files"))

	janitor := usecase.NewJanitor(sessions, storage, disks, locks, janitorSettings(cfg.Janitor), log.Named("janitor"))
	go janitor.Run(ctx)

	configManager.Watch(func(c *config.Config) {
		janitor.UpdateSettings(janitorSettings(c.Janitor))
		log.Infow("janitor settings updated", "enabled", c.Janitor.Enabled, "interval", c.Janitor.Interval, "max_age", c.Janitor.MaxAge)
	})
	if watch {
		watcher, err := config.NewConfigWatcher(configManager, config.DefaultDebounce, log.Named("config"))
		if err != nil {
			log.Warnw("config hot reload disabled", "error", err)
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	health := usecase.NewHealthUseCase(infra.NewHealthRepository(db, disks, probe, sessions), version)
	auth := middleware.NewAuthentication(middleware.AuthConfig{
		Secret: []byte(cfg.Security.JWTSecret),
		Issuer: cfg.Security.Issuer,
	}, log.Named("auth"))

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.Handlers{
		Health: handler.NewHealthHandler(health),
		Upload: handler.NewUploadHandler(uploads),
		Files:  handler.NewFileHandler(fileUseCase, allocator),
		Admin:  handler.NewAdminHandler(allocator, janitor),
		Config: config.NewConfigHandler(configManager),
	}, auth,
		middleware.Recovery(log.Named("http")),
		middleware.NewLogging(middleware.DefaultLoggingConfig(), log.Named("http")).Middleware(),
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Infow("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func newReplicator(cfg config.ReplicaConfig, log *zap.SugaredLogger) (*replica.Replicator, error) {
	uploader, err := replica.NewS3Uploader(replica.S3Config{
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		PathStyle: cfg.PathStyle,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		PartSize:  cfg.PartSize.Int64(),
	})
	if err != nil {
		return nil, err
	}
	return replica.New(uploader, replica.Options{
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	}, log), nil
}

func uploadLimits(cfg config.UploadConfig) usecase.UploadLimits {
	return usecase.UploadLimits{
		DefaultChunkSize: cfg.DefaultChunkSize.Int64(),
		MaxChunkSize:     cfg.MaxChunkSize.Int64(),
		MaxFileSize:      cfg.MaxFileSize.Int64(),
	}
}

func janitorSettings(cfg config.JanitorConfig) usecase.JanitorSettings {
	return usecase.JanitorSettings{
		Enabled:  cfg.Enabled,
		Interval: cfg.Interval,
		MaxAge:   cfg.MaxAge,
	}
}
