package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"altitude-recorder/internal/config"
	"altitude-recorder/internal/export"
	"altitude-recorder/internal/handlers"
	"altitude-recorder/internal/location"
	"altitude-recorder/internal/logger"
	"altitude-recorder/internal/recorder"
	"altitude-recorder/internal/repository"
	"altitude-recorder/internal/share"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// trackStore is what both the controller and the exporter need.
type trackStore interface {
	recorder.Store
	export.Source
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log().Fatal().Err(err).Msg("config error")
	}
	if err := logger.Configure(cfg.LogFormat, cfg.LogLevel); err != nil {
		logger.Log().Fatal().Err(err).Msg("logger config error")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Log().Fatal().Err(err).Msg("store open error")
	}

	ctrl := recorder.NewController(ctx, store)
	feed := location.NewFeed(func(f location.Fix) { ctrl.OnFix(ctx, f) })

	if cfg.GPS.Source == "gpsd" {
		gps := location.NewGPSDService(cfg.GPS.GPSDAddr, feed)
		if err := gps.Start(ctx); err != nil {
			logger.Log().Fatal().Err(err).Msg("gpsd start error")
		}
		defer gps.Close()
	}

	var uploader share.Uploader
	if cfg.Share.Bucket != "" {
		up, err := share.NewS3UploaderFromEnv(ctx, cfg.Share.Bucket, cfg.Share.Region, cfg.Share.Prefix)
		if err != nil {
			logger.Log().Fatal().Err(err).Msg("s3 uploader error")
		}
		uploader = up
	}
	sharer := share.NewSharer(cfg.Share.TempDir, uploader, nil)

	mux := http.NewServeMux()
	handlers.NewTrackHandler(ctrl, feed, export.NewExporter(store), sharer).Register(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", srv.Addr, "store", cfg.Store.Backend, "gps", cfg.GPS.Source)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log().Fatal().Err(err).Msg("server error")
	}
	logger.Info("stopped")
}

func openStore(ctx context.Context, cfg config.StoreConfig) (trackStore, error) {
	switch cfg.Backend {
	case "dynamodb":
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.DynamoRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.DynamoRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return repository.NewDynamoTrackRepository(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable, nil), nil
	default:
		db, err := repository.ConnectWithRetry(cfg.Driver, cfg.DSN, cfg.ConnectAttempts, cfg.ConnectDelay)
		if err != nil {
			return nil, err
		}
		return repository.NewTrackRepository(db, nil), nil
	}
}
