package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/invisible-tech/hybrid-ids/internal/config"
	"github.com/invisible-tech/hybrid-ids/internal/model"
	"github.com/invisible-tech/hybrid-ids/internal/pipeline"
	"github.com/invisible-tech/hybrid-ids/internal/server"
	"github.com/invisible-tech/hybrid-ids/internal/version"
	"github.com/invisible-tech/hybrid-ids/pkg/alertsink"
	"github.com/invisible-tech/hybrid-ids/pkg/modelwatch"
)

func main() {
	cfg, err := config.LoadServerConfig(config.GetEnv("IDS_CONFIG", ""))
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	log, err := config.NewLogger(cfg, os.Stderr)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid logging configuration")
	}

	log.WithFields(logrus.Fields{
		"version":    version.Version,
		"checkpoint": cfg.CheckpointPath,
		"batch_size": cfg.BatchSize,
		"workers":    cfg.Workers,
	}).Info("Starting IDS API")

	handle, err := model.Load(cfg.CheckpointPath, model.LoadOptions{
		LibraryPath: cfg.ONNXLibraryPath,
		Threads:     cfg.InferenceThreads,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to load model")
	}
	defer handle.Close()
	log.WithFields(logrus.Fields{
		"labels":      len(handle.Labels()),
		"features":    handle.NumFeatures(),
		"fingerprint": handle.Fingerprint(),
	}).Info("Model loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var opts []pipeline.Option
	if cfg.AlertEnabled {
		sink := alertsink.NewClient(alertsink.Config{
			APIEndpoint: cfg.AlertEndpoint,
			APIKey:      cfg.AlertAPIKey,
			Timeout:     cfg.AlertTimeout,
		}, log)
		opts = append(opts, pipeline.WithAlertSink(sink))
		go func() {
			hctx, hcancel := context.WithTimeout(ctx, 10*time.Second)
			defer hcancel()
			if err := sink.HealthCheck(hctx); err != nil {
				log.WithError(err).Warn("Alert sink health check failed, will retry on first alert")
			} else {
				log.Info("Alert sink connection verified")
			}
		}()
	}

	pipe := pipeline.New(handle, pipeline.Config{
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
		TopN:      cfg.TopN,
	}, log, opts...)
	pipe.Start(ctx)

	if cfg.WatchCheckpoint {
		w, err := modelwatch.New(modelwatch.Config{
			Files:       handle.Files(),
			Fingerprint: handle.Fingerprint(),
		}, log)
		if err != nil {
			log.WithError(err).Warn("Checkpoint watcher disabled")
		} else {
			go w.Start(ctx)
		}
	}

	srv := server.New(cfg, pipe, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("IDS server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.WithField("signal", sig.String()).Info("Shutting down IDS API")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error during shutdown")
	}
	cancel()
}
