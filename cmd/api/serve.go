package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"fireeye-analysis/internal/analysis"
	"fireeye-analysis/internal/config"
	"fireeye-analysis/internal/db"
	"fireeye-analysis/internal/events"
	"fireeye-analysis/internal/fireeye"
	httpSrv "fireeye-analysis/internal/http"
	"fireeye-analysis/internal/metrics"
	"fireeye-analysis/internal/migrations"
	"fireeye-analysis/internal/storage"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(ctx context.Context, cc *commandContext) error {
	cfg, log, err := cc.ensure()
	if err != nil {
		return err
	}

	if cfg.MigrateOnStart {
		if err := migrations.Up(cfg.DBDriver, cfg.DatabaseURL); err != nil {
			return err
		}
		log.Info("migrations applied", slog.String("driver", cfg.DBDriver))
	}

	dbx, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dbx.Close()
	repo := db.NewRepo(dbx)

	samples, err := openSamples(ctx, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.New(reg)

	vendor := fireeye.NewClient(cfg.FireEyeBaseURL,
		fireeye.WithTimeout(cfg.FireEyeTimeout),
		fireeye.WithMetrics(mt))

	var pub events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		n, err := events.NewNATS(cfg.NATSURL, cfg.NATSSubject, log)
		if err != nil {
			return err
		}
		defer n.Close()
		pub = n
	}

	policy, err := analysis.ParseErrorPolicy(cfg.FireEyeErrorPolicy)
	if err != nil {
		return err
	}
	svc := analysis.NewService(repo, vendor, samples,
		analysis.WithLogger(log),
		analysis.WithPublisher(pub),
		analysis.WithMetrics(mt),
		analysis.WithErrorPolicy(policy))

	srv := httpSrv.NewServer(cfg.ListenAddr, httpSrv.Deps{
		Service:      svc,
		Users:        repo,
		Health:       repo,
		Logger:       log,
		Metrics:      mt,
		Gatherer:     reg,
		FireEyeToken: cfg.FireEyeToken,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			slog.String("addr", cfg.ListenAddr),
			slog.String("samples", cfg.SamplesBackend),
			slog.String("error_policy", policy.String()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func openSamples(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.SamplesBackend {
	case config.BackendS3:
		c, err := storage.New(ctx, storage.S3Options{
			Endpoint:  cfg.MinioEndpoint,
			Bucket:    cfg.MinioBucket,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Prefix:    cfg.SamplesPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 samples: %w", err)
		}
		return c, nil
	default:
		return storage.Dir{Root: cfg.SamplesDir}, nil
	}
}
