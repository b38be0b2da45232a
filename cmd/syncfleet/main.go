package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/syncfleet/syncfleet/config"
	"github.com/syncfleet/syncfleet/pkg/coordination"
	"github.com/syncfleet/syncfleet/pkg/gcal"
	"github.com/syncfleet/syncfleet/pkg/logger"
	"github.com/syncfleet/syncfleet/pkg/metrics"
	"github.com/syncfleet/syncfleet/pkg/notion"
	"github.com/syncfleet/syncfleet/pkg/oauth"
	"github.com/syncfleet/syncfleet/pkg/reconcile"
	"github.com/syncfleet/syncfleet/pkg/supervisor"
	"github.com/syncfleet/syncfleet/pkg/syncpipeline"
	"github.com/syncfleet/syncfleet/pkg/tasksstore/dynamo"
	"github.com/syncfleet/syncfleet/pkg/telemetry/tracing"
	"github.com/syncfleet/syncfleet/pkg/version"
)

const etcdDialTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: "stdout",
	})
	logger.SetGlobal(log)

	log.Info("starting syncfleet",
		"version", version.Version,
		"build_time", version.BuildTime,
		"git_commit", version.GitCommit,
		"node_name", cfg.NodeName,
		"clustered", cfg.Clustered,
	)
	log.Debug("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.TracingEndpoint, "syncfleet", version.Version)
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	metricsManager := metrics.NewManager(metrics.Config{
		Enabled:                  true,
		Port:                     cfg.MetricsPort,
		Path:                     "/metrics",
		TickDurationBuckets:      metrics.DefaultConfig().TickDurationBuckets,
		ReconcileDurationBuckets: metrics.DefaultConfig().ReconcileDurationBuckets,
	})
	go func() {
		log.Info("starting metrics server", "port", cfg.MetricsPort, "path", "/metrics")
		if err := metricsManager.StartServer(ctx, cfg.MetricsPort, "/metrics"); err != nil {
			log.Error("metrics server error", "error", err)
		}
	}()

	client, err := newCoordinationClient(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to coordination store", "error", err)
		os.Exit(1)
	}

	store, err := newTasksStore(ctx)
	if err != nil {
		log.Error("failed to initialize tasks store", "error", err)
		os.Exit(1)
	}

	reconciler := &reconcile.NotionCalendarReconciler{
		Notion: notion.New(),
		GCal:   gcal.New(),
		Tokens: oauth.New(cfg.GoogleOAuthClientID, cfg.GoogleOAuthClientSecret),
		Logger: log.(*logger.SlogLogger).Slog(),
	}

	// leaseID is resolved lazily so the pipeline always binds new partition-lock claims to
	// whichever lease the current supervisor attempt holds, not a stale one from a prior
	// AcquireLease cycle.
	var sup *supervisor.Supervisor
	pipeline := syncpipeline.New(client, cfg.NodeName, cfg.PartitionCount, store, reconciler,
		func() int64 { return sup.LeaseID() },
		syncpipeline.WithTickInterval(cfg.TickInterval),
		syncpipeline.WithConcurrency(cfg.ReconcileConcurrency),
		syncpipeline.WithLogger(log.(*logger.SlogLogger).Slog()),
		syncpipeline.WithMetrics(metricsManager),
	)
	sup = supervisor.New(client, cfg.NodeName, pipeline, log.(*logger.SlogLogger).Slog())

	runErr := sup.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("error shutting down tracing", "error", err)
	}
	if err := log.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %s\n", err)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "syncfleet exited with error: %s\n", runErr)
		os.Exit(1)
	}
}

// newCoordinationClient dials etcd when clustered, or falls back to an in-process
// coordination store for single-node operation (cfg.Clustered == false).
func newCoordinationClient(ctx context.Context, cfg *config.Config) (coordination.Client, error) {
	if !cfg.Clustered {
		return coordination.NewMemory(), nil
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{cfg.EtcdURL},
		DialTimeout: etcdDialTimeout,
		Context:     ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("dial etcd at %q: %w", cfg.EtcdURL, err)
	}
	return coordination.NewEtcdClient(cli), nil
}

func newTasksStore(ctx context.Context) (*dynamo.Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return dynamo.New(dynamodb.NewFromConfig(awsCfg)), nil
}
