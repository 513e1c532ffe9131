// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// buildwright-worker runs the staged build pipeline: one worker per
// stage, each consuming its stage's Redis queue, plus the trigger
// inbox that turns operator requests into scheduled builds. It also
// serves /metrics and /healthz on the configured operations address.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/buildwright/lib/clock"
	"github.com/bureau-foundation/buildwright/lib/config"
	"github.com/bureau-foundation/buildwright/lib/docker"
	"github.com/bureau-foundation/buildwright/lib/github"
	"github.com/bureau-foundation/buildwright/lib/livelog"
	"github.com/bureau-foundation/buildwright/lib/pipeline"
	"github.com/bureau-foundation/buildwright/lib/process"
	"github.com/bureau-foundation/buildwright/lib/queue"
	"github.com/bureau-foundation/buildwright/lib/report"
	"github.com/bureau-foundation/buildwright/lib/schedule"
	"github.com/bureau-foundation/buildwright/lib/service"
	"github.com/bureau-foundation/buildwright/lib/sshkey"
	"github.com/bureau-foundation/buildwright/lib/stage"
	"github.com/bureau-foundation/buildwright/lib/store"
	"github.com/bureau-foundation/buildwright/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		debug       bool
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("buildwright-worker", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config (default: $"+config.EnvironmentVariable+")")
	flagSet.BoolVar(&debug, "debug", false, "log at debug level")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print("buildwright-worker")
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := service.NewLogger(debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if digest, binaryPath, err := version.SelfDigest(); err != nil {
		logger.Warn("could not hash own binary", "error", err)
	} else {
		logger.Info("starting buildwright-worker",
			"version", version.Info(),
			"commit", version.Commit(),
			"binary", binaryPath,
			"digest", digest,
			"environment", cfg.Environment,
		)
	}

	shutdownTracing, err := service.InitTracing(service.TracingConfig{
		Exporter:       cfg.Telemetry.Trace,
		ServiceName:    "buildwright-worker",
		ServiceVersion: version.Short(),
		Environment:    string(cfg.Environment),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("flushing traces", "error", err)
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Address, err)
	}

	badgerStore, err := store.OpenBadger(store.BadgerConfig{
		Path:   cfg.Paths.Data,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer badgerStore.Close()

	dockerClient, err := docker.NewClient(cfg.Docker.Host)
	if err != nil {
		return err
	}
	defer dockerClient.Close()
	if err := dockerClient.Ping(ctx); err != nil {
		return err
	}

	realClock := clock.Real()
	factory := github.Factory{
		BaseURL: cfg.GitHub.BaseURL,
		Clock:   realClock,
		Logger:  logger,
	}
	env := &stage.Env{
		Config:  cfg,
		Store:   badgerStore,
		LiveLog: livelog.NewRedis(redisClient, cfg.Redis.LiveLogPrefix),
		Docker: docker.NewManager(docker.ManagerConfig{
			Engine:            dockerClient,
			ReadinessPolls:    cfg.Docker.ReadinessPolls,
			ReadinessInterval: cfg.Docker.ReadinessInterval,
			Clock:             realClock,
			Logger:            logger,
		}),
		GitHub: factory,
		Reporter: report.New(report.Config{
			Factory:           factory,
			ServerURL:         cfg.Server.URL,
			Context:           cfg.GitHub.StatusContext,
			RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
			Logger:            logger,
		}),
		Agent:  &sshkey.SocketAgent{Lifetime: cfg.Timeouts.Default},
		Clock:  realClock,
		Logger: logger,
	}

	stages := stage.Chain(env)
	names := stage.Names()
	queues := make([]queue.Queue, len(stages))
	for index, key := range pipeline.QueueNames(cfg.Redis.QueuePrefix, names) {
		queues[index] = queue.NewRedis(queue.RedisConfig{
			Client:     redisClient,
			Key:        key,
			PopTimeout: cfg.Redis.PopTimeout,
			Logger:     logger,
		})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	orchestrator, err := pipeline.New(pipeline.Config{
		Stages:  stages,
		Queues:  queues,
		Failure: stage.NewFailureHandler(env),
		Metrics: pipeline.NewMetrics(registry),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if _, err := orchestrator.Recover(ctx); err != nil {
		return fmt.Errorf("recovering in-flight builds: %w", err)
	}

	inbox := queue.NewRedis(queue.RedisConfig{
		Client:     redisClient,
		Key:        schedule.InboxKey(cfg.Redis.QueuePrefix),
		PopTimeout: cfg.Redis.PopTimeout,
		Logger:     logger,
	})
	if _, err := inbox.Recover(ctx); err != nil {
		return fmt.Errorf("recovering trigger inbox: %w", err)
	}
	scheduler := schedule.New(schedule.Config{
		Store:  badgerStore,
		Queue:  queues[0],
		Clock:  realClock,
		Logger: logger,
	})

	opsServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.Server.MetricsAddress,
		Handler: service.NewOpsRouter(service.OpsConfig{
			Gatherer: registry,
			Checks: map[string]service.HealthCheck{
				"redis":  func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
				"docker": dockerClient.Ping,
			},
			Logger: logger,
		}),
		Logger: logger,
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return opsServer.Serve(groupCtx) })
	group.Go(func() error { return orchestrator.Run(groupCtx) })
	group.Go(func() error { return scheduler.Serve(groupCtx, inbox) })

	logger.Info("buildwright-worker running",
		"stages", len(stages),
		"queue_prefix", cfg.Redis.QueuePrefix,
		"ops_address", cfg.Server.MetricsAddress,
	)

	err = group.Wait()
	logger.Info("buildwright-worker stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadConfig reads the config from path, or from $BUILDWRIGHT_CONFIG
// when path is empty, then validates it and creates its directories.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}
