// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// buildwright is the operator CLI: it stores builder definitions,
// triggers builds on a running worker, shows build records, and
// installs or removes GitHub webhooks.
//
// Commands that read or write the store (builder, build show, hooks)
// open it directly and take badger's directory lock, so they run while
// buildwright-worker is stopped. trigger and build tail only talk to
// Redis and work against a live worker.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/bureau-foundation/buildwright/lib/config"
	"github.com/bureau-foundation/buildwright/lib/process"
	"github.com/bureau-foundation/buildwright/lib/store"
	"github.com/bureau-foundation/buildwright/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(&app{logOutput: os.Stderr}).ExecuteContext(ctx); err != nil {
		process.Fatal(err)
	}
}

// app carries the global flags to every command.
type app struct {
	configPath string
	debug      bool
	logger     *slog.Logger
	logOutput  io.Writer

	// httpClient is used for GitHub calls. Nil selects
	// http.DefaultClient.
	httpClient *http.Client
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "buildwright",
		Short:         "Operate the buildwright CI build executor",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to the YAML config (default: $"+config.EnvironmentVariable+")")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "log at debug level")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if a.debug {
			level = slog.LevelDebug
		}
		a.logger = slog.New(slog.NewTextHandler(a.logOutput, &slog.HandlerOptions{Level: level}))
		return nil
	}

	root.AddCommand(
		newBuilderCommand(a),
		newTriggerCommand(a),
		newBuildCommand(a),
		newHooksCommand(a),
		newVersionCommand(),
	)
	return root
}

func (a *app) config() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openStore opens the worker's badger store. The caller closes it.
func (a *app) openStore(cfg *config.Config) (*store.Badger, error) {
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	badgerStore, err := store.OpenBadger(store.BadgerConfig{Path: cfg.Paths.Data, Logger: a.logger})
	if err != nil {
		return nil, fmt.Errorf("%w (the store is locked while buildwright-worker runs)", err)
	}
	return badgerStore, nil
}

// redis connects to the configured Redis. The caller closes it.
func (a *app) redis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Address, err)
	}
	return client, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "buildwright %s\n", version.Full())
			if digest, _, err := version.SelfDigest(); err == nil {
				fmt.Fprintf(out, "  Digest: %s\n", digest)
			}
			return nil
		},
	}
}
