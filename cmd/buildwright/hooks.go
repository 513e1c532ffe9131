// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bureau-foundation/buildwright/lib/github"
	"github.com/bureau-foundation/buildwright/lib/hooks"
	"github.com/bureau-foundation/buildwright/lib/schema"
)

// hookAction changes a builder's webhooks. The builder is saved after
// it returns, even on error, so a partial cleanup is recorded.
type hookAction func(ctx context.Context, manager *hooks.Manager, builder *schema.Builder, token string, out io.Writer) error

func newHooksCommand(a *app) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Manage a builder's GitHub webhooks",
	}
	cmd.PersistentFlags().StringVar(&token, "token", "", "GitHub access token with admin:repo_hook scope (default: $GITHUB_TOKEN)")

	run := func(cmd *cobra.Command, builderID string, action hookAction) error {
		if token == "" {
			token = os.Getenv("GITHUB_TOKEN")
		}
		if token == "" {
			return errors.New("a GitHub token is required (--token or $GITHUB_TOKEN)")
		}

		cfg, err := a.config()
		if err != nil {
			return err
		}
		badgerStore, err := a.openStore(cfg)
		if err != nil {
			return err
		}
		defer badgerStore.Close()

		ctx := cmd.Context()
		builder, err := badgerStore.Builder(ctx, builderID)
		if err != nil {
			return fmt.Errorf("builder %s: %w", builderID, err)
		}
		factory := github.Factory{BaseURL: cfg.GitHub.BaseURL, HTTPClient: a.httpClient, Logger: a.logger}
		manager := hooks.New(factory, cfg.Server.URL, a.logger)

		actionErr := action(ctx, manager, builder, token, cmd.OutOrStdout())
		if err := badgerStore.SaveBuilder(ctx, builder); err != nil {
			return errors.Join(actionErr, err)
		}
		return actionErr
	}

	install := &cobra.Command{
		Use:   "install <builder-id>",
		Short: "Create the builder's push and pull_request webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], installHook)
		},
	}
	cleanup := &cobra.Command{
		Use:   "cleanup <builder-id>",
		Short: "Delete the webhooks of the builder's repository that deliver to this server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], cleanupHooks)
		},
	}

	cmd.AddCommand(install, cleanup)
	return cmd
}

func installHook(ctx context.Context, manager *hooks.Manager, builder *schema.Builder, token string, out io.Writer) error {
	webhook, err := manager.Install(ctx, builder, token)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "installed webhook %d delivering to %s\n", webhook.ID, manager.HookURL(builder.ID))
	return nil
}

func cleanupHooks(ctx context.Context, manager *hooks.Manager, builder *schema.Builder, token string, out io.Writer) error {
	deleted, err := manager.Cleanup(ctx, builder, token)
	fmt.Fprintf(out, "deleted %d webhook(s)\n", deleted)
	if err != nil {
		return err
	}
	builder.HookData = ""
	return nil
}
