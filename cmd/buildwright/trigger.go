// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bureau-foundation/buildwright/lib/queue"
	"github.com/bureau-foundation/buildwright/lib/schedule"
)

func newTriggerCommand(a *app) *cobra.Command {
	var request schedule.Request

	cmd := &cobra.Command{
		Use:   "trigger <builder-id>",
		Short: "Ask the running worker to build a builder",
		Long: `Puts a trigger on the worker's inbox. The worker creates the build
and schedules it; follow it with "buildwright builder show" once the
worker is stopped, or "buildwright build tail" while it runs.

The GitHub token defaults to $GITHUB_TOKEN. Without one the build runs
but no deploy key is pushed and no commit status is reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request.BuilderID = args[0]
			if request.AccessToken == "" {
				request.AccessToken = os.Getenv("GITHUB_TOKEN")
			}

			cfg, err := a.config()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			client, err := a.redis(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			inbox := queue.NewRedis(queue.RedisConfig{
				Client: client,
				Key:    schedule.InboxKey(cfg.Redis.QueuePrefix),
				Logger: a.logger,
			})
			if err := schedule.Submit(ctx, inbox, request); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trigger queued for builder %s\n", request.BuilderID)
			return nil
		},
	}
	cmd.Flags().StringVar(&request.Branch, "branch", "", "branch to build (default: the builder's branch)")
	cmd.Flags().StringVar(&request.Commit, "commit", "", "commit to check out after the clone")
	cmd.Flags().StringVar(&request.AccessToken, "token", "", "GitHub access token (default: $GITHUB_TOKEN)")
	return cmd
}
