// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bureau-foundation/buildwright/lib/livelog"
	"github.com/bureau-foundation/buildwright/lib/schema"
)

func newBuildCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Inspect builds",
	}
	cmd.AddCommand(newBuildShowCommand(a), newBuildTailCommand(a))
	return cmd
}

func newBuildShowCommand(a *app) *cobra.Command {
	var showStderr bool

	cmd := &cobra.Command{
		Use:   "show <build-id>",
		Short: "Print a build record and its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			badgerStore, err := a.openStore(cfg)
			if err != nil {
				return err
			}
			defer badgerStore.Close()

			build, err := badgerStore.Build(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("build %s: %w", args[0], err)
			}
			writeBuild(cmd.OutOrStdout(), build, cfg.Server.URL, showStderr)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showStderr, "stderr", false, "also print the build's stderr")
	return cmd
}

func writeBuild(out io.Writer, build *schema.Build, serverURL string, showStderr bool) {
	fmt.Fprintf(out, "build     %s\n", build.ID)
	fmt.Fprintf(out, "builder   %s\n", build.BuilderID)
	fmt.Fprintf(out, "status    %s\n", build.Status)
	fmt.Fprintf(out, "source    %s@%s\n", build.GitURI, build.Branch)
	if build.Commit != "" {
		fmt.Fprintf(out, "commit    %s %s <%s>\n", build.Commit, build.AuthorName, build.AuthorEmail)
		if subject, _, _ := strings.Cut(build.CommitMessage, "\n"); subject != "" {
			fmt.Fprintf(out, "          %s\n", subject)
		}
	}
	if build.ExitCode != nil {
		fmt.Fprintf(out, "exit code %d\n", *build.ExitCode)
	}
	fmt.Fprintf(out, "created   %s\n", build.CreatedAt.Format(time.RFC3339))
	if !build.FinishedAt.IsZero() {
		fmt.Fprintf(out, "finished  %s (%s)\n", build.FinishedAt.Format(time.RFC3339),
			build.FinishedAt.Sub(build.CreatedAt).Round(time.Second))
	}
	fmt.Fprintf(out, "link      %s\n", schema.BuildURL(serverURL, build.BuilderID, build.ID))

	fmt.Fprintf(out, "\n%s", build.Stdout)
	if showStderr && build.Stderr != "" {
		fmt.Fprintf(out, "\nstderr:\n%s", build.Stderr)
	}
}

func newBuildTailCommand(a *app) *cobra.Command {
	var (
		follow   bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "tail <build-id>",
		Short: "Print a build's live output from Redis",
		Long: `Reads the live-log mirror the worker keeps in Redis. With --follow,
new output is printed as it arrives until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			cache := livelog.NewRedis(client, cfg.Redis.LiveLogPrefix)
			out := cmd.OutOrStdout()
			printed := 0
			for {
				text, err := cache.Read(ctx, args[0], livelog.Stdout)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				// The mirror only grows until it expires.
				if len(text) > printed {
					io.WriteString(out, text[printed:])
					printed = len(text)
				}
				if !follow {
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new output")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval with --follow")
	return cmd
}
