// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/buildwright/lib/schema"
	"github.com/bureau-foundation/buildwright/lib/sshkey"
	"github.com/bureau-foundation/buildwright/lib/store"
)

func newBuilderCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "builder",
		Short: "Manage builder definitions",
	}
	cmd.AddCommand(newBuilderPutCommand(a), newBuilderShowCommand(a))
	return cmd
}

func newBuilderPutCommand(a *app) *cobra.Command {
	var generateKeys bool

	cmd := &cobra.Command{
		Use:   "put <file.jsonc>",
		Short: "Create or update a builder from a JSONC definition",
		Long: `Reads a builder definition (JSON with comments and trailing commas)
and saves it. Without an "id" a new builder is created. Fields the
file leaves empty keep their stored values on update.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			builder, err := parseBuilder(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
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
			if builder.ID == "" {
				builder.ID = uuid.NewString()
			} else {
				existing, err := badgerStore.Builder(ctx, builder.ID)
				switch {
				case err == nil:
					mergeStored(builder, existing)
				case !errors.Is(err, store.ErrNotFound):
					return err
				}
			}
			if builder.CreatedAt.IsZero() {
				builder.CreatedAt = time.Now().UTC()
			}
			if builder.PrivateKey == "" && builder.PublicKey == "" && generateKeys {
				builder.PrivateKey, builder.PublicKey, err = sshkey.Generate("buildwright " + builder.Slug())
				if err != nil {
					return err
				}
			}

			if err := badgerStore.SaveBuilder(ctx, builder); err != nil {
				return err
			}
			a.logger.Info("saved builder", "builder_id", builder.ID, "name", builder.Name)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, builder.ID)
			if builder.PublicKey != "" {
				fmt.Fprintf(out, "deploy key: %s", builder.PublicKey)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&generateKeys, "generate-keys", true, "generate a deploy key pair when the definition has none")
	return cmd
}

func newBuilderShowCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show <builder-id>",
		Short: "Show a builder and its most recent builds",
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

			ctx := cmd.Context()
			builder, err := badgerStore.Builder(ctx, args[0])
			if err != nil {
				return fmt.Errorf("builder %s: %w", args[0], err)
			}
			builds, err := badgerStore.BuildsForBuilder(ctx, builder.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			redacted := *builder
			if redacted.PrivateKey != "" {
				redacted.PrivateKey = "<redacted>"
			}
			encoded, err := json.MarshalIndent(&redacted, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", encoded)

			if len(builds) == 0 {
				fmt.Fprintln(out, "\nno builds")
				return nil
			}
			if limit > 0 && len(builds) > limit {
				builds = builds[len(builds)-limit:]
			}
			fmt.Fprintln(out)
			writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "BUILD\tSTATUS\tBRANCH\tCOMMIT\tCREATED")
			for index := len(builds) - 1; index >= 0; index-- {
				build := builds[index]
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
					build.ID, build.Status, build.Branch, shortCommit(build.Commit),
					build.CreatedAt.Format(time.RFC3339))
			}
			return writer.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of builds to list (0 for all)")
	return cmd
}

// parseBuilder decodes a JSONC builder definition. Unknown fields are
// rejected so a typo does not silently drop a setting.
func parseBuilder(data []byte) (*schema.Builder, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()
	var builder schema.Builder
	if err := decoder.Decode(&builder); err != nil {
		return nil, fmt.Errorf("parsing builder definition: %w", err)
	}

	var errs []error
	if builder.Name == "" {
		errs = append(errs, errors.New("name is required"))
	} else if builder.Slug() == "" {
		errs = append(errs, fmt.Errorf("name %q has no word characters", builder.Name))
	}
	if builder.GitURI == "" {
		errs = append(errs, errors.New("git_uri is required"))
	}
	if builder.CloneTimeout < 0 || builder.BuildTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if (builder.PrivateKey == "") != (builder.PublicKey == "") {
		errs = append(errs, errors.New("id_rsa_private and id_rsa_public must be set together"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &builder, nil
}

// mergeStored fills fields the definition left empty from the stored
// builder. Pipeline-owned fields always keep their stored values.
func mergeStored(builder, existing *schema.Builder) {
	builder.CreatedAt = existing.CreatedAt
	builder.Status = existing.Status
	builder.HookData = existing.HookData
	if builder.CreatorID == "" {
		builder.CreatorID = existing.CreatorID
	}
	if builder.Branch == "" {
		builder.Branch = existing.Branch
	}
	if builder.ShellScript == "" {
		builder.ShellScript = existing.ShellScript
	}
	if builder.PrivateKey == "" && builder.PublicKey == "" {
		builder.PrivateKey = existing.PrivateKey
		builder.PublicKey = existing.PublicKey
	}
	if builder.CloneTimeout == 0 {
		builder.CloneTimeout = existing.CloneTimeout
	}
	if builder.BuildTimeout == 0 {
		builder.BuildTimeout = existing.BuildTimeout
	}
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
