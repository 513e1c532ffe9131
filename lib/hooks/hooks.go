// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hooks installs and removes the GitHub webhooks that let a
// repository trigger builds on push and pull request events.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/buildwright/lib/git"
	"github.com/bureau-foundation/buildwright/lib/github"
	"github.com/bureau-foundation/buildwright/lib/schema"
)

// Events are the GitHub events a build webhook subscribes to.
var Events = []string{"push", "pull_request"}

// Manager installs and cleans up builder webhooks.
type Manager struct {
	factory   github.Factory
	serverURL string
	logger    *slog.Logger
}

// New creates a Manager for hooks that deliver to serverURL.
func New(factory github.Factory, serverURL string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{factory: factory, serverURL: strings.TrimRight(serverURL, "/"), logger: logger}
}

// HookURL returns the delivery URL of a builder's webhook.
func (m *Manager) HookURL(builderID string) string {
	return m.serverURL + "/api/hooks/" + builderID
}

func (m *Manager) target(builder *schema.Builder, token string) (*github.Client, string, string, error) {
	owner, repo, ok := git.ParseRepository(builder.GitURI)
	if !ok {
		return nil, "", "", fmt.Errorf("builder %s: %q is not a GitHub repository", builder.ID, builder.GitURI)
	}
	client, err := m.factory.Client(token)
	if err != nil {
		return nil, "", "", err
	}
	return client, owner, repo, nil
}

// Install creates the builder's webhook and caches GitHub's response
// in builder.HookData. The caller persists the builder.
func (m *Manager) Install(ctx context.Context, builder *schema.Builder, token string) (*github.Webhook, error) {
	client, owner, repo, err := m.target(builder, token)
	if err != nil {
		return nil, err
	}
	active := true
	webhook, err := client.CreateRepoWebhook(ctx, owner, repo, github.CreateWebhookRequest{
		Name:   "web",
		Events: Events,
		Active: &active,
		Config: github.CreateWebhookConfig{
			URL:         m.HookURL(builder.ID),
			ContentType: "json",
		},
	})
	if err != nil {
		return nil, err
	}
	builder.HookData = string(webhook.Raw)
	m.logger.Info("installed webhook", "builder_id", builder.ID, "repository", owner+"/"+repo, "hook_id", webhook.ID)
	return webhook, nil
}

// Cleanup deletes every webhook on the builder's repository that
// delivers to this server. Hooks of other services are left alone.
// Returns the number deleted; a hook that is already gone counts as
// deleted.
func (m *Manager) Cleanup(ctx context.Context, builder *schema.Builder, token string) (int, error) {
	client, owner, repo, err := m.target(builder, token)
	if err != nil {
		return 0, err
	}
	webhooks, err := client.ListRepoWebhooks(ctx, owner, repo)
	if err != nil {
		return 0, err
	}

	deleted := 0
	var errs []error
	for _, webhook := range webhooks {
		if !strings.HasPrefix(webhook.Config.URL, m.serverURL) {
			continue
		}
		err := client.DeleteRepoWebhook(ctx, owner, repo, webhook.ID)
		if err != nil && !github.IsNotFound(err) {
			errs = append(errs, err)
			continue
		}
		deleted++
		m.logger.Info("deleted webhook", "builder_id", builder.ID, "repository", owner+"/"+repo, "hook_id", webhook.ID)
	}
	return deleted, errors.Join(errs...)
}
