// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
)

// CreateWebhookRequest contains the fields for creating a repository
// webhook.
type CreateWebhookRequest struct {
	// Name must be "web" for repository webhooks.
	Name string `json:"name"`

	// Events is the list of event types to deliver. Use ["*"] for all events.
	Events []string `json:"events"`

	// Config holds the webhook endpoint configuration.
	Config CreateWebhookConfig `json:"config"`

	// Active enables or disables the webhook. Defaults to true.
	Active *bool `json:"active,omitempty"`
}

// CreateWebhookConfig is the webhook endpoint configuration for creation.
type CreateWebhookConfig struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"` // "json" or "form"
	Secret      string `json:"secret,omitempty"`
	InsecureSSL string `json:"insecure_ssl,omitempty"` // "0" (verify) or "1" (skip)
}

// ListRepoWebhooks returns the webhooks configured on a repository.
// Only the first page (GitHub's default of 30) is returned; a build
// server installs at most one hook per builder.
func (client *Client) ListRepoWebhooks(ctx context.Context, owner, repo string) ([]Webhook, error) {
	var webhooks []Webhook
	path := fmt.Sprintf("/repos/%s/%s/hooks", owner, repo)
	if err := client.get(ctx, path, &webhooks); err != nil {
		return nil, fmt.Errorf("listing webhooks on %s/%s: %w", owner, repo, err)
	}
	return webhooks, nil
}

// CreateRepoWebhook creates a webhook on a repository.
func (client *Client) CreateRepoWebhook(ctx context.Context, owner, repo string, request CreateWebhookRequest) (*Webhook, error) {
	var webhook Webhook
	path := fmt.Sprintf("/repos/%s/%s/hooks", owner, repo)
	raw, err := client.post(ctx, path, request, &webhook)
	if err != nil {
		return nil, fmt.Errorf("creating webhook on %s/%s: %w", owner, repo, err)
	}
	webhook.Raw = raw
	return &webhook, nil
}

// DeleteRepoWebhook deletes a repository webhook.
func (client *Client) DeleteRepoWebhook(ctx context.Context, owner, repo string, hookID int64) error {
	path := fmt.Sprintf("/repos/%s/%s/hooks/%d", owner, repo, hookID)
	if err := client.delete(ctx, path); err != nil {
		return fmt.Errorf("deleting webhook %d on %s/%s: %w", hookID, owner, repo, err)
	}
	return nil
}
