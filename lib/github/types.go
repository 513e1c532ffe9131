// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"encoding/json"
	"time"
)

// Webhook is a GitHub webhook configuration.
type Webhook struct {
	ID     int64         `json:"id"`
	Name   string        `json:"name"`
	Active bool          `json:"active"`
	Events []string      `json:"events"`
	Config WebhookConfig `json:"config"`

	// Raw is the response body the webhook was decoded from.
	Raw json.RawMessage `json:"-"`
}

// WebhookConfig holds the webhook endpoint configuration.
type WebhookConfig struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Secret      string `json:"secret,omitempty"` // masked in responses
	InsecureSSL string `json:"insecure_ssl"`
}

// CommitStatus is a GitHub commit status.
type CommitStatus struct {
	ID          int64     `json:"id"`
	State       string    `json:"state"` // "error", "failure", "pending", "success"
	TargetURL   string    `json:"target_url"`
	Description string    `json:"description"`
	Context     string    `json:"context"`
	CreatedAt   time.Time `json:"created_at"`

	Raw json.RawMessage `json:"-"`
}

// DeployKey is an SSH key with access to a single repository.
type DeployKey struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	ReadOnly  bool      `json:"read_only"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`

	Raw json.RawMessage `json:"-"`
}
