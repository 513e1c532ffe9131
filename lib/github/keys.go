// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
)

// CreateDeployKeyRequest contains the fields for adding a deploy key
// to a repository.
type CreateDeployKeyRequest struct {
	Title string `json:"title"`

	// Key is the public key in OpenSSH authorized_keys form.
	Key string `json:"key"`

	ReadOnly bool `json:"read_only"`
}

// CreateDeployKey adds a deploy key to a repository. GitHub rejects a
// key that is already registered with a 422 "key is already in use",
// which IsValidationFailed matches.
func (client *Client) CreateDeployKey(ctx context.Context, owner, repo string, request CreateDeployKeyRequest) (*DeployKey, error) {
	var key DeployKey
	path := fmt.Sprintf("/repos/%s/%s/keys", owner, repo)
	raw, err := client.post(ctx, path, request, &key)
	if err != nil {
		return nil, fmt.Errorf("adding deploy key to %s/%s: %w", owner, repo, err)
	}
	key.Raw = raw
	return &key, nil
}
