// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import "context"

// authenticator provides Authorization header values for GitHub API
// requests.
type authenticator interface {
	// AuthorizationHeader returns a valid Authorization header value
	// (e.g., "token gho_xxx").
	AuthorizationHeader(ctx context.Context) (string, error)
}

// tokenAuth is a static authenticator for OAuth access tokens and
// personal access tokens. GitHub accepts both under the "token" scheme.
type tokenAuth struct {
	header string
}

func newTokenAuth(token string) *tokenAuth {
	return &tokenAuth{header: "token " + token}
}

func (auth *tokenAuth) AuthorizationHeader(_ context.Context) (string, error) {
	return auth.header, nil
}
