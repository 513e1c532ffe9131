// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package github provides a typed Go client for the small part of the
// GitHub REST API a build worker needs: deploy keys, repository
// webhooks, and commit statuses.
//
// The client authenticates with the OAuth access token of the user who
// triggered the build ("Authorization: token ..."). It handles rate
// limiting (X-RateLimit-* headers with automatic backoff) and maps
// non-2xx responses to *APIError, which keeps the raw response body so
// callers can record it verbatim in build output.
//
// All requests are made over HTTPS. The client refuses non-HTTPS base URLs.
package github
