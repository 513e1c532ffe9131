// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package report mirrors build status onto the GitHub commit that is
// being built, as a commit status.
//
// Reporting is best effort. A build never fails because its status
// could not be reported: every problem is logged and the call returns.
package report

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/buildwright/lib/git"
	"github.com/bureau-foundation/buildwright/lib/github"
	"github.com/bureau-foundation/buildwright/lib/schema"
)

// DefaultContext is the commit status context builds report under.
const DefaultContext = "continuous-integration/buildwright"

// Config configures a Reporter.
type Config struct {
	// Factory creates a GitHub client for each build's access token.
	Factory github.Factory

	// ServerURL is the web front-end that build links point to.
	ServerURL string

	// Context is the commit status context. Defaults to DefaultContext.
	Context string

	// RequestsPerSecond caps status calls across all builds. Zero
	// disables the cap.
	RequestsPerSecond float64

	Logger *slog.Logger
}

// Reporter sends commit statuses.
type Reporter struct {
	factory   github.Factory
	serverURL string
	context   string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates a Reporter.
func New(config Config) *Reporter {
	statusContext := config.Context
	if statusContext == "" {
		statusContext = DefaultContext
	}
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		factory:   config.Factory,
		serverURL: config.ServerURL,
		context:   statusContext,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

// State maps a build status to a commit status state. ok is false for
// statuses that are not reported.
func State(status schema.BuildStatus) (state string, ok bool) {
	switch status {
	case schema.StatusRunning:
		return "pending", true
	case schema.StatusFailed:
		return "failure", true
	case schema.StatusSucceeded:
		return "success", true
	}
	return "", false
}

// Report sends the build's current status to GitHub on behalf of the
// user owning accessToken. On success the raw response is cached in
// build.GitHubStatusData; the caller persists the build.
func (r *Reporter) Report(ctx context.Context, build *schema.Build, accessToken string) {
	state, ok := State(build.Status)
	if !ok {
		return
	}
	logger := r.logger.With("build_id", build.ID, "status", build.Status)

	if accessToken == "" {
		logger.Info("skipping commit status: no access token")
		return
	}
	owner, repo, ok := git.ParseRepository(build.GitURI)
	if !ok {
		logger.Warn("skipping commit status: not a GitHub repository", "git_uri", build.GitURI)
		return
	}
	if build.Commit == "" {
		logger.Info("skipping commit status: commit not known yet")
		return
	}

	client, err := r.factory.Client(accessToken)
	if err != nil {
		logger.Error("creating GitHub client", "error", err)
		return
	}
	if err := r.limiter.Wait(ctx); err != nil {
		logger.Warn("commit status abandoned", "error", err)
		return
	}

	status, err := client.CreateCommitStatus(ctx, owner, repo, build.Commit, github.CreateStatusRequest{
		State:       state,
		TargetURL:   schema.BuildURL(r.serverURL, build.BuilderID, build.ID),
		Description: "build " + string(build.Status),
		Context:     r.context,
	})
	if err != nil {
		if github.IsRateLimited(err) {
			logger.Warn("commit status rate limited", "error", err)
		} else {
			logger.Error("creating commit status", "error", err)
		}
		return
	}
	build.GitHubStatusData = string(status.Raw)
	logger.Info("reported commit status", "state", state, "repository", owner+"/"+repo)
}
