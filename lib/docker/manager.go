// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/bureau-foundation/buildwright/lib/clock"
	"github.com/bureau-foundation/buildwright/lib/schema"
)

// Output receives what the Manager has to say about a build. The
// per-build record implements it.
type Output interface {
	AppendStdout(text string)

	// RegisterDockerStatus records one line of engine output: JSON
	// replaces the build's docker status, plain text goes to stdout.
	RegisterDockerStatus(line string)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Engine Engine

	// ReadinessPolls is how many "waiting N/M" rounds follow a
	// dependency start. Defaults to 3.
	ReadinessPolls int

	// ReadinessInterval is the pause after each round. Defaults to
	// one second.
	ReadinessInterval time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Manager runs the container side of a build.
type Manager struct {
	engine            Engine
	readinessPolls    int
	readinessInterval time.Duration
	clock             clock.Clock
	logger            *slog.Logger
}

// NewManager creates a Manager.
func NewManager(config ManagerConfig) *Manager {
	manager := &Manager{
		engine:            config.Engine,
		readinessPolls:    config.ReadinessPolls,
		readinessInterval: config.ReadinessInterval,
		clock:             config.Clock,
		logger:            config.Logger,
	}
	if manager.readinessPolls <= 0 {
		manager.readinessPolls = 3
	}
	if manager.readinessInterval <= 0 {
		manager.readinessInterval = time.Second
	}
	if manager.clock == nil {
		manager.clock = clock.Real()
	}
	if manager.logger == nil {
		manager.logger = slog.Default()
	}
	return manager
}

// NormalizeImage adds the ":latest" tag to an image reference that has
// neither a tag nor a digest.
func NormalizeImage(ref string) string {
	if strings.Contains(ref, "@") {
		return ref
	}
	lastSlash := strings.LastIndex(ref, "/")
	if strings.Contains(ref[lastSlash+1:], ":") {
		return ref
	}
	return ref + ":latest"
}

// namesConflict reports whether a and b collide: either contains the
// other. An empty name collides with nothing.
func namesConflict(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// ResolveConflicts stops and force-removes every existing container
// whose name collides with name, typically leftovers of an earlier
// attempt of the same build. Failures to stop or remove are recorded
// on out and do not stop the sweep; only a failure to list containers
// is returned.
func (m *Manager) ResolveConflicts(ctx context.Context, name string, out Output) error {
	containers, err := m.engine.ListContainers(ctx)
	if err != nil {
		return err
	}
	for _, summary := range containers {
		for _, raw := range summary.Names {
			existing := strings.TrimPrefix(raw, "/")
			if !namesConflict(existing, name) {
				continue
			}
			m.logger.Info("removing conflicting container", "name", existing, "wanted", name)
			m.stopAndRemove(ctx, summary.ID, existing, out)
			break
		}
	}
	return nil
}

// Pull pulls an image, recording every progress line and printing a
// dot per line so a slow pull is visibly alive.
func (m *Manager) Pull(ctx context.Context, ref string, out Output) error {
	ref = NormalizeImage(ref)
	out.AppendStdout("pulling " + ref)
	body, err := m.engine.PullImage(ctx, ref)
	if err != nil {
		out.AppendStdout("\n")
		return err
	}
	defer body.Close()

	err = scanProgress(body, func(line string, message progressMessage) {
		out.RegisterDockerStatus(line)
		out.AppendStdout(".")
	})
	out.AppendStdout("\n")
	if err != nil {
		return fmt.Errorf("pulling %s: %w", ref, err)
	}
	return nil
}

// StartDependency runs one dependency service: clear name conflicts,
// pull, create, start, wait out the readiness rounds, then read back
// the container's name. A handle is returned as soon as the container
// exists, even when a later step fails, so the caller can tear it
// down.
func (m *Manager) StartDependency(ctx context.Context, dependency schema.Dependency, out Output) (*schema.DependencyContainer, error) {
	if err := m.ResolveConflicts(ctx, dependency.Hostname, out); err != nil {
		return nil, err
	}
	if err := m.Pull(ctx, dependency.Image, out); err != nil {
		return nil, err
	}

	image := NormalizeImage(dependency.Image)
	id, err := m.engine.CreateContainer(ctx, ContainerSpec{
		Name:     dependency.Hostname,
		Hostname: dependency.Hostname,
		Image:    image,
		Env:      dependency.Environment,
	})
	if err != nil {
		return nil, err
	}
	handle := &schema.DependencyContainer{
		Image:       image,
		Hostname:    dependency.Hostname,
		Environment: dependency.Environment,
		ContainerID: id,
		Name:        dependency.Hostname,
	}

	if err := m.engine.StartContainer(ctx, id); err != nil {
		return handle, err
	}
	for round := 1; round <= m.readinessPolls; round++ {
		line := fmt.Sprintf("waiting %d/%d\n", round, m.readinessPolls)
		status, _ := json.Marshal(map[string]string{"status": "waiting", "stream": line})
		out.RegisterDockerStatus(string(status))
		out.AppendStdout(line)
		m.clock.Sleep(m.readinessInterval)
	}

	info, err := m.engine.InspectContainer(ctx, id)
	if err != nil {
		return handle, err
	}
	if name := strings.TrimPrefix(info.Name, "/"); name != "" {
		handle.Name = name
	}
	return handle, nil
}

// Teardown stops and force-removes each container. Every failure is
// recorded on out and the loop moves on; the joined failures are
// returned for the caller to log. Containers that no longer exist are
// not failures.
func (m *Manager) Teardown(ctx context.Context, containers []schema.DependencyContainer, out Output) error {
	var errs []error
	for _, handle := range containers {
		if handle.ContainerID == "" {
			continue
		}
		errs = append(errs, m.stopAndRemove(ctx, handle.ContainerID, handle.Name, out)...)
	}
	return errors.Join(errs...)
}

func (m *Manager) stopAndRemove(ctx context.Context, id, name string, out Output) []error {
	var errs []error
	if err := m.engine.StopContainer(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		errs = append(errs, err)
		recordFailure(out, "stop", name, err)
	}
	if err := m.engine.RemoveContainer(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		errs = append(errs, err)
		recordFailure(out, "remove", name, err)
	}
	return errs
}

func recordFailure(out Output, operation, name string, err error) {
	status, _ := json.Marshal(map[string]string{
		"status":    operation + " failed",
		"container": name,
		"error":     err.Error(),
	})
	out.RegisterDockerStatus(string(status))
	out.AppendStdout(fmt.Sprintf("failed to %s container %s: %v\n", operation, name, err))
}

// progressMessage is one line of pull or build progress.
type progressMessage struct {
	Status string `json:"status"`
	Stream string `json:"stream"`
	Error  string `json:"error"`
}

// scanProgress calls handle for each non-blank line of an engine
// progress stream and returns the first error the engine reported in
// the stream, or a read error.
func scanProgress(body io.Reader, handle func(line string, message progressMessage)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var reported error
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var message progressMessage
		_ = json.Unmarshal([]byte(line), &message)
		handle(line, message)
		if message.Error != "" && reported == nil {
			reported = errors.New(message.Error)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return reported
}
