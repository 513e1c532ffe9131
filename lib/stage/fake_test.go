// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bureau-foundation/buildwright/lib/docker"
)

// fakeEngine is an in-memory docker.Engine. Calls are recorded as
// "<operation> <name>".
type fakeEngine struct {
	mu         sync.Mutex
	calls      []string
	containers map[string]*fakeContainer
	nextID     int

	logs     string
	exitCode int

	failBuild  bool
	failRemove bool

	// onStart runs after a container starts, with the engine unlocked.
	onStart func(name string)
}

type fakeContainer struct {
	name    string
	running bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{containers: make(map[string]*fakeContainer)}
}

func (e *fakeEngine) record(operation, subject string) {
	e.calls = append(e.calls, operation+" "+subject)
}

func (e *fakeEngine) callLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// running returns the names of running containers.
func (e *fakeEngine) running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var names []string
	for _, container := range e.containers {
		if container.running {
			names = append(names, container.name)
		}
	}
	return names
}

func (e *fakeEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.containers)
}

func (e *fakeEngine) nameOf(id string) string {
	if container, ok := e.containers[id]; ok {
		return container.name
	}
	return id
}

func (e *fakeEngine) PullImage(_ context.Context, ref string) (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("pull", ref)
	return io.NopCloser(strings.NewReader(`{"status":"Pull complete"}` + "\n")), nil
}

func (e *fakeEngine) ListContainers(context.Context) ([]docker.ContainerSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("list", "")
	var summaries []docker.ContainerSummary
	for id, container := range e.containers {
		summaries = append(summaries, docker.ContainerSummary{ID: id, Names: []string{"/" + container.name}})
	}
	return summaries, nil
}

func (e *fakeEngine) InspectContainer(_ context.Context, id string) (docker.ContainerInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("inspect", e.nameOf(id))
	container, ok := e.containers[id]
	if !ok {
		return docker.ContainerInfo{}, docker.ErrNotFound
	}
	return docker.ContainerInfo{ID: id, Name: "/" + container.name, Running: container.running}, nil
}

func (e *fakeEngine) CreateContainer(_ context.Context, spec docker.ContainerSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := fmt.Sprintf("c%d", e.nextID)
	e.containers[id] = &fakeContainer{name: spec.Name}
	e.record("create", spec.Name)
	return id, nil
}

func (e *fakeEngine) StartContainer(_ context.Context, id string) error {
	e.mu.Lock()
	e.record("start", e.nameOf(id))
	e.containers[id].running = true
	name := e.containers[id].name
	onStart := e.onStart
	e.mu.Unlock()
	if onStart != nil {
		onStart(name)
	}
	return nil
}

func (e *fakeEngine) StopContainer(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("stop", e.nameOf(id))
	container, ok := e.containers[id]
	if !ok {
		return docker.ErrNotFound
	}
	container.running = false
	return nil
}

func (e *fakeEngine) RemoveContainer(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("remove", e.nameOf(id))
	if _, ok := e.containers[id]; !ok {
		return docker.ErrNotFound
	}
	if e.failRemove {
		return errors.New("removal already in progress")
	}
	delete(e.containers, id)
	return nil
}

func (e *fakeEngine) BuildImage(_ context.Context, buildContext io.Reader, spec docker.BuildSpec) (io.ReadCloser, error) {
	io.Copy(io.Discard, buildContext)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("build", strings.Join(spec.Tags, ","))
	if e.failBuild {
		return nil, errors.New("cannot connect to the docker daemon")
	}
	return io.NopCloser(strings.NewReader(`{"stream":"Step 1/4 : FROM alpine\n"}` + "\n")), nil
}

func (e *fakeEngine) ContainerLogs(_ context.Context, id string) (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("logs", e.nameOf(id))
	return io.NopCloser(strings.NewReader(e.logs)), nil
}

func (e *fakeEngine) WaitContainer(_ context.Context, id string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("wait", e.nameOf(id))
	if container, ok := e.containers[id]; ok {
		container.running = false
	}
	return e.exitCode, nil
}

func dockerSpec(name string) docker.ContainerSpec {
	return docker.ContainerSpec{Name: name, Hostname: name}
}
