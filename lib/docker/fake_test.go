// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docker

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// fakeEngine is an in-memory Engine. Containers are keyed by ID; calls
// are recorded in order as "<operation> <subject>".
type fakeEngine struct {
	mu         sync.Mutex
	calls      []string
	containers map[string]*fakeContainer
	nextID     int

	pullOutput  string
	buildOutput string
	logs        string
	exitCode    int

	// blockLogs makes ContainerLogs return a stream that stays open
	// until the container is stopped.
	blockLogs bool

	failStart  bool
	failStop   bool
	failRemove bool

	builtContext map[string]string
	buildSpec    BuildSpec
	created      []ContainerSpec
}

type fakeContainer struct {
	name    string
	running bool
	stopped chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		containers: make(map[string]*fakeContainer),
		pullOutput: `{"status":"Pulling from library/redis"}` + "\n" + `{"status":"Download complete"}` + "\n",
	}
}

func (e *fakeEngine) record(format string, args ...any) {
	e.calls = append(e.calls, fmt.Sprintf(format, args...))
}

func (e *fakeEngine) callLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// addContainer registers a pre-existing container.
func (e *fakeEngine) addContainer(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := fmt.Sprintf("c%d", e.nextID)
	e.containers[id] = &fakeContainer{name: name, running: true, stopped: make(chan struct{})}
	return id
}

func (e *fakeEngine) PullImage(_ context.Context, ref string) (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("pull %s", ref)
	return io.NopCloser(strings.NewReader(e.pullOutput)), nil
}

func (e *fakeEngine) ListContainers(context.Context) ([]ContainerSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("list")
	var summaries []ContainerSummary
	for id, container := range e.containers {
		summaries = append(summaries, ContainerSummary{ID: id, Names: []string{"/" + container.name}})
	}
	return summaries, nil
}

func (e *fakeEngine) InspectContainer(_ context.Context, id string) (ContainerInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("inspect %s", id)
	container, ok := e.containers[id]
	if !ok {
		return ContainerInfo{}, fmt.Errorf("inspect %s: %w", id, ErrNotFound)
	}
	return ContainerInfo{ID: id, Name: "/" + container.name, Running: container.running}, nil
}

func (e *fakeEngine) CreateContainer(_ context.Context, spec ContainerSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := fmt.Sprintf("c%d", e.nextID)
	e.record("create %s", spec.Name)
	e.created = append(e.created, spec)
	e.containers[id] = &fakeContainer{name: spec.Name, stopped: make(chan struct{})}
	return id, nil
}

func (e *fakeEngine) StartContainer(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("start %s", id)
	if e.failStart {
		return fmt.Errorf("port is already allocated")
	}
	e.containers[id].running = true
	return nil
}

func (e *fakeEngine) StopContainer(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("stop %s", id)
	container, ok := e.containers[id]
	if !ok {
		return fmt.Errorf("stop %s: %w", id, ErrNotFound)
	}
	if e.failStop {
		return fmt.Errorf("daemon busy")
	}
	if container.running {
		container.running = false
		close(container.stopped)
	}
	return nil
}

func (e *fakeEngine) RemoveContainer(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("remove %s", id)
	if _, ok := e.containers[id]; !ok {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	if e.failRemove {
		return fmt.Errorf("removal in progress")
	}
	delete(e.containers, id)
	return nil
}

func (e *fakeEngine) BuildImage(_ context.Context, buildContext io.Reader, spec BuildSpec) (io.ReadCloser, error) {
	files, err := readContext(buildContext)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("build %s", strings.Join(spec.Tags, ","))
	e.builtContext = files
	e.buildSpec = spec
	return io.NopCloser(strings.NewReader(e.buildOutput)), nil
}

func (e *fakeEngine) ContainerLogs(_ context.Context, id string) (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("logs %s", id)
	if !e.blockLogs {
		return io.NopCloser(strings.NewReader(e.logs)), nil
	}
	reader, writer := io.Pipe()
	stopped := e.containers[id].stopped
	logs := e.logs
	go func() {
		io.WriteString(writer, logs)
		<-stopped
		writer.Close()
	}()
	return reader, nil
}

func (e *fakeEngine) WaitContainer(_ context.Context, id string) (int, error) {
	e.mu.Lock()
	e.record("wait %s", id)
	code := e.exitCode
	e.mu.Unlock()
	return code, nil
}

// readContext unpacks a gzip tar build context into path -> content.
func readContext(reader io.Reader) (map[string]string, error) {
	decompressor, err := gzip.NewReader(reader)
	if err != nil {
		return nil, err
	}
	archive := tar.NewReader(decompressor)
	files := make(map[string]string)
	for {
		header, err := archive.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(archive)
		if err != nil {
			return nil, err
		}
		files[header.Name] = string(content)
	}
}

// recordingOutput implements Output and stream.Sink.
type recordingOutput struct {
	mu           sync.Mutex
	stdout       strings.Builder
	stderr       strings.Builder
	dockerStatus []string
	persists     int
}

func (o *recordingOutput) AppendStdout(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stdout.WriteString(text)
}

func (o *recordingOutput) AppendStderr(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stderr.WriteString(text)
}

func (o *recordingOutput) RegisterDockerStatus(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dockerStatus = append(o.dockerStatus, line)
}

func (o *recordingOutput) Persist(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.persists++
	return nil
}

func (o *recordingOutput) Stdout() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stdout.String()
}
