// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docker

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
)

// Client is an Engine backed by the Docker Engine API.
type Client struct {
	api *client.Client
}

// NewClient connects to the engine configured by the environment
// (DOCKER_HOST and friends), or to host when non-empty. The API
// version is negotiated with the daemon.
func NewClient(host string) (*Client, error) {
	options := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		options = append(options, client.WithHost(host))
	}
	api, err := client.NewClientWithOpts(options...)
	if err != nil {
		return nil, fmt.Errorf("docker: creating client: %w", err)
	}
	return &Client{api: api}, nil
}

// Close releases the client's transport.
func (c *Client) Close() error {
	return c.api.Close()
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.Ping(ctx); err != nil {
		return fmt.Errorf("docker: ping: %w", err)
	}
	return nil
}

func wrap(operation, subject string, err error) error {
	if err == nil {
		return nil
	}
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("docker: %s %s: %w: %v", operation, subject, ErrNotFound, err)
	}
	return fmt.Errorf("docker: %s %s: %w", operation, subject, err)
}

func (c *Client) PullImage(ctx context.Context, ref string) (io.ReadCloser, error) {
	body, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
	return body, wrap("pulling", ref, err)
}

func (c *Client) ListContainers(ctx context.Context) ([]ContainerSummary, error) {
	containers, err := c.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, wrap("listing", "containers", err)
	}
	summaries := make([]ContainerSummary, 0, len(containers))
	for _, entry := range containers {
		summaries = append(summaries, ContainerSummary{ID: entry.ID, Names: entry.Names})
	}
	return summaries, nil
}

func (c *Client) InspectContainer(ctx context.Context, id string) (ContainerInfo, error) {
	inspected, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return ContainerInfo{}, wrap("inspecting", id, err)
	}
	info := ContainerInfo{}
	if inspected.ContainerJSONBase != nil {
		info.ID = inspected.ID
		info.Name = inspected.Name
		if inspected.State != nil {
			info.Running = inspected.State.Running
		}
	}
	return info, nil
}

func (c *Client) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	config := &container.Config{
		Image:      spec.Image,
		Hostname:   spec.Hostname,
		Env:        environ(spec.Env),
		WorkingDir: spec.WorkingDir,
		Labels:     spec.Labels,
	}
	hostConfig := &container.HostConfig{
		Binds: spec.Binds,
		Links: spec.Links,
	}
	created, err := c.api.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", wrap("creating", spec.Name, err)
	}
	return created.ID, nil
}

func (c *Client) StartContainer(ctx context.Context, id string) error {
	return wrap("starting", id, c.api.ContainerStart(ctx, id, container.StartOptions{}))
}

func (c *Client) StopContainer(ctx context.Context, id string) error {
	return wrap("stopping", id, c.api.ContainerStop(ctx, id, container.StopOptions{}))
}

func (c *Client) RemoveContainer(ctx context.Context, id string) error {
	return wrap("removing", id, c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}))
}

func (c *Client) BuildImage(ctx context.Context, buildContext io.Reader, spec BuildSpec) (io.ReadCloser, error) {
	response, err := c.api.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        spec.Tags,
		Dockerfile:  spec.Dockerfile,
		Labels:      spec.Labels,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return nil, wrap("building", fmt.Sprint(spec.Tags), err)
	}
	return response.Body, nil
}

// ContainerLogs demultiplexes the engine's framed log stream into a
// single byte stream.
func (c *Client) ContainerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	raw, err := c.api.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, wrap("following logs of", id, err)
	}
	reader, writer := io.Pipe()
	go func() {
		_, copyErr := stdcopy.StdCopy(writer, writer, raw)
		raw.Close()
		writer.CloseWithError(copyErr)
	}()
	return &logStream{PipeReader: reader, raw: raw}, nil
}

type logStream struct {
	*io.PipeReader
	raw io.Closer
}

func (s *logStream) Close() error {
	s.PipeReader.Close()
	return s.raw.Close()
}

func (c *Client) WaitContainer(ctx context.Context, id string) (int, error) {
	results, errs := c.api.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case result := <-results:
		if result.Error != nil && result.Error.Message != "" {
			return int(result.StatusCode), fmt.Errorf("docker: waiting for %s: %s", id, result.Error.Message)
		}
		return int(result.StatusCode), nil
	case err := <-errs:
		return -1, wrap("waiting for", id, err)
	}
}

// environ renders an environment map as sorted KEY=value pairs.
func environ(env map[string]string) []string {
	keys := slices.Sorted(maps.Keys(env))
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+env[key])
	}
	return pairs
}
