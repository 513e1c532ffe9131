// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package docker manages the containers of a build: the dependency
// services a build declares, the image its script runs in, and the
// container that runs it.
//
// Engine is the narrow slice of the Docker Engine API the Manager
// needs. Client implements it over github.com/docker/docker/client;
// tests substitute an in-memory engine.
package docker

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is wrapped by Engine errors for containers or images
// that do not exist.
var ErrNotFound = errors.New("not found")

// Engine is the container engine the Manager drives.
type Engine interface {
	// PullImage starts pulling ref and returns the engine's progress
	// stream, one JSON object per line.
	PullImage(ctx context.Context, ref string) (io.ReadCloser, error)

	// ListContainers returns every container, running or not.
	ListContainers(ctx context.Context) ([]ContainerSummary, error)

	InspectContainer(ctx context.Context, id string) (ContainerInfo, error)

	// CreateContainer creates (but does not start) a container and
	// returns its ID.
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)

	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error

	// RemoveContainer force-removes a container.
	RemoveContainer(ctx context.Context, id string) error

	// BuildImage builds from a gzip-compressed tar build context and
	// returns the engine's progress stream, one JSON object per line.
	BuildImage(ctx context.Context, buildContext io.Reader, spec BuildSpec) (io.ReadCloser, error)

	// ContainerLogs follows a container's stdout and stderr, merged
	// into one stream, until the container stops.
	ContainerLogs(ctx context.Context, id string) (io.ReadCloser, error)

	// WaitContainer blocks until the container is not running and
	// returns its exit code.
	WaitContainer(ctx context.Context, id string) (int, error)
}

// ContainerSummary is one entry of ListContainers. Names carry the
// engine's leading slash.
type ContainerSummary struct {
	ID    string
	Names []string
}

// ContainerInfo is the part of an inspect result the Manager reads.
type ContainerInfo struct {
	ID      string
	Name    string
	Running bool
}

// ContainerSpec describes a container to create.
type ContainerSpec struct {
	Name       string
	Hostname   string
	Image      string
	Env        map[string]string
	WorkingDir string

	// Binds are "host:container[:mode]" volume bindings.
	Binds []string

	// Links are legacy "name:alias" links to other containers.
	Links []string

	Labels map[string]string
}

// BuildSpec describes an image build.
type BuildSpec struct {
	Tags []string

	// Dockerfile is the path of the Dockerfile inside the context.
	Dockerfile string

	Labels map[string]string
}
