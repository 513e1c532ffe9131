// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docker

import (
	"archive/tar"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/buildwright/lib/schema"
	"github.com/bureau-foundation/buildwright/lib/stream"
)

const (
	// DockerfileName is the Dockerfile written into the build
	// directory. It does not shadow a Dockerfile the repository has.
	DockerfileName = ".buildwright.Dockerfile"

	// ContextDigestLabel labels built images with the blake3 digest of
	// their build context.
	ContextDigestLabel = "io.buildwright.context-digest"

	// WorkspacePath is where the build directory appears inside the
	// build container.
	WorkspacePath = "/workspace"
)

// ImageName is the image and container name of a containerized build:
// "<slug>_<first 8 of commit>".
func ImageName(slug, commit string) string {
	return slug + "_" + commit[:min(len(commit), 8)]
}

// Dockerfile returns the Dockerfile that runs script on baseImage with
// the build directory copied to /workspace.
func Dockerfile(baseImage, script string) string {
	return fmt.Sprintf("FROM %s\nCOPY . %s\nWORKDIR %s\nCMD [\"sh\", %q]\n",
		baseImage, WorkspacePath, WorkspacePath, script)
}

// ImageRequest describes a build image.
type ImageRequest struct {
	// Dir is the build directory: the checkout plus the script.
	Dir string

	// BaseImage is the manifest's image.
	BaseImage string

	// Script is the script's file name inside Dir.
	Script string

	Tag string
}

// BuildImage writes the Dockerfile into the build directory, packs the
// directory as a gzip tar context, and builds the image. Returns the
// hex blake3 digest of the context, which is also set as the image's
// ContextDigestLabel.
func (m *Manager) BuildImage(ctx context.Context, request ImageRequest, out Output) (string, error) {
	dockerfile := filepath.Join(request.Dir, DockerfileName)
	if err := os.WriteFile(dockerfile, []byte(Dockerfile(request.BaseImage, request.Script)), 0o644); err != nil {
		return "", fmt.Errorf("writing Dockerfile: %w", err)
	}

	archive, err := os.CreateTemp("", "buildwright-context-*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("creating build context: %w", err)
	}
	defer os.Remove(archive.Name())
	defer archive.Close()

	digest, err := writeContext(archive, request.Dir)
	if err != nil {
		return "", fmt.Errorf("packing build context: %w", err)
	}
	if _, err := archive.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding build context: %w", err)
	}

	out.AppendStdout(fmt.Sprintf("building image %s (context %s)\n", request.Tag, digest[:16]))
	body, err := m.engine.BuildImage(ctx, archive, BuildSpec{
		Tags:       []string{request.Tag},
		Dockerfile: DockerfileName,
		Labels:     map[string]string{ContextDigestLabel: digest},
	})
	if err != nil {
		return digest, err
	}
	defer body.Close()

	err = scanProgress(body, func(line string, message progressMessage) {
		out.RegisterDockerStatus(line)
		if message.Stream != "" {
			out.AppendStdout(message.Stream)
		}
	})
	if err != nil {
		return digest, fmt.Errorf("building %s: %w", request.Tag, err)
	}
	return digest, nil
}

// writeContext writes dir as a gzip-compressed tar to w and returns the
// blake3 digest of the compressed bytes. Entries are written in
// lexical order with zeroed timestamps and ownership, so the digest
// depends only on paths, modes, and content.
func writeContext(w io.Writer, dir string) (string, error) {
	hasher := blake3.New()
	compressor := gzip.NewWriter(io.MultiWriter(w, hasher))
	archive := tar.NewWriter(compressor)

	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		relative, err := filepath.Rel(dir, path)
		if err != nil || relative == "." {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}

		var link string
		switch {
		case info.Mode().IsRegular(), info.IsDir():
		case info.Mode()&fs.ModeSymlink != 0:
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		default:
			// Sockets, devices, and pipes cannot be sent to the engine.
			return nil
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relative)
		header.ModTime = time.Time{}
		header.AccessTime = time.Time{}
		header.ChangeTime = time.Time{}
		header.Uid, header.Gid = 0, 0
		header.Uname, header.Gname = "", ""
		header.Format = tar.FormatPAX
		if err := archive.WriteHeader(header); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(archive, file)
		return err
	})
	if err != nil {
		return "", err
	}
	if err := archive.Close(); err != nil {
		return "", err
	}
	if err := compressor.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// RunRequest describes a containerized build run.
type RunRequest struct {
	Name  string
	Image string
	Dir   string
	Env   map[string]string

	// Dependencies are linked into the container under their
	// hostnames.
	Dependencies []schema.DependencyContainer
}

// RunBuild starts the build container and streams its logs into sink
// under the options' timeout. On timeout the container is stopped and
// the result carries stream.TimeoutExitCode. The handle is returned
// whenever the container was created, so it can be torn down.
func (m *Manager) RunBuild(ctx context.Context, request RunRequest, sink stream.Sink, out Output, options stream.Options) (*schema.DependencyContainer, stream.Result, error) {
	if err := m.ResolveConflicts(ctx, request.Name, out); err != nil {
		return nil, stream.Result{}, err
	}

	links := make([]string, 0, len(request.Dependencies))
	for _, dependency := range request.Dependencies {
		links = append(links, dependency.Name+":"+dependency.Hostname)
	}
	id, err := m.engine.CreateContainer(ctx, ContainerSpec{
		Name:       request.Name,
		Image:      request.Image,
		Env:        request.Env,
		WorkingDir: WorkspacePath,
		Binds:      []string{request.Dir + ":" + WorkspacePath + ":rw"},
		Links:      links,
	})
	if err != nil {
		return nil, stream.Result{}, err
	}
	handle := &schema.DependencyContainer{
		Image:       request.Image,
		Environment: request.Env,
		ContainerID: id,
		Name:        request.Name,
	}

	if err := m.engine.StartContainer(ctx, id); err != nil {
		return handle, stream.Result{}, err
	}
	logs, err := m.engine.ContainerLogs(ctx, id)
	if err != nil {
		return handle, stream.Result{}, err
	}
	defer logs.Close()

	if options.Clock == nil {
		options.Clock = m.clock
	}
	process := &containerProcess{engine: m.engine, id: id, logs: logs}
	result, err := stream.Run(ctx, process, sink, options)
	return handle, result, err
}

// containerProcess adapts a running container to stream.Process.
type containerProcess struct {
	engine Engine
	id     string
	logs   io.Reader
}

func (p *containerProcess) Output() io.Reader {
	return p.logs
}

func (p *containerProcess) Wait() (int, error) {
	// The run's context may already be cancelled when the stream reaps
	// a stopped container; the wait itself is short.
	return p.engine.WaitContainer(context.Background(), p.id)
}

func (p *containerProcess) Terminate() error {
	return p.engine.StopContainer(context.Background(), p.id)
}
