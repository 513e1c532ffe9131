// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream runs a build subprocess to completion while feeding
// its output, line by line, into a sink that persists it in chunks.
//
// Output is never lost to buffering: every line reaches the sink as
// soon as it is read, and the sink is persisted every ChunkSize bytes
// and once more when the process finishes, times out, or is cancelled.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bureau-foundation/buildwright/lib/clock"
)

// TimeoutExitCode is reported in place of an exit code when the
// process was terminated because it exceeded its timeout.
const TimeoutExitCode = 420

const (
	defaultChunkSize = 1024
	defaultTimeout   = 10 * time.Minute

	// drainWindow bounds how long Run keeps reading after terminating a
	// process. A descendant that escaped the process group can hold the
	// pipe open indefinitely.
	drainWindow = 2 * time.Second
)

// Process is a running subprocess with a combined output stream.
// proc.Process satisfies it.
type Process interface {
	Output() io.Reader
	Wait() (int, error)
	Terminate() error
}

// Sink receives streamed output.
type Sink interface {
	AppendStdout(text string)
	AppendStderr(text string)
	Persist(ctx context.Context) error
}

// Options configures Run. Zero values select the defaults.
type Options struct {
	// ChunkSize is the number of bytes read between two Persist calls.
	ChunkSize int

	// Timeout bounds the whole run, including a process that prints
	// nothing.
	Timeout time.Duration

	Clock clock.Clock
}

// Result describes a finished run.
type Result struct {
	// Output is everything the process printed, byte for byte.
	Output string

	// ExitCode is the process exit code, or TimeoutExitCode.
	ExitCode int

	TimedOut bool
}

type readResult struct {
	line string
	err  error
}

// Run streams the process's output into sink until the process exits,
// the timeout elapses, or ctx is cancelled. A timed-out process is
// terminated and reported with TimeoutExitCode; this is not an error.
// The returned error is non-nil when the process could not be waited
// on, ctx was cancelled, or persisting the sink failed.
func Run(ctx context.Context, process Process, sink Sink, options Options) (Result, error) {
	chunkSize := options.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}

	lines := make(chan readResult)
	stop := make(chan struct{})
	defer close(stop)
	go readLines(process.Output(), lines, stop)

	deadline := clk.After(timeout)
	var (
		output     strings.Builder
		unflushed  int
		persistErr error
	)
	persist := func() {
		if err := sink.Persist(ctx); err != nil && persistErr == nil {
			persistErr = fmt.Errorf("persisting output: %w", err)
		}
		unflushed = 0
	}

	record := func(line string) {
		if line == "" {
			return
		}
		output.WriteString(line)
		sink.AppendStdout(line)
		unflushed += len(line)
		if unflushed >= chunkSize {
			persist()
		}
	}
	// drain collects the lines the reader already holds or receives
	// before the pipe closes. Called after Terminate, so the pipe
	// normally reaches EOF promptly.
	drain := func() {
		window := clk.After(drainWindow)
		for {
			select {
			case read := <-lines:
				record(read.line)
				if read.err != nil {
					return
				}
			case <-window:
				return
			}
		}
	}

	for {
		select {
		case read := <-lines:
			record(read.line)
			if read.err == nil {
				continue
			}
			code, waitErr := process.Wait()
			persist()
			result := Result{Output: output.String(), ExitCode: code}
			if read.err != io.EOF {
				return result, errors.Join(fmt.Errorf("reading output: %w", read.err), waitErr, persistErr)
			}
			return result, errors.Join(waitErr, persistErr)

		case <-deadline:
			terminateErr := process.Terminate()
			drain()
			// Reap in the background; output after the drain is dropped.
			go process.Wait()
			message := fmt.Sprintf("\nBuild timed out after %s\n", timeout)
			sink.AppendStdout(message)
			sink.AppendStderr(message)
			persist()
			result := Result{Output: output.String(), ExitCode: TimeoutExitCode, TimedOut: true}
			if terminateErr != nil {
				return result, errors.Join(fmt.Errorf("terminating timed-out process: %w", terminateErr), persistErr)
			}
			return result, persistErr

		case <-ctx.Done():
			process.Terminate()
			drain()
			go process.Wait()
			persist()
			return Result{Output: output.String(), ExitCode: -1}, errors.Join(ctx.Err(), persistErr)
		}
	}
}

// readLines sends each line of reader, including its trailing newline,
// until EOF or an error. The final send carries the error.
func readLines(reader io.Reader, lines chan<- readResult, stop <-chan struct{}) {
	buffered := bufio.NewReader(reader)
	for {
		line, err := buffered.ReadString('\n')
		select {
		case lines <- readResult{line: line, err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}
