// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package proc starts subprocesses whose combined stdout and stderr
// are read incrementally by the output streamer.
//
// Every process runs in its own process group so that Terminate
// reaches the shell and everything it spawned, not just the shell.
package proc

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// defaultGracePeriod is how long Terminate waits after SIGTERM before
// escalating to SIGKILL.
const defaultGracePeriod = 5 * time.Second

// Process is a started subprocess.
type Process struct {
	cmd         *exec.Cmd
	output      io.ReadCloser
	gracePeriod time.Duration

	waitOnce   sync.Once
	exitCode   int
	waitErr    error
	terminated sync.Once

	// exited is closed once Wait has reaped the process. After that the
	// group id may belong to someone else and must not be signalled.
	exited chan struct{}
	// escalated is closed when the SIGKILL escalation has finished,
	// whether or not it signalled.
	escalated chan struct{}
	signal    func(pid int, signal unix.Signal) error
}

// Options configures Start.
type Options struct {
	// GracePeriod between SIGTERM and SIGKILL on Terminate. Defaults
	// to 5 seconds.
	GracePeriod time.Duration
}

// Start runs cmd with stdout and stderr joined into a single pipe.
// cmd must not have Stdout, Stderr, or SysProcAttr set.
func Start(cmd *exec.Cmd, options Options) (*Process, error) {
	if cmd.Stdout != nil || cmd.Stderr != nil {
		return nil, errors.New("proc: command output is already redirected")
	}
	output, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("proc: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("proc: starting %s: %w", cmd.Path, err)
	}

	gracePeriod := options.GracePeriod
	if gracePeriod <= 0 {
		gracePeriod = defaultGracePeriod
	}
	return &Process{
		cmd:         cmd,
		output:      output,
		gracePeriod: gracePeriod,
		exited:      make(chan struct{}),
		escalated:   make(chan struct{}),
		signal:      unix.Kill,
	}, nil
}

// Output returns the combined stdout/stderr stream. It reaches EOF
// when every process holding the pipe has exited.
func (p *Process) Output() io.Reader {
	return p.output
}

// Wait blocks until the process exits and returns its exit code. A
// process killed by a signal reports -1. The error is non-nil only when
// the process could not be waited on at all. Safe to call more than
// once.
func (p *Process) Wait() (int, error) {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		var exitError *exec.ExitError
		switch {
		case err == nil:
			p.exitCode = 0
		case errors.As(err, &exitError):
			p.exitCode = exitError.ExitCode()
		default:
			p.exitCode = -1
			p.waitErr = err
		}
		close(p.exited)
	})
	return p.exitCode, p.waitErr
}

// Terminate sends SIGTERM to the process group and escalates to
// SIGKILL after the grace period, unless Wait has reaped the process by
// then. Only the first call signals.
func (p *Process) Terminate() error {
	var err error
	p.terminated.Do(func() {
		group := -p.cmd.Process.Pid
		select {
		case <-p.exited:
			close(p.escalated)
			return
		default:
		}
		if termErr := p.signal(group, unix.SIGTERM); termErr != nil {
			defer close(p.escalated)
			// The group is already gone or unsignalable; try the
			// stronger signal once and report that result.
			err = p.signal(group, unix.SIGKILL)
			if errors.Is(err, unix.ESRCH) {
				err = nil
			}
			return
		}
		go func() {
			defer close(p.escalated)
			timer := time.NewTimer(p.gracePeriod) //nolint:realclock escalation runs outside any injected clock
			defer timer.Stop()
			select {
			case <-p.exited:
			case <-timer.C:
				_ = p.signal(group, unix.SIGKILL)
			}
		}()
	})
	return err
}
