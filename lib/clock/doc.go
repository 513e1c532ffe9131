// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// The output streamer's wall-clock budget, the dependency readiness
// delay, and the GitHub client's rate-limit backoff all take a Clock
// instead of calling the time package. In tests, Fake() gives a clock
// that only moves when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go func() { result, _ = stream.Run(ctx, process, sink, stream.Options{Clock: c}) }()
//	c.WaitForTimers(1)          // the streamer has armed its deadline
//	c.Advance(11 * time.Minute) // the deadline fires deterministically
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past it.
package clock
