// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"testing"
)

func TestBuildSetStatus(t *testing.T) {
	build := &Build{Status: StatusReady}
	for _, status := range []BuildStatus{
		StatusScheduled, StatusRunning, StatusRetrieving, StatusChecking,
		StatusPreparing, StatusRunning, StatusSucceeded,
	} {
		if err := build.SetStatus(status); err != nil {
			t.Fatalf("SetStatus(%s): %v", status, err)
		}
	}

	if err := build.SetStatus(StatusSucceeded); err != nil {
		t.Errorf("re-setting the terminal status should be a no-op, got %v", err)
	}
	err := build.SetStatus(StatusFailed)
	if !errors.Is(err, ErrTerminalStatus) {
		t.Fatalf("SetStatus out of terminal = %v, want ErrTerminalStatus", err)
	}
	if build.Status != StatusSucceeded {
		t.Errorf("status changed to %s after rejected transition", build.Status)
	}
}

func TestBuildSetStatusFailedFromAnyPhase(t *testing.T) {
	for _, from := range []BuildStatus{StatusReady, StatusScheduled, StatusRetrieving, StatusChecking, StatusPreparing, StatusRunning} {
		build := &Build{Status: from}
		if err := build.SetStatus(StatusFailed); err != nil {
			t.Errorf("SetStatus(failed) from %s: %v", from, err)
		}
	}
}

func TestBuildSetStatusOrder(t *testing.T) {
	tests := []struct {
		from, to BuildStatus
		backward bool
	}{
		{StatusPreparing, StatusReady, true},
		{StatusChecking, StatusRetrieving, true},
		{StatusRunning, StatusPreparing, true},
		{StatusScheduled, StatusReady, true},
		{StatusRunning, StatusScheduled, true},
		{StatusRunning, StatusRetrieving, false},
		{StatusReady, StatusScheduled, false},
		{StatusScheduled, StatusRunning, false},
		{StatusRetrieving, StatusPreparing, false},
		{StatusPreparing, StatusSucceeded, false},
	}
	for _, test := range tests {
		build := &Build{Status: test.from}
		err := build.SetStatus(test.to)
		if test.backward {
			if !errors.Is(err, ErrBackwardStatus) {
				t.Errorf("%s -> %s: error = %v, want ErrBackwardStatus", test.from, test.to, err)
			}
			if build.Status != test.from {
				t.Errorf("%s -> %s: status changed to %s after rejected transition", test.from, test.to, build.Status)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s -> %s: %v", test.from, test.to, err)
		}
		if build.Status != test.to {
			t.Errorf("%s -> %s: status = %s", test.from, test.to, build.Status)
		}
	}
}

func TestBuildSetStatusUnknown(t *testing.T) {
	build := &Build{Status: StatusReady}
	if err := build.SetStatus("exploded"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestBuildStatusRank(t *testing.T) {
	if StatusRetrieving.Rank() >= StatusChecking.Rank() {
		t.Error("retrieving should rank before checking")
	}
	if StatusSucceeded.Rank() != StatusFailed.Rank() {
		t.Error("terminal statuses should share a rank")
	}
	if BuildStatus("nope").Rank() != -1 {
		t.Error("unknown status should rank -1")
	}
}

func TestRegisterDockerStatus(t *testing.T) {
	build := &Build{}
	build.RegisterDockerStatus(`{"status":"Pulling from library/redis","id":"alpine"}` + "\n")
	if build.DockerStatus != `{"status":"Pulling from library/redis","id":"alpine"}` {
		t.Errorf("DockerStatus = %q", build.DockerStatus)
	}
	if build.Stdout != "" {
		t.Errorf("JSON status leaked into stdout: %q", build.Stdout)
	}

	build.RegisterDockerStatus("Step 1/4 : FROM alpine\n")
	if build.Stdout != "Step 1/4 : FROM alpine\n" {
		t.Errorf("plain line not appended to stdout: %q", build.Stdout)
	}
	if build.DockerStatus != `{"status":"Pulling from library/redis","id":"alpine"}` {
		t.Errorf("plain line replaced DockerStatus: %q", build.DockerStatus)
	}

	build.RegisterDockerStatus("   \n")
	if build.Stdout != "Step 1/4 : FROM alpine\n" {
		t.Errorf("blank line changed stdout: %q", build.Stdout)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"My App (v2)", "myappv2"},
		{"widget_service", "widget_service"},
		{"Already-Slug", "alreadyslug"},
		{"", ""},
	}
	for _, test := range tests {
		if got := Slugify(test.name); got != test.want {
			t.Errorf("Slugify(%q) = %q, want %q", test.name, got, test.want)
		}
	}
}

func TestBuildURL(t *testing.T) {
	got := BuildURL("https://ci.example.com/", "b1", "x9")
	want := "https://ci.example.com/#/builder/b1/build/x9"
	if got != want {
		t.Errorf("BuildURL = %q, want %q", got, want)
	}
}
