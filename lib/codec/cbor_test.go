// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"
)

// record uses json tags only, like the schema package's types.
type record struct {
	ID        string            `json:"id"`
	Output    string            `json:"stdout"`
	ExitCode  *int              `json:"exit_code,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	code := 2
	original := record{
		ID:        "build-1",
		Output:    "line one\nline two\n",
		ExitCode:  &code,
		Labels:    map[string]string{"b": "2", "a": "1"},
		CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 890123456, time.UTC),
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded record
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.ID != original.ID || decoded.Output != original.Output {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
	if decoded.ExitCode == nil || *decoded.ExitCode != 2 {
		t.Errorf("ExitCode = %v, want 2", decoded.ExitCode)
	}
	if !decoded.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v (sub-second precision must survive)", decoded.CreatedAt, original.CreatedAt)
	}
	if decoded.Labels["a"] != "1" || decoded.Labels["b"] != "2" {
		t.Errorf("Labels = %v", decoded.Labels)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := record{ID: "x", Labels: map[string]string{"z": "1", "a": "2", "m": "3"}}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	type newer struct {
		ID    string `json:"id"`
		Extra string `json:"extra"`
	}
	data, err := Marshal(newer{ID: "a", Extra: "ignored"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded record
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID != "a" {
		t.Errorf("ID = %q, want a", decoded.ID)
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"key": "value"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded.(map[string]any); !ok {
		t.Errorf("decoded type = %T, want map[string]any", decoded)
	}
}
