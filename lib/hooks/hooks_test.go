// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/bureau-foundation/buildwright/lib/github"
	"github.com/bureau-foundation/buildwright/lib/schema"
)

func testBuilder() *schema.Builder {
	return &schema.Builder{ID: "b1", Name: "widget", GitURI: "git@github.com:acme/widget.git"}
}

func TestInstall(t *testing.T) {
	var received github.CreateWebhookRequest
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost || request.URL.Path != "/repos/acme/widget/hooks" {
			t.Errorf("unexpected request %s %s", request.Method, request.URL.Path)
		}
		json.NewDecoder(request.Body).Decode(&received)
		writer.WriteHeader(http.StatusCreated)
		writer.Write([]byte(`{"id":5,"active":true,"config":{"url":"https://ci.example.com/api/hooks/b1"}}`))
	}))
	defer server.Close()

	manager := New(github.Factory{BaseURL: server.URL, HTTPClient: server.Client()}, "https://ci.example.com/", nil)
	builder := testBuilder()
	webhook, err := manager.Install(context.Background(), builder, "gho")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if webhook.ID != 5 {
		t.Errorf("webhook.ID = %d", webhook.ID)
	}
	if received.Name != "web" || received.Active == nil || !*received.Active {
		t.Errorf("request = %+v", received)
	}
	if strings.Join(received.Events, ",") != "push,pull_request" {
		t.Errorf("events = %v", received.Events)
	}
	if received.Config.URL != "https://ci.example.com/api/hooks/b1" || received.Config.ContentType != "json" {
		t.Errorf("config = %+v", received.Config)
	}
	if !strings.Contains(builder.HookData, `"id":5`) {
		t.Errorf("HookData = %q", builder.HookData)
	}
}

func TestInstallRejectsNonGitHub(t *testing.T) {
	manager := New(github.Factory{}, "https://ci.example.com", nil)
	builder := testBuilder()
	builder.GitURI = "https://gitlab.com/acme/widget.git"
	if _, err := manager.Install(context.Background(), builder, "gho"); err == nil {
		t.Fatal("expected error for non-GitHub repository")
	}
}

func TestCleanupDeletesOnlyOwnHooks(t *testing.T) {
	var mu sync.Mutex
	var deleted []string
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		switch request.Method {
		case http.MethodGet:
			writer.Write([]byte(`[
				{"id":1,"config":{"url":"https://ci.example.com/api/hooks/b1"}},
				{"id":2,"config":{"url":"https://chat.example.com/notify"}},
				{"id":3,"config":{"url":"https://ci.example.com/api/hooks/old"}}
			]`))
		case http.MethodDelete:
			mu.Lock()
			deleted = append(deleted, request.URL.Path)
			mu.Unlock()
			if strings.HasSuffix(request.URL.Path, "/3") {
				writer.WriteHeader(http.StatusNotFound)
				writer.Write([]byte(`{"message":"Not Found"}`))
				return
			}
			writer.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	manager := New(github.Factory{BaseURL: server.URL, HTTPClient: server.Client()}, "https://ci.example.com", nil)
	count, err := manager.Cleanup(context.Background(), testBuilder(), "gho")
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if count != 2 {
		t.Errorf("deleted count = %d, want 2", count)
	}
	sort.Strings(deleted)
	want := []string{"/repos/acme/widget/hooks/1", "/repos/acme/widget/hooks/3"}
	if strings.Join(deleted, " ") != strings.Join(want, " ") {
		t.Errorf("deleted = %v, want %v", deleted, want)
	}
}
