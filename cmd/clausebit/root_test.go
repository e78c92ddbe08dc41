package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/clausebit/companion/internal/model"
	"github.com/clausebit/companion/internal/presenter"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/memory/recent/guest/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"session_id":"s1","title":"Cookie policy","timestamp":"2024-05-01T10:00:00Z"},{"session_id":"s2"}]`))
	})
	mux.HandleFunc("/memory/guest/s1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[{"role":"user","content":"is it safe?"},{"role":"assistant","content":"Mostly."}]}`))
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req model.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = w.Write([]byte("echo: " + req.Question))
	})
	mux.HandleFunc("/summary", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"riskLevel":"Low","summaryText":"Fine print is fine.","clauses":[]}`))
	})
	mux.HandleFunc("/api/extension-auth", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConversationsCommand(t *testing.T) {
	srv := fakeBackend(t)

	out, err := execute(t, "", "conversations", "--backend", srv.URL)
	if err != nil {
		t.Fatalf("conversations error = %v", err)
	}
	for _, want := range []string{"Cookie policy", "s1", "Chat 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "", "conversations", "--backend", srv.URL, "-o", "yaml")
	if err != nil {
		t.Fatalf("conversations -o yaml error = %v", err)
	}
	var list model.ListConversationsResponse
	if err := yaml.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("yaml output: %v\n%s", err, out)
	}
	if list.Total != 2 {
		t.Errorf("Total = %d, want 2", list.Total)
	}
}

func TestHistoryCommand(t *testing.T) {
	srv := fakeBackend(t)

	out, err := execute(t, "", "history", "s1", "--backend", srv.URL, "-o", "json")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	var transcript model.Transcript
	if err := json.Unmarshal([]byte(out), &transcript); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if transcript.SessionID != "s1" || len(transcript.Messages) != 2 {
		t.Errorf("transcript = %+v", transcript)
	}
}

func TestChatCommand(t *testing.T) {
	srv := fakeBackend(t)

	out, err := execute(t, "hello\n   \n/new\n/quit\n", "chat", "--backend", srv.URL)
	if err != nil {
		t.Fatalf("chat error = %v", err)
	}
	if !strings.Contains(out, "echo: hello") {
		t.Errorf("reply missing:\n%s", out)
	}
	if strings.Count(out, "legal assistant") != 2 {
		t.Errorf("greeting should print at start and after /new:\n%s", out)
	}
}

func TestSummaryCommand(t *testing.T) {
	srv := fakeBackend(t)
	cachePath := filepath.Join(t.TempDir(), "cache.db")

	out, err := execute(t, "", "summary", "https://example.com/terms", "--backend", srv.URL, "--cache", cachePath, "-o", "json")
	if err != nil {
		t.Fatalf("summary error = %v", err)
	}

	dec := json.NewDecoder(strings.NewReader(out))
	var views []presenter.View
	for dec.More() {
		var v presenter.View
		if err := dec.Decode(&v); err != nil {
			t.Fatalf("decode view: %v", err)
		}
		views = append(views, v)
	}
	if len(views) != 2 {
		t.Fatalf("views = %d, want 2", len(views))
	}
	if !views[0].Placeholder || views[1].RiskLevel != "Low" {
		t.Errorf("views = %+v", views)
	}

	out, err = execute(t, "", "summary", "https://example.com/", "--backend", srv.URL, "--cache", cachePath, "--cached")
	if err != nil {
		t.Fatalf("summary --cached error = %v", err)
	}
	if !strings.Contains(out, "Fine print is fine.") {
		t.Errorf("cached summary not persisted:\n%s", out)
	}
}

func TestAuthCommand(t *testing.T) {
	srv := fakeBackend(t)

	out, err := execute(t, "", "auth", "--backend", srv.URL, "--token", "opaque", "-o", "json")
	if err != nil {
		t.Fatalf("auth error = %v", err)
	}
	if !strings.Contains(out, `"is_authenticated": false`) {
		t.Errorf("output = %s", out)
	}
}

func TestRootCommand_RejectsUnknownOutput(t *testing.T) {
	if _, err := execute(t, "", "conversations", "-o", "xml"); err == nil {
		t.Error("expected error for -o xml")
	}
}
