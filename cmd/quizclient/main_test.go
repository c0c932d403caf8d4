package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/pavelanni/quizclient/internal/devserver"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSessionCommandsPersist(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state.db")

	first, err := execute(t, "", "session", "--state-db", db)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	second, err := execute(t, "", "session", "--state-db", db)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if first != second || len(strings.TrimSpace(first)) != 9 {
		t.Errorf("session ids %q and %q, want the same 9-char id", first, second)
	}

	renewed, err := execute(t, "", "session", "new", "--state-db", db)
	if err != nil {
		t.Fatalf("session new: %v", err)
	}
	if renewed == first {
		t.Error("session new should replace the id")
	}
}

func TestUnknownStateBackend(t *testing.T) {
	if _, err := execute(t, "", "session", "--state-backend", "etcd"); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestAdminAgainstDevserver(t *testing.T) {
	s, err := devserver.New(devserver.Config{})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	api := srv.URL + "/api"
	db := filepath.Join(t.TempDir(), "state.db")
	common := []string{"--api-url", api, "--state-db", db, "--fallback=false"}

	out, err := execute(t, "adminpass\n", append([]string{"login", "-u", "admin"}, common...)...)
	if err != nil {
		t.Fatalf("login: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Logged in as admin.") {
		t.Errorf("login output = %q", out)
	}

	out, err = execute(t, "", append([]string{"admin", "set-config", "--timer-duration", "3"}, common...)...)
	if err != nil {
		t.Fatalf("set-config: %v\n%s", err, out)
	}
	if !strings.Contains(out, "timer_duration: 3") {
		t.Errorf("set-config output = %q", out)
	}

	out, err = execute(t, "", append([]string{"admin", "stats", "-o", "json"}, common...)...)
	if err != nil {
		t.Fatalf("stats: %v\n%s", err, out)
	}
	var stats map[string]any
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats output is not JSON: %v\n%s", err, out)
	}
	if stats["total_questions"] != float64(10) {
		t.Errorf("stats = %v", stats)
	}

	out, err = execute(t, "", append([]string{"status", "-o", "json"}, common...)...)
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	var report statusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("status output: %v\n%s", err, out)
	}
	if !report.Backend.Healthy || !report.Authenticated || report.User.Username != "admin" || report.AccessExpires == nil {
		t.Errorf("status = %+v", report)
	}
	if !slices.Contains(report.StoredKeys, "accessToken") || !slices.Contains(report.StoredKeys, "quiz_session_id") {
		t.Errorf("stored keys = %v", report.StoredKeys)
	}

	if _, err := execute(t, "", append([]string{"logout"}, common...)...); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := execute(t, "", append([]string{"admin", "set-config", "--active=false"}, common...)...); err == nil {
		t.Error("set-config after logout should fail")
	}
}
