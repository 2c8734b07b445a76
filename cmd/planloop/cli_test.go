package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jaakkos/planloop/internal/home"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	if stdin != "" {
		root.SetIn(strings.NewReader(stdin))
	}
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", raw, err)
	}
	return v
}

// ========== end-to-end command flow ==========

func TestCLI_StartStatusUpdateFlow(t *testing.T) {
	t.Setenv(home.EnvHome, t.TempDir())

	out, err := runCLI(t, "", "start", "--name", "CLI Flow", "--project-root", "/repo")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	started := decode(t, out)
	sessionID, _ := started["session"].(string)
	if sessionID == "" {
		t.Fatalf("start did not return a session id: %v", started)
	}

	// The pointer makes --session optional from here on.
	out, err = runCLI(t, "", "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	report := decode(t, out)
	if report["session"] != sessionID {
		t.Errorf("status targeted %v, expected %s", report["session"], sessionID)
	}
	now := report["now"].(map[string]any)
	if now["reason"] != "idle" {
		t.Errorf("expected idle now, got %v", now)
	}

	payload := `{"session":"` + sessionID + `","last_seen_version":"1","add_tasks":[{"title":"first task","type":"feature"}]}`
	out, err = runCLI(t, payload, "update")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	res := decode(t, out)
	if res["status"] != "ok" || res["version"] != float64(2) {
		t.Errorf("unexpected update result: %v", res)
	}

	out, err = runCLI(t, "", "sessions", "list")
	if err != nil {
		t.Fatalf("sessions list: %v", err)
	}
	listed := decode(t, out)
	if sessions, ok := listed["sessions"].([]any); !ok || len(sessions) != 1 {
		t.Errorf("expected one registry entry, got %v", listed)
	}
}

func TestCLI_UpdateDryRunShape(t *testing.T) {
	t.Setenv(home.EnvHome, t.TempDir())

	out, err := runCLI(t, "", "start", "--name", "Dry")
	if err != nil {
		t.Fatal(err)
	}
	sessionID := decode(t, out)["session"].(string)

	payload := `{"session":"` + sessionID + `","add_tasks":[{"title":"preview"}]}`
	out, err = runCLI(t, payload, "update", "--dry-run")
	if err != nil {
		t.Fatalf("dry-run update: %v", err)
	}
	res := decode(t, out)
	diff, ok := res["dry_run"].(map[string]any)
	if !ok {
		t.Fatalf("expected dry_run diff, got %v", res)
	}
	if _, ok := diff["version"]; !ok {
		t.Errorf("diff missing version section: %v", diff)
	}
}

func TestCLI_AlertLifecycle(t *testing.T) {
	t.Setenv(home.EnvHome, t.TempDir())

	if _, err := runCLI(t, "", "start", "--name", "Alerts"); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "", "alert", "--id", "ci-1", "--level", "blocker", "--type", "ci",
		"--kind", "build", "--title", "CI red", "--message", "tests failing")
	if err != nil {
		t.Fatalf("alert open: %v", err)
	}
	res := decode(t, out)
	now := res["now"].(map[string]any)
	if now["reason"] != "ci_blocker" {
		t.Errorf("expected ci_blocker now, got %v", now)
	}

	out, err = runCLI(t, "", "alert", "--id", "ci-1", "--close")
	if err != nil {
		t.Fatalf("alert close: %v", err)
	}
	if decode(t, out)["status"] != "ok" {
		t.Errorf("unexpected close result: %s", out)
	}
}

func TestCLI_ErrorsExitNonZero(t *testing.T) {
	t.Setenv(home.EnvHome, t.TempDir())

	if _, err := runCLI(t, "", "status", "--json"); err == nil {
		t.Error("status without any session should fail")
	}
	if _, err := runCLI(t, "", "nonsense"); err == nil {
		t.Error("unknown command should fail")
	}
	if _, err := runCLI(t, "", "start", "--name", "x", "--bogus-flag"); err == nil {
		t.Error("unknown flag should fail")
	}
	if _, err := runCLI(t, "", "sessions", "info", "missing-session"); err == nil {
		t.Error("info on missing session should fail")
	}
}

func TestCLI_SessionsCurrentPointer(t *testing.T) {
	t.Setenv(home.EnvHome, t.TempDir())

	out, err := runCLI(t, "", "start", "--name", "One")
	if err != nil {
		t.Fatal(err)
	}
	first := decode(t, out)["session"].(string)
	out, err = runCLI(t, "", "start", "--name", "Two")
	if err != nil {
		t.Fatal(err)
	}
	second := decode(t, out)["session"].(string)

	out, err = runCLI(t, "", "sessions", "current")
	if err != nil {
		t.Fatal(err)
	}
	if decode(t, out)["current"] != second {
		t.Errorf("expected pointer at %s, got %s", second, out)
	}

	out, err = runCLI(t, "", "sessions", "current", first)
	if err != nil {
		t.Fatal(err)
	}
	if decode(t, out)["current"] != first {
		t.Errorf("expected pointer moved to %s, got %s", first, out)
	}

	if _, err := runCLI(t, "", "sessions", "current", "does-not-exist"); err == nil {
		t.Error("pointing at a missing session should fail")
	}
}

func TestCLI_DescribeAndDebug(t *testing.T) {
	t.Setenv(home.EnvHome, t.TempDir())

	out, err := runCLI(t, "", "describe")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	desc := decode(t, out)
	for _, key := range []string{"state_schema", "update_schema", "enums", "error_codes"} {
		if _, ok := desc[key]; !ok {
			t.Errorf("describe missing %q", key)
		}
	}

	if _, err := runCLI(t, "", "start", "--name", "Debug"); err != nil {
		t.Fatal(err)
	}
	out, err = runCLI(t, "", "debug")
	if err != nil {
		t.Fatalf("debug: %v", err)
	}
	snap := decode(t, out)
	if _, ok := snap["deadlock_tracker"]; !ok {
		t.Errorf("debug missing tracker: %v", snap)
	}
	if _, ok := snap["state"]; !ok {
		t.Errorf("debug missing state summary: %v", snap)
	}
}
