// Package selftest simulates complete agent workflows inside a throwaway
// home directory, exercising the real session, lock, and update pipelines
// end to end. It is the built-in smoke test behind the selftest command.
package selftest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jaakkos/planloop/internal/domain"
	"github.com/jaakkos/planloop/internal/home"
	"github.com/jaakkos/planloop/internal/session"
	"github.com/jaakkos/planloop/internal/update"
)

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// Failure aggregates the full result list when any scenario failed.
type Failure struct {
	Results []ScenarioResult
}

func (f *Failure) Error() string {
	failed := 0
	for _, r := range f.Results {
		if r.Status != "passed" {
			failed++
		}
	}
	return fmt.Sprintf("self-test scenarios failed: %d of %d", failed, len(f.Results))
}

type scenario struct {
	name string
	run  func(st *session.Store, r *update.Runner) (string, error)
}

func scenarios() []scenario {
	return []scenario{
		{"clean_run", scenarioCleanRun},
		{"ci_blocker", scenarioCIBlocker},
		{"dependency_chain", scenarioDependencyChain},
		{"signal_and_tasks", scenarioSignalAndTasks},
	}
}

// Run executes all scenarios in a temporary home and returns their results.
// The error is a *Failure when any scenario failed, so callers get both the
// verdict and the per-scenario detail.
func Run() ([]ScenarioResult, error) {
	tmpHome, err := os.MkdirTemp("", "planloop-selftest-")
	if err != nil {
		return nil, fmt.Errorf("create selftest home: %w", err)
	}
	defer os.RemoveAll(tmpHome)

	if err := home.Initialize(tmpHome); err != nil {
		return nil, err
	}
	st := session.NewStore(tmpHome)
	runner := &update.Runner{Store: st}

	var results []ScenarioResult
	allPassed := true
	for _, sc := range scenarios() {
		detail, err := sc.run(st, runner)
		if err != nil {
			results = append(results, ScenarioResult{Name: sc.name, Status: "failed", Detail: err.Error()})
			allPassed = false
			continue
		}
		results = append(results, ScenarioResult{Name: sc.name, Status: "passed", Detail: detail})
	}
	if !allPassed {
		return results, &Failure{Results: results}
	}
	return results, nil
}

// applyUpdate pushes one payload through the real update pipeline and
// returns the freshly loaded state.
func applyUpdate(st *session.Store, r *update.Runner, state *domain.SessionState, payload map[string]any) (*domain.SessionState, error) {
	payload["session"] = state.Session
	payload["last_seen_version"] = strconv.Itoa(state.Version)
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if _, err := r.Run(context.Background(), "", raw, update.Options{LockTimeout: 5 * time.Second}); err != nil {
		return nil, err
	}
	return st.Load(state.Session)
}

func statusChanges(changes ...any) []map[string]any {
	var patches []map[string]any
	for i := 0; i < len(changes); i += 2 {
		patches = append(patches, map[string]any{"id": changes[i], "status": changes[i+1]})
	}
	return patches
}

func scenarioCleanRun(st *session.Store, r *update.Runner) (string, error) {
	state, err := st.Create("Selftest Clean", "UI polish", "/selftest/clean")
	if err != nil {
		return "", err
	}
	state, err = applyUpdate(st, r, state, map[string]any{
		"add_tasks": []map[string]any{
			{"title": "Add button", "type": "feature"},
			{"title": "Write docs", "type": "doc"},
		},
		"context_notes": []string{"Clean scenario initialized"},
		"next_steps":    []string{"Finish both tasks"},
	})
	if err != nil {
		return "", err
	}
	state, err = applyUpdate(st, r, state, map[string]any{
		"tasks":         statusChanges(1, "DONE", 2, "DONE"),
		"final_summary": "UI polish complete",
	})
	if err != nil {
		return "", err
	}
	if state.Now.Reason != domain.ReasonCompleted {
		return "", fmt.Errorf("expected clean scenario to complete, now is %+v", state.Now)
	}
	return "Clean scenario completed with final summary", nil
}

func scenarioCIBlocker(st *session.Store, r *update.Runner) (string, error) {
	state, err := st.Create("Selftest CI", "Crash fix", "/selftest/ci")
	if err != nil {
		return "", err
	}
	state, err = applyUpdate(st, r, state, map[string]any{
		"add_tasks":     []map[string]any{{"title": "Fix failing test", "type": "fix"}},
		"context_notes": []string{"CI scenario bootstrapped"},
	})
	if err != nil {
		return "", err
	}

	res, err := r.OpenAlert(context.Background(), state.Session, update.AlertInput{
		ID:      "ci-selftest",
		Type:    domain.SignalCI,
		Kind:    "build",
		Level:   domain.LevelBlocker,
		Title:   "Selftest CI failure",
		Message: "Simulated CI breakage",
	}, 5*time.Second)
	if err != nil {
		return "", err
	}
	if res.Now.Reason != domain.ReasonCIBlocker {
		return "", fmt.Errorf("expected now to reflect ci_blocker, got %+v", res.Now)
	}

	res, err = r.CloseAlert(context.Background(), state.Session, "ci-selftest", 5*time.Second)
	if err != nil {
		return "", err
	}
	if res.Now.Reason != domain.ReasonTask {
		return "", fmt.Errorf("expected now to return to task, got %+v", res.Now)
	}
	return "CI blocker opened and cleared", nil
}

func scenarioDependencyChain(st *session.Store, r *update.Runner) (string, error) {
	state, err := st.Create("Selftest Coverage", "Coverage pipeline", "/selftest/coverage")
	if err != nil {
		return "", err
	}
	state, err = applyUpdate(st, r, state, map[string]any{
		"add_tasks": []map[string]any{
			{"title": "Add coverage tests", "type": "test"},
			{"title": "Refactor module", "type": "refactor", "depends_on": []int{1}},
		},
		"context_notes": []string{"Coverage chain initialized"},
	})
	if err != nil {
		return "", err
	}
	if state.Now.Reason != domain.ReasonTask || state.Now.TaskID != 1 {
		return "", fmt.Errorf("expected task 1 to be active, got %+v", state.Now)
	}

	state, err = applyUpdate(st, r, state, map[string]any{"tasks": statusChanges(1, "DONE")})
	if err != nil {
		return "", err
	}
	if state.Now.TaskID != 2 {
		return "", fmt.Errorf("expected dependent task to unlock, got %+v", state.Now)
	}

	state, err = applyUpdate(st, r, state, map[string]any{
		"tasks":         statusChanges(2, "DONE"),
		"final_summary": "Coverage pipeline wrapped",
	})
	if err != nil {
		return "", err
	}
	if state.Now.Reason != domain.ReasonCompleted {
		return "", fmt.Errorf("expected dependency scenario to complete, got %+v", state.Now)
	}
	return "Dependency chain resolved", nil
}

func scenarioSignalAndTasks(st *session.Store, r *update.Runner) (string, error) {
	state, err := st.Create("Selftest Signal and Tasks", "Handle signal then tasks", "/selftest/signal_tasks")
	if err != nil {
		return "", err
	}
	state, err = applyUpdate(st, r, state, map[string]any{
		"add_tasks": []map[string]any{
			{"title": "Initial Task 1", "type": "feature"},
			{"title": "Initial Task 2", "type": "feature"},
			{"title": "Initial Task 3", "type": "feature"},
		},
		"context_notes": []string{"Scenario initialized with tasks"},
	})
	if err != nil {
		return "", err
	}
	if state.Now.Reason != domain.ReasonTask || state.Now.TaskID != 1 {
		return "", fmt.Errorf("expected task 1 to be active initially, got %+v", state.Now)
	}

	state, err = applyUpdate(st, r, state, map[string]any{"tasks": statusChanges(1, "IN_PROGRESS")})
	if err != nil {
		return "", err
	}
	if state.Now.Reason != domain.ReasonTask || state.Now.TaskID != 1 {
		return "", fmt.Errorf("expected task 1 to stay active in progress, got %+v", state.Now)
	}

	res, err := r.OpenAlert(context.Background(), state.Session, update.AlertInput{
		ID:      "ci-blocker-for-tasks",
		Type:    domain.SignalCI,
		Kind:    "build",
		Level:   domain.LevelBlocker,
		Title:   "Simulated CI failure during tasks",
		Message: "CI failed, blocking further task work",
	}, 5*time.Second)
	if err != nil {
		return "", err
	}
	if res.Now.Reason != domain.ReasonCIBlocker {
		return "", fmt.Errorf("expected ci_blocker after signal, got %+v", res.Now)
	}

	res, err = r.CloseAlert(context.Background(), state.Session, "ci-blocker-for-tasks", 5*time.Second)
	if err != nil {
		return "", err
	}
	if res.Now.Reason != domain.ReasonTask || res.Now.TaskID != 1 {
		return "", fmt.Errorf("expected return to task 1 after signal resolution, got %+v", res.Now)
	}

	state, err = st.Load(state.Session)
	if err != nil {
		return "", err
	}
	for _, step := range []struct {
		done     int
		nextTask int
	}{{1, 2}, {2, 3}} {
		state, err = applyUpdate(st, r, state, map[string]any{"tasks": statusChanges(step.done, "DONE")})
		if err != nil {
			return "", err
		}
		if state.Now.Reason != domain.ReasonTask || state.Now.TaskID != step.nextTask {
			return "", fmt.Errorf("expected task %d to be active after task %d, got %+v", step.nextTask, step.done, state.Now)
		}
	}

	state, err = applyUpdate(st, r, state, map[string]any{
		"tasks":         statusChanges(3, "DONE"),
		"final_summary": "All tasks completed after signal handling",
	})
	if err != nil {
		return "", err
	}
	if state.Now.Reason != domain.ReasonCompleted {
		return "", fmt.Errorf("expected completion after all tasks done, got %+v", state.Now)
	}
	return "Signal handled and all tasks completed successfully", nil
}
