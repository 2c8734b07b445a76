package update

import "github.com/jaakkos/planloop/internal/domain"

func taskSnapshot(t domain.Task) map[string]any {
	return map[string]any{
		"id":     t.ID,
		"title":  t.Title,
		"type":   string(t.Type),
		"status": string(t.Status),
	}
}

func compareTasks(before, after []domain.Task) map[string]any {
	beforeByID := make(map[int]domain.Task, len(before))
	for _, t := range before {
		beforeByID[t.ID] = t
	}
	afterByID := make(map[int]domain.Task, len(after))
	for _, t := range after {
		afterByID[t.ID] = t
	}

	added := []map[string]any{}
	updated := []map[string]any{}
	removed := []map[string]any{}

	for _, t := range after {
		orig, ok := beforeByID[t.ID]
		if !ok {
			added = append(added, taskSnapshot(t))
			continue
		}
		changes := map[string]any{}
		if orig.Title != t.Title {
			changes["title"] = map[string]any{"before": orig.Title, "after": t.Title}
		}
		if orig.Type != t.Type {
			changes["type"] = map[string]any{"before": string(orig.Type), "after": string(t.Type)}
		}
		if orig.Status != t.Status {
			changes["status"] = map[string]any{"before": string(orig.Status), "after": string(t.Status)}
		}
		if len(changes) > 0 {
			updated = append(updated, map[string]any{"task": taskSnapshot(t), "changes": changes})
		}
	}
	for _, t := range before {
		if _, ok := afterByID[t.ID]; !ok {
			removed = append(removed, taskSnapshot(t))
		}
	}

	return map[string]any{"added": added, "updated": updated, "removed": removed}
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Diff summarizes what an update would change: version bump, per-task
// additions and field changes, and before/after for the replaced note
// collections. Used by dry runs; never part of the persisted state.
func Diff(before, after *domain.SessionState) map[string]any {
	diff := map[string]any{
		"version": map[string]any{"before": before.Version, "after": after.Version},
		"tasks":   compareTasks(before.Tasks, after.Tasks),
	}
	if !stringSlicesEqual(before.ContextNotes, after.ContextNotes) {
		diff["context_notes"] = map[string]any{"before": before.ContextNotes, "after": after.ContextNotes}
	}
	if !stringSlicesEqual(before.NextSteps, after.NextSteps) {
		diff["next_steps"] = map[string]any{"before": before.NextSteps, "after": after.NextSteps}
	}
	beforeSummary := ""
	if before.FinalSummary != nil {
		beforeSummary = *before.FinalSummary
	}
	afterSummary := ""
	if after.FinalSummary != nil {
		afterSummary = *after.FinalSummary
	}
	if beforeSummary != afterSummary {
		diff["final_summary"] = map[string]any{"before": before.FinalSummary, "after": after.FinalSummary}
	}
	return diff
}
