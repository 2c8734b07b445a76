package session

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jaakkos/planloop/internal/domain"
)

// PlanloopVersion is stamped into the PLAN.md front matter.
const PlanloopVersion = "1.5"

// planFrontMatter keeps yaml key order stable across renders.
type planFrontMatter struct {
	PlanloopVersion string             `yaml:"planloop_version"`
	SchemaVersion   int                `yaml:"schema_version"`
	Session         string             `yaml:"session"`
	Name            string             `yaml:"name"`
	Title           string             `yaml:"title"`
	Purpose         string             `yaml:"purpose"`
	ProjectRoot     string             `yaml:"project_root"`
	Branch          string             `yaml:"branch,omitempty"`
	PromptSet       string             `yaml:"prompt_set"`
	CreatedAt       string             `yaml:"created_at"`
	LastUpdatedAt   string             `yaml:"last_updated_at"`
	Tags            []string           `yaml:"tags"`
	Environment     domain.Environment `yaml:"environment"`
}

// RenderPlan renders the human-readable PLAN.md view of a session state.
// The document is derived output; state.json stays canonical.
func RenderPlan(state *domain.SessionState) (string, error) {
	tags := state.Tags
	if tags == nil {
		tags = []string{}
	}
	front := planFrontMatter{
		PlanloopVersion: PlanloopVersion,
		SchemaVersion:   state.SchemaVersion,
		Session:         state.Session,
		Name:            state.Name,
		Title:           state.Title,
		Purpose:         state.Purpose,
		ProjectRoot:     state.ProjectRoot,
		Branch:          state.Branch,
		PromptSet:       state.Prompts.Set,
		CreatedAt:       state.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		LastUpdatedAt:   state.LastUpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Tags:            tags,
		Environment:     state.Environment,
	}
	frontRaw, err := yaml.Marshal(front)
	if err != nil {
		return "", fmt.Errorf("render front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(frontRaw)
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# Plan: %s\n\n", state.Title)

	b.WriteString("## Tasks\n")
	b.WriteString(formatTasks(state.Tasks))
	b.WriteString("\n\n## Context\n")
	b.WriteString(formatBullets(state.ContextNotes))
	b.WriteString("\n\n## Next Steps\n")
	b.WriteString(formatBullets(state.NextSteps))
	b.WriteString("\n\n## Signals (Snapshot)\n")
	b.WriteString(formatSignals(state.Signals))
	b.WriteString("\n\n## Artifacts\n")
	b.WriteString(formatArtifacts(state.Artifacts))
	b.WriteString("\n\n## Final Summary\n")
	if state.FinalSummary != nil && *state.FinalSummary != "" {
		b.WriteString(*state.FinalSummary)
	} else {
		b.WriteString("_Not provided yet_")
	}
	b.WriteString("\n")
	return b.String(), nil
}

func formatTasks(tasks []domain.Task) string {
	if len(tasks) == 0 {
		return "_No tasks defined._"
	}
	lines := []string{
		"| ID | Title | Type | Status | Depends | Commit |",
		"| --- | --- | --- | --- | --- | --- |",
	}
	for _, t := range tasks {
		depends := "-"
		if len(t.DependsOn) > 0 {
			parts := make([]string, len(t.DependsOn))
			for i, d := range t.DependsOn {
				parts[i] = fmt.Sprintf("%d", d)
			}
			depends = strings.Join(parts, ", ")
		}
		commit := t.CommitSHA
		if commit == "" {
			commit = "-"
		}
		lines = append(lines, fmt.Sprintf("| %d | %s | %s | %s | %s | %s |",
			t.ID, t.Title, t.Type, t.Status, depends, commit))
	}
	return strings.Join(lines, "\n")
}

func formatBullets(items []string) string {
	if len(items) == 0 {
		return "- _None_"
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

func formatSignals(signals []domain.Signal) string {
	if len(signals) == 0 {
		return "- _No signals_"
	}
	var lines []string
	for _, sig := range signals {
		status := "CLOSED"
		if sig.Open {
			status = "OPEN"
		}
		lines = append(lines, fmt.Sprintf("- [%s] (%s) %s: %s", sig.Level, status, sig.Title, sig.Message))
	}
	return strings.Join(lines, "\n")
}

func formatArtifacts(artifacts []domain.Artifact) string {
	if len(artifacts) == 0 {
		return "- _No artifacts recorded_"
	}
	var lines []string
	for _, a := range artifacts {
		path := a.Path
		if path == "" {
			path = "(in memory)"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s (%s)", a.Type, a.Summary, path))
	}
	return strings.Join(lines, "\n")
}
