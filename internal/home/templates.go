package home

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates
var templatesFS embed.FS

// DefaultPromptSet is the prompt template set sessions are created with.
const DefaultPromptSet = "core-v1"

// TemplateDoc is a prompt or message template: yaml front matter plus body.
type TemplateDoc struct {
	Metadata map[string]any
	Body     string
}

// splitFrontMatter splits a "---\n...\n---\n" prefix from the body. Documents
// without front matter come back with empty metadata.
func splitFrontMatter(text string) (map[string]any, string, error) {
	if !strings.HasPrefix(text, "---") {
		return map[string]any{}, text, nil
	}
	parts := strings.SplitN(text, "---", 3)
	if len(parts) < 3 {
		return map[string]any{}, text, nil
	}
	meta := map[string]any{}
	if err := yaml.Unmarshal([]byte(parts[1]), &meta); err != nil {
		return nil, "", fmt.Errorf("template front matter: %w", err)
	}
	return meta, strings.TrimLeft(parts[2], "\n"), nil
}

func loadTemplate(path string) (*TemplateDoc, error) {
	data, err := templatesFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", path, err)
	}
	meta, body, err := splitFrontMatter(string(data))
	if err != nil {
		return nil, err
	}
	return &TemplateDoc{Metadata: meta, Body: body}, nil
}

// LoadPrompt loads a prompt template by set and kind (goal, handshake, summary).
func LoadPrompt(promptSet, kind string) (*TemplateDoc, error) {
	return loadTemplate(fmt.Sprintf("templates/prompts/%s/%s.prompt.md", promptSet, kind))
}

// LoadMessage loads a message template by name (e.g. agent_instructions).
func LoadMessage(name string) (*TemplateDoc, error) {
	return loadTemplate(fmt.Sprintf("templates/messages/%s.md", name))
}

// AgentInstructions returns the instruction text shown to agents in status
// output. Falls back to an empty string if the template is missing.
func AgentInstructions() string {
	doc, err := LoadMessage("agent_instructions")
	if err != nil {
		return ""
	}
	return doc.Body
}

// SeedTemplates copies the embedded templates into <home>/templates so users
// can inspect and customize them. Existing files are never overwritten.
func SeedTemplates(homeDir string) error {
	root := filepath.Join(homeDir, TemplatesDirName)
	return fs.WalkDir(templatesFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(path, "templates")
		rel = strings.TrimPrefix(rel, "/")
		target := filepath.Join(root, filepath.FromSlash(rel))
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if _, err := os.Stat(target); err == nil {
			return nil
		}
		data, err := templatesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("seed template %s: %w", path, err)
		}
		return os.WriteFile(target, data, 0o644)
	})
}
