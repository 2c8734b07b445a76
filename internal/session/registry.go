package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jaakkos/planloop/internal/domain"
	"github.com/jaakkos/planloop/internal/home"
)

// Summary is one registry entry in <home>/index.json.
type Summary struct {
	Session       string   `json:"session"`
	Name          string   `json:"name"`
	Title         string   `json:"title"`
	Tags          []string `json:"tags"`
	ProjectRoot   string   `json:"project_root"`
	CreatedAt     string   `json:"created_at"`
	LastUpdatedAt string   `json:"last_updated_at"`
	Done          bool     `json:"done"`
}

type registryDoc struct {
	Sessions  []Summary `json:"sessions"`
	UpdatedAt string    `json:"updated_at,omitempty"`
}

func summaryOf(state *domain.SessionState) Summary {
	tags := state.Tags
	if tags == nil {
		tags = []string{}
	}
	return Summary{
		Session:       state.Session,
		Name:          state.Name,
		Title:         state.Title,
		Tags:          tags,
		ProjectRoot:   state.ProjectRoot,
		CreatedAt:     state.CreatedAt.Format(time.RFC3339Nano),
		LastUpdatedAt: state.LastUpdatedAt.Format(time.RFC3339Nano),
		Done:          state.Done,
	}
}

func (st *Store) registryPath() string {
	return filepath.Join(st.HomeDir, home.RegistryFileName)
}

// LoadRegistry reads the session index; a missing file yields an empty list.
func (st *Store) LoadRegistry() ([]Summary, error) {
	data, err := os.ReadFile(st.registryPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var doc registryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return doc.Sessions, nil
}

// FindSummary returns the registry entry for a session id.
func (st *Store) FindSummary(sessionID string) (*Summary, error) {
	entries, err := st.LoadRegistry()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Session == sessionID {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
}

// upsertRegistry replaces or appends the entry and rewrites the index sorted
// by last_updated_at, newest first.
func (st *Store) upsertRegistry(sum Summary) error {
	entries, err := st.LoadRegistry()
	if err != nil {
		return err
	}
	filtered := entries[:0]
	for _, e := range entries {
		if e.Session != sum.Session {
			filtered = append(filtered, e)
		}
	}
	filtered = append(filtered, sum)
	sort.SliceStable(filtered, func(i, j int) bool {
		ti, _ := time.Parse(time.RFC3339Nano, filtered[i].LastUpdatedAt)
		tj, _ := time.Parse(time.RFC3339Nano, filtered[j].LastUpdatedAt)
		return ti.After(tj)
	})

	doc := registryDoc{Sessions: filtered, UpdatedAt: time.Now().UTC().Format(time.RFC3339)}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	return writeFileAtomic(st.registryPath(), raw)
}
