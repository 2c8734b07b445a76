package session

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/jaakkos/planloop/internal/deadlock"
	"github.com/jaakkos/planloop/internal/domain"
	"github.com/jaakkos/planloop/internal/home"
)

// slugify lowercases and collapses non-alphanumerics into single hyphens.
func slugify(text string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "session"
	}
	return slug
}

// NewSessionID builds a unique id: <slug>-<UTC timestamp>-<short random>.
func NewSessionID(name string) string {
	ts := time.Now().UTC().Format("20060102T150405Z")
	rand := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return fmt.Sprintf("%s-%s-%s", slugify(name), ts, rand)
}

// Create initializes a new session: empty plan, idle now, fresh deadlock
// tracker, registry entry, and the current-session pointer updated.
func (st *Store) Create(name, title, projectRoot string) (*domain.SessionState, error) {
	sessionID := NewSessionID(name)
	dir := st.Dir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	ts := time.Now().UTC()
	state := &domain.SessionState{
		SchemaVersion: domain.SchemaVersion,
		Version:       1,
		Session:       sessionID,
		Name:          name,
		Title:         title,
		Tags:          []string{},
		CreatedAt:     ts,
		LastUpdatedAt: ts,
		ProjectRoot:   projectRoot,
		Prompts:       domain.PromptMetadata{Set: home.DefaultPromptSet},
		Environment: domain.Environment{
			OS:   runtime.GOOS,
			Arch: runtime.GOARCH,
			Go:   runtime.Version(),
		},
		Tasks:        []domain.Task{},
		Signals:      []domain.Signal{},
		NextSteps:    []string{},
		ContextNotes: []string{},
		Artifacts:    []domain.Artifact{},
		Now:          domain.Now{Reason: domain.ReasonIdle},
	}

	if err := st.Save(state, "Session created"); err != nil {
		return nil, err
	}
	if err := (&deadlock.Tracker{}).Persist(dir); err != nil {
		return nil, err
	}
	if err := home.SetCurrentSession(st.HomeDir, sessionID); err != nil {
		return nil, err
	}
	return state, nil
}
