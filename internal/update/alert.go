package update

import (
	"context"
	"fmt"
	"time"

	"github.com/jaakkos/planloop/internal/domain"
	"github.com/jaakkos/planloop/internal/lock"
)

// AlertInput describes an open-signal request. Level defaults to info and
// type to other; id, kind, title, and message are required.
type AlertInput struct {
	ID      string
	Type    domain.SignalType
	Kind    string
	Level   domain.SignalLevel
	Title   string
	Message string
	Link    string
}

// OpenAlert opens a new signal under the session lock. Duplicate ids are
// rejected by the state layer.
func (r *Runner) OpenAlert(ctx context.Context, sessionID string, in AlertInput, timeout time.Duration) (*Result, error) {
	if in.ID == "" || in.Kind == "" || in.Title == "" || in.Message == "" {
		return nil, fmt.Errorf("%w: alert needs id, kind, title, and message", ErrMalformedInput)
	}
	if in.Level == "" {
		in.Level = domain.LevelInfo
	}
	if in.Type == "" {
		in.Type = domain.SignalOther
	}
	if !domain.ValidSignalLevel(in.Level) {
		return nil, fmt.Errorf("%w: invalid signal level %q", ErrMalformedInput, in.Level)
	}
	if !domain.ValidSignalType(in.Type) {
		return nil, fmt.Errorf("%w: invalid signal type %q", ErrMalformedInput, in.Type)
	}

	release, err := lock.Acquire(ctx, r.Store, sessionID, "alert", timeout)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := r.Store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	err = state.OpenSignal(domain.Signal{
		ID:      in.ID,
		Type:    in.Type,
		Kind:    in.Kind,
		Level:   in.Level,
		Open:    true,
		Title:   in.Title,
		Message: in.Message,
		Link:    in.Link,
	})
	if err != nil {
		return nil, err
	}
	if err := r.Store.Save(state, "Signal "+in.ID+" opened"); err != nil {
		return nil, err
	}
	return &Result{Status: "ok", Session: state.Session, Version: state.Version, Now: state.Now}, nil
}

// CloseAlert closes an existing signal under the session lock. The signal
// stays in the list for history.
func (r *Runner) CloseAlert(ctx context.Context, sessionID, signalID string, timeout time.Duration) (*Result, error) {
	if signalID == "" {
		return nil, fmt.Errorf("%w: alert close needs a signal id", ErrMalformedInput)
	}

	release, err := lock.Acquire(ctx, r.Store, sessionID, "alert", timeout)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := r.Store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	if err := state.CloseSignal(signalID); err != nil {
		return nil, err
	}
	if err := r.Store.Save(state, "Signal "+signalID+" closed"); err != nil {
		return nil, err
	}
	return &Result{Status: "ok", Session: state.Session, Version: state.Version, Now: state.Now}, nil
}
