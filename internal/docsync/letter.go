package docsync

import (
	"errors"
	"fmt"
)

type State string

const (
	StateUnsaved  State = "unsaved"
	StateCreating State = "creating"
	StateCreated  State = "created"
	StateSyncing  State = "syncing"
	StateFailed   State = "failed"
)

var ErrInvalidTransition = errors.New("invalid letter state transition")

// Letter is the editor-side view of one remote document. ID stays empty
// until the provider assigns one and never changes afterwards.
type Letter struct {
	ID      string
	Title   string
	Content string
	State   State
	Err     error

	resume State
}

func NewLetter(title, content string) *Letter {
	return &Letter{Title: title, Content: content, State: StateUnsaved}
}

// ExistingLetter wraps a letter that already has a remote document.
func ExistingLetter(id, content string) *Letter {
	return &Letter{ID: id, Content: content, State: StateCreated}
}

// BeginSave moves Unsaved to Creating or Created to Syncing.
func (l *Letter) BeginSave() error {
	switch l.State {
	case StateUnsaved:
		l.resume, l.State = StateUnsaved, StateCreating
	case StateCreated:
		l.resume, l.State = StateCreated, StateSyncing
	default:
		return fmt.Errorf("%w: save from %s", ErrInvalidTransition, l.State)
	}
	l.Err = nil
	return nil
}

// Succeed settles an in-flight save. id is required when creating and must
// match the existing id when syncing.
func (l *Letter) Succeed(id string) error {
	switch l.State {
	case StateCreating:
		if id == "" {
			return fmt.Errorf("%w: created without id", ErrInvalidTransition)
		}
		l.ID = id
	case StateSyncing:
		if id != "" && id != l.ID {
			return fmt.Errorf("%w: id is immutable", ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("%w: succeed from %s", ErrInvalidTransition, l.State)
	}
	l.State = StateCreated
	return nil
}

func (l *Letter) Fail(err error) error {
	if l.State != StateCreating && l.State != StateSyncing {
		return fmt.Errorf("%w: fail from %s", ErrInvalidTransition, l.State)
	}
	l.State, l.Err = StateFailed, err
	return nil
}

// Retry returns a failed letter to its pre-attempt state. Nothing is retried
// automatically.
func (l *Letter) Retry() error {
	if l.State != StateFailed {
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, l.State)
	}
	l.State, l.Err = l.resume, nil
	return nil
}
