package task

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownKind = errors.New("unknown task kind")
	ErrDuplicate   = errors.New("duplicate task id")
	ErrBusy        = errors.New("entity unavailable")
	ErrNotFound    = errors.New("task not found")
)

// DuplicateTaskError is returned by Store.Add when the id is already live.
// It is a programmer error: callers must check IsBusy before creating.
type DuplicateTaskError struct {
	ID string
}

func (e *DuplicateTaskError) Error() string { return fmt.Sprintf("duplicate task id %q", e.ID) }
func (e *DuplicateTaskError) Unwrap() error { return ErrDuplicate }

// BusyError reports that a subject already holds a conflicting live task.
type BusyError struct {
	Kind     Kind
	Conflict []Slot
	TaskIDs  []string
}

func (e *BusyError) Error() string {
	parts := make([]string, 0, len(e.Conflict))
	for _, s := range e.Conflict {
		parts = append(parts, s.String())
	}
	return fmt.Sprintf("%s: cannot start %s (held: %s)", ErrBusy, e.Kind, strings.Join(parts, ","))
}

func (e *BusyError) Unwrap() error { return ErrBusy }
