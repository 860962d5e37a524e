package snapshot

import (
	"errors"
	"fmt"
)

var ErrCorruptSave = errors.New("save file unreadable")

// CorruptSaveError reports a blob that is not a recognized snapshot
// container. Callers fall back to fresh state and surface a notice.
type CorruptSaveError struct {
	Reason string
	Err    error
}

func (e *CorruptSaveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrCorruptSave, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrCorruptSave, e.Reason)
}

func (e *CorruptSaveError) Unwrap() error { return e.Err }

func (e *CorruptSaveError) Is(target error) bool { return target == ErrCorruptSave }

func corrupt(reason string, err error) error {
	return &CorruptSaveError{Reason: reason, Err: err}
}
