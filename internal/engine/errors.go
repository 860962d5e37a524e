package engine

import (
	"errors"
	"fmt"
)

// ErrNoState is returned by Load when the blob store holds no snapshot.
var ErrNoState = errors.New("no saved state")

// EffectHandlerFault wraps an error or panic raised by an effect handler.
// The driver logs it and leaves the record for the next pass.
type EffectHandlerFault struct {
	TaskID string
	Kind   string
	Phase  string // start | interval | completion | cancel
	Err    error
	Panic  any
	Stack  string
}

func (f *EffectHandlerFault) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("effect handler %s/%s for task %s panicked: %v", f.Kind, f.Phase, f.TaskID, f.Panic)
	}
	return fmt.Sprintf("effect handler %s/%s for task %s: %v", f.Kind, f.Phase, f.TaskID, f.Err)
}

func (f *EffectHandlerFault) Unwrap() error { return f.Err }
