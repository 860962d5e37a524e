package effects

import "errors"

var (
	ErrUnknownEntity = errors.New("unknown entity")
	ErrInsufficient  = errors.New("insufficient resources")
	ErrDailyLimit    = errors.New("daily mission limit reached")
	ErrAlreadyBuilt  = errors.New("structure already built")
	ErrNotBuilt      = errors.New("structure not built")
	ErrNoHandler     = errors.New("no effect handler registered")
)
