package finegrain

import (
	"errors"
	"fmt"
)

// MaxIterations bounds the rounds of change propagation in one update.
const MaxIterations = 1000

var (
	// ErrEngineClosed is returned by every call on a closed Engine.
	ErrEngineClosed = errors.New("finegrain: engine closed")
	// ErrNotBuilt is returned by Update before the initial Build.
	ErrNotBuilt = errors.New("finegrain: update before build")
)

// InternalError reports a broken invariant of the update machinery, such
// as propagation that does not reach a fixed point. It is never caused by
// the program being checked. An Engine that returned an InternalError
// refuses further updates.
type InternalError struct {
	Op  string
	Msg string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("finegrain: internal error in %s: %s", e.Op, e.Msg)
}

func internalErrorf(op, format string, args ...any) *InternalError {
	return &InternalError{Op: op, Msg: fmt.Sprintf(format, args...)}
}
