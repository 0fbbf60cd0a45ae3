package frame

import (
	"errors"
	"fmt"
	"time"
)

// ErrConflictingWrite is matched by every ConflictingWriteError.
var ErrConflictingWrite = errors.New("conflicting write")

// ConflictingWriteError reports an attempt to replace an occupied cell with a
// different value.
type ConflictingWriteError[F comparable, V any] struct {
	Index    time.Time
	Field    F
	Existing V
	New      V
}

func (e *ConflictingWriteError[F, V]) Error() string {
	return fmt.Sprintf("conflicting write at %s for %v: cell holds %v, refusing %v",
		e.Index.Format(time.RFC3339Nano), e.Field, e.Existing, e.New)
}

func (e *ConflictingWriteError[F, V]) Is(target error) bool {
	return target == ErrConflictingWrite
}
