package domain

import (
	"errors"
	"fmt"
)

// ErrStructureNotFound is returned when the requested substation does not
// resolve to any element. It is the one failure a trace cannot absorb.
var ErrStructureNotFound = errors.New("structure not found")

// NotFoundError wraps ErrStructureNotFound with the identity that failed
// to resolve.
type NotFoundError struct {
	ID ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrStructureNotFound, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrStructureNotFound }
