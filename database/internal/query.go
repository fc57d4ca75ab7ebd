package internal

import (
	"fmt"

	"github.com/sagarc03/stashbox"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// ListLimit clamps a requested page size into [1, MaxListLimit], using
// DefaultListLimit when none was requested.
func ListLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	default:
		return n
	}
}

// ParseListCursor decodes q.Cursor, reporting a bad cursor as invalid input.
func ParseListCursor(cursor string) (Cursor, error) {
	c, err := DecodeCursor(cursor)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %w", stashbox.ErrInvalidInput, err)
	}
	return c, nil
}
