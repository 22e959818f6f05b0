package storage

import "errors"

// ErrNotFound is returned when a row lookup by id matches nothing. Callers
// test with errors.Is; the wrapped message carries the id.
var ErrNotFound = errors.New("not found")
