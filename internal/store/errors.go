package store

import "errors"

// ErrNotFound is returned by writes that target a row that does not exist.
var ErrNotFound = errors.New("not found")
