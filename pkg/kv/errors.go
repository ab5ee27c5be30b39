package kv

import "errors"

var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("kv: key not found")

	// ErrNotInteger is returned by Incr when the key holds a value that
	// is not an integer counter.
	ErrNotInteger = errors.New("kv: value is not an integer")
)
