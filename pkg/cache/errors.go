package cache

import "errors"

// Sentinel errors for cache operations.
var (
	// ErrNotFound is returned when the entity does not exist: either a
	// null marker was hit, or the loader reported absence. Loaders
	// signal "no such entity" by returning ErrNotFound themselves.
	ErrNotFound = errors.New("cache: entity not found")

	// ErrMarshal is returned when value serialization fails.
	ErrMarshal = errors.New("cache: failed to marshal value")

	// ErrUnmarshal is returned when value deserialization fails.
	ErrUnmarshal = errors.New("cache: failed to unmarshal value")
)
