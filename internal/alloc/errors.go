package alloc

import "errors"

var (
	// ErrRequestTooLarge indicates a single request can never fit in the
	// arena regardless of collection (requested size exceeds the arena).
	ErrRequestTooLarge = errors.New("alloc: requested size exceeds arena capacity")
)
