package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrSubscription marks a terminal failure of a remote feed.
	ErrSubscription = errors.New("cache: subscription failed")
	// ErrOffline is returned for writes before any remote snapshot arrived.
	ErrOffline = errors.New("cache: offline")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cache: closed")
	// ErrUnknownCollection is returned for mutations outside the configured collections.
	ErrUnknownCollection = errors.New("cache: unknown collection")
	// ErrInvalidMutation is returned for malformed mutations.
	ErrInvalidMutation = errors.New("cache: invalid mutation")
)

// WriteFailure reports a remote write that failed after its optimistic
// change was rolled back.
type WriteFailure struct {
	Mutation Mutation
	Err      error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("cache: write %s %s/%s rolled back: %v", e.Mutation.Op, e.Mutation.Collection, e.Mutation.DocumentID, e.Err)
}

func (e *WriteFailure) Unwrap() error {
	return e.Err
}
