package reactor

import "errors"

// ErrTimeout is returned by Future.Wait when the timeout elapses before
// the future resolves.
var ErrTimeout = errors.New("reactor: future timed out")

// ErrCancelled is returned by Future.Wait when the caller's done channel
// closes before the future resolves.
var ErrCancelled = errors.New("reactor: future cancelled")
