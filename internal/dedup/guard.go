// Package dedup suppresses duplicate command execution. The upstream event
// source redelivers webhooks, so every command carries a request id and the
// guard lets each id through exactly once within its retention window.
package dedup

import "context"

// Guard tracks recently seen request ids. Implementations must make the
// check-and-record step atomic: of two concurrent callers presenting the
// same id, exactly one may proceed.
type Guard interface {
	// ShouldProcess returns true the first time requestID is seen and
	// records it as a side effect; every repeat within the retention window
	// returns false. A non-nil error means the guard itself is unavailable
	// and nothing was recorded.
	ShouldProcess(ctx context.Context, requestID string) (bool, error)

	// Forget releases a recorded id so the caller can retry a command whose
	// execution failed before taking effect.
	Forget(ctx context.Context, requestID string)
}
