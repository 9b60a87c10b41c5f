package revent

import "errors"

// Sentinel errors surfaced across package boundaries. The sentinels
// themselves are plain errors.New values. Some returned errors wrap a
// sentinel with pkg/errors stack context (Buffer.Prepend, for one); those
// wrappers support Unwrap, so callers match them with errors.Is/errors.As
// without depending on pkg/errors themselves.
var (
	// ErrPrependExhausted is returned by Buffer.Prepend when n exceeds the
	// remaining prepend headroom.
	ErrPrependExhausted = errors.New("revent: prepend region exhausted")

	// ErrNotOwnerThread is the programmer-error signal for a mutation
	// attempted from a goroutine other than a Loop's owner goroutine.
	// AssertInLoopThread panics with this wrapped in rather than returning
	// it, since calling loop methods off the owner goroutine is a programmer
	// error, not a recoverable condition.
	ErrNotOwnerThread = errors.New("revent: operation called from non-owner goroutine")

	// ErrUnknownTimer is returned by Cancel when the (pointer, sequence)
	// pair no longer identifies a live timer.
	ErrUnknownTimer = errors.New("revent: unknown or already-fired timer")

	// ErrConnectorStopped is passed to a Connector's error callback if a
	// connect attempt is reached after Stop has already requested
	// "do not connect" — defensive, since Stop also cancels any pending
	// retry timer on the same owner goroutine before this could observe it.
	ErrConnectorStopped = errors.New("revent: connector stopped")
)
