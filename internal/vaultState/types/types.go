// Package types defines the contract every projection model implements and
// the error classes the engine uses to decide how a failed transition
// affects the stream.
package types

import (
	"errors"

	"github.com/vaultgraph/vaultgraph/internal/chain"
)

// VaultStateModel is one registered projection. The engine offers every
// event and call to every model in registration order; a model only handles
// what it declares interesting.
type VaultStateModel interface {
	ModelName() string
	InterestingEvent(event *chain.Event) bool
	InterestingCall(call *chain.Call) bool
	HandleEvent(event *chain.Event) error
	HandleCall(call *chain.Call) error
}

// Error classes. Models wrap these so the engine can log and count each
// failure mode without inspecting messages. All of them abort at most the
// single offending event; the stream always continues.
var (
	// ErrMissingParent marks a transition whose referenced parent entity
	// was never created.
	ErrMissingParent = errors.New("missing parent entity")

	// ErrMalformedInput marks an event or call whose decoded payload does
	// not match any known shape.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInvariantViolation marks a transition that would contradict
	// already-committed state, such as a strategy update naming the wrong
	// vault. The transition must abort without partial mutation.
	ErrInvariantViolation = errors.New("invariant violation")
)
