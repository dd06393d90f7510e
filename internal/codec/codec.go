// Package codec defines the contracts between vendor wire formats and the
// canonical event algebra: stateful stream decoders (frames in, canonical
// events out) and stream encoders (canonical events in, vendor-exact wire
// bytes out). Vendor implementations live in subpackages and are selected at
// client construction time; there is no runtime plugin mechanism.
package codec

import (
	"errors"
	"fmt"

	"github.com/polywire/polywire/internal/domain"
	"github.com/polywire/polywire/internal/sse"
)

// StreamDecoder converts one wire frame at a time into zero or more canonical
// events. A decoder instance holds per-request accumulation state (open tool
// calls, open text segments, emitted guards) and serves exactly one request;
// it is never shared or reused.
type StreamDecoder interface {
	// Decode converts one frame. A single frame may fan out into several
	// canonical events. A malformed frame returns an error and poisons the
	// decoder: the stream is aborted rather than resynchronized, because a
	// partially applied tool-call fragment would corrupt the argument buffer.
	Decode(frame sse.Frame) ([]domain.StreamEvent, error)

	// Flush emits any remaining events at end of stream, for vendors that
	// signal completion only by closing the connection. After Flush the
	// decoder is exhausted.
	Flush() []domain.StreamEvent
}

// StreamEncoder serializes canonical events into one vendor's exact wire
// grammar, including field names, casing, and frame boundaries. Gateway
// consumers are third-party clients of that vendor's protocol, so the output
// must be byte-compatible with the real service.
type StreamEncoder interface {
	// Encode returns the wire bytes for one event. The returned slice may be
	// empty when the event produces no frame for this vendor.
	Encode(ev domain.StreamEvent) ([]byte, error)
}

// UnsupportedPolicy selects what an encoder does with a canonical event the
// target protocol cannot express. There is no default: deployments differ on
// the right behavior, so constructors require an explicit choice.
type UnsupportedPolicy int

const (
	policyUnset UnsupportedPolicy = iota

	// PolicyDrop silently omits the unsupported event.
	PolicyDrop

	// PolicyDowngrade re-emits the event as a text annotation.
	PolicyDowngrade

	// PolicyError fails the encode with ErrUnsupportedConstruct.
	PolicyError
)

// ErrUnsupportedConstruct is returned (wrapped) by encoders under PolicyError.
var ErrUnsupportedConstruct = errors.New("unsupported construct for target protocol")

// ValidatePolicy rejects the zero value so a missing configuration choice is
// caught at construction, not mid-stream.
func ValidatePolicy(p UnsupportedPolicy) error {
	switch p {
	case PolicyDrop, PolicyDowngrade, PolicyError:
		return nil
	default:
		return fmt.Errorf("unsupported-construct policy must be configured (drop, downgrade, or error)")
	}
}

// ParsePolicy maps a configuration string to a policy.
func ParsePolicy(s string) (UnsupportedPolicy, error) {
	switch s {
	case "drop":
		return PolicyDrop, nil
	case "downgrade":
		return PolicyDowngrade, nil
	case "error":
		return PolicyError, nil
	default:
		return policyUnset, fmt.Errorf("unknown unsupported-construct policy %q", s)
	}
}
