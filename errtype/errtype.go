/*
File Name:  errtype.go

The error taxonomy of §7: every error the core produces belongs to exactly
one of these buckets, so a caller can `errors.As` to the bucket instead of
string-matching. Mirrors the teacher's preference for small sentinel-style
error values (e.g. protocol.ErrOutOfBounds) but adds one layer:
a Kind wrapper that callers one level up the stack (router, transport
manager) can branch on without needing to know which package raised it.
*/

package errtype

import "fmt"

// Kind is one bucket of the §7 error taxonomy.
type Kind int

const (
	// Parse covers malformed bytes, bounds violations, bad version, oversize
	// fields. Recovered locally: drop the packet, count it, continue.
	Parse Kind = iota
	// Crypto covers signature/decrypt/auth failures and detected nonce reuse.
	// Transitions the owning session to Failed.
	Crypto
	// Session covers handshake timeout, stale handshake, unknown peer key.
	Session
	// Transport covers link unavailable, send failed, timeout, peer not found.
	Transport
	// Resource covers capacity exhaustion (sessions, assemblies, queues).
	// Never fatal: triggers FIFO eviction.
	Resource
	// Replay covers duplicate fingerprints and sequence regression.
	Replay
)

func (k Kind) String() string {
	switch k {
	case Parse:
		return "parse"
	case Crypto:
		return "crypto"
	case Session:
		return "session"
	case Transport:
		return "transport"
	case Resource:
		return "resource"
	case Replay:
		return "replay"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with its taxonomy bucket.
type Error struct {
	Kind Kind
	Op   string // component/function that raised it, e.g. "protocol.DecodePacket"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a taxonomy error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind, looking through wrapping.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if asErr, ok := err.(*Error); ok {
			e = asErr
			break
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return e != nil && e.Kind == kind
}
