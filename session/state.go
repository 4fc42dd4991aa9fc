/*
File Name:  state.go

The per-peer session state machine (C5, §4.5):

	None ──(need send)──▶ HandshakeQueued
	HandshakeQueued ──(send init)──▶ Handshaking
	Handshaking ──(complete)──▶ Established
	Handshaking ──(timeout 10s or auth fail)──▶ Failed → None (after back-off)
	Established ──(rekey countdown 0 or nonce near wrap)──▶ Handshaking
*/

package session

import "time"

// State names one node of the session state machine.
type State int

const (
	StateNone State = iota
	StateHandshakeQueued
	StateHandshaking
	StateEstablished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateHandshakeQueued:
		return "handshake_queued"
	case StateHandshaking:
		return "handshaking"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// HandshakeTimeout is how long a Handshaking session waits for completion
// before failing (§4.5).
const HandshakeTimeout = 10 * time.Second

// FailedBackoff is the minimum time a session stays in Failed before a new
// handshake may be queued again.
const FailedBackoff = 5 * time.Second

// RekeyMessageCap upper-bounds the rekey countdown independent of wall
// clock (§4.5: "upper-bounded at 2^32").
const RekeyMessageCap = uint64(1) << 32

// RekeyWallClockCap is the wall-clock cap on an Established session's
// lifetime before a rekey is forced regardless of message count (§4.5:
// "e.g., 1 hour").
const RekeyWallClockCap = time.Hour
