/*
File Name:  nonce.go

Data-phase AES-GCM/ChaChaPoly nonces are 12 bytes: a 1-byte direction marker
followed by an 11-byte monotonic counter. Reuse of a (direction, counter)
pair within a session is a hard fault that must force a rekey; NonceCounter
enforces monotonicity and reports wrap-around before it can happen.
*/

package meshcrypto

import (
	"encoding/binary"
	"errors"
)

// DirectionInitiatorToResponder and DirectionResponderToInitiator are the
// two one-byte direction markers mixed into the data-phase nonce, keeping
// the two independent send/recv counters of an Established session from
// ever producing the same 12-byte nonce.
const (
	DirectionInitiatorToResponder byte = 0x00
	DirectionResponderToInitiator byte = 0x01
)

// ErrNonceExhausted is returned once the 11-byte counter would wrap,
// forcing the session to rekey rather than ever reuse a nonce.
var ErrNonceExhausted = errors.New("meshcrypto: nonce counter exhausted, rekey required")

// maxCounter is the counter value at which Next stops issuing nonces (2^63-1).
const maxCounter = (uint64(1) << 63) - 1 // conservative cap well below 2^88, see NonceCounter doc

// NonceCounter produces monotonically increasing 12-byte nonces for one
// direction of a session. It is not safe for concurrent use; the session
// layer serializes access to it on the owning peer's queue (§5).
type NonceCounter struct {
	direction byte
	counter   uint64
}

// NewNonceCounter creates a counter for the given direction, starting at 0.
func NewNonceCounter(direction byte) *NonceCounter {
	return &NonceCounter{direction: direction}
}

// Next returns the next nonce and advances the counter. It fails closed:
// once the counter reaches maxCounter (well short of the 88-bit field's
// true range) it returns ErrNonceExhausted instead of producing a nonce,
// forcing the session into a rekey.
func (nc *NonceCounter) Next() (nonce [12]byte, err error) {
	if nc.counter >= maxCounter {
		return nonce, ErrNonceExhausted
	}

	nonce[0] = nc.direction

	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], nc.counter)
	// 11-byte counter field: the 8-byte big-endian counter fills
	// nonce[4:12]; the field's top three bytes, nonce[1:4], stay zero.
	copy(nonce[4:12], counterBytes[:])

	nc.counter++

	return nonce, nil
}

// Count returns how many nonces have been produced so far.
func (nc *NonceCounter) Count() uint64 {
	return nc.counter
}
