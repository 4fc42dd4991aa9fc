/*
File Name:  session.go

Session wraps one peer's Noise_XX handshake and, once Established, its two
independent send/recv CipherStates (§4.5). The flynn/noise CipherState owns
the actual AEAD nonce counter internally; meshcrypto.NonceCounter is reused
here purely as bookkeeping to decide when the rekey countdown has run out
(§4.5's "messages-since-handshake" cap), not as the wire nonce source.
*/

package session

import (
	"errors"
	"sync"
	"time"

	"github.com/flynn/noise"

	"github.com/bitchat-mesh/meshcore/errtype"
	"github.com/bitchat-mesh/meshcore/identity"
	"github.com/bitchat-mesh/meshcore/meshcrypto"
)

var (
	ErrNotEstablished   = errors.New("session: not in Established state")
	ErrWrongState       = errors.New("session: handshake called from wrong state")
	ErrDecryptFailed    = errors.New("session: decrypt failed")
)

// Session is one peer's session state machine plus its Noise handshake and
// established ciphers. Safe for concurrent use: every method takes the
// session's own mutex.
type Session struct {
	mu sync.Mutex

	Fingerprint identity.Fingerprint
	isInitiator bool
	state       State
	peerID      [8]byte

	hs *noise.HandshakeState

	sendCipher *noise.CipherState
	recvCipher *noise.CipherState

	sendCounter *meshcrypto.NonceCounter
	recvCounter *meshcrypto.NonceCounter

	handshakeStartedAt time.Time
	establishedAt      time.Time
	failedAt           time.Time
	failReason         error
}

// newSession constructs a session in state None.
func newSession(fingerprint identity.Fingerprint) *Session {
	return &Session{Fingerprint: fingerprint, state: StateNone}
}

// State returns the session's current state, resolving an expired Failed
// back-off to None (§4.5: "Failed → None (after back-off)").
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	if s.state == StateFailed && time.Since(s.failedAt) >= FailedBackoff {
		s.state = StateNone
	}
	return s.state
}

// Enqueue transitions None -> HandshakeQueued (§4.5: "user-visible actions
// that require confidentiality enqueue a handshake if state=None").
func (s *Session) Enqueue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateLocked() != StateNone {
		return false
	}
	s.state = StateHandshakeQueued
	return true
}

// StartInitiator begins the handshake as the initiator, producing the first
// wire message. handshakePayload is typically an encoded
// identity.Announcement carried in the clear inside message 1 (§4.5).
func (s *Session) StartInitiator(static meshcrypto.X25519KeyPair, handshakePayload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked()
	if state != StateHandshakeQueued && !(state == StateHandshaking && s.hs == nil) {
		return nil, errtype.New(errtype.Session, "session.StartInitiator", ErrWrongState)
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: CipherSuite(DefaultSuiteName),
		Pattern:     HandshakePattern,
		Initiator:   true,
		StaticKeypair: noise.DHKey{
			Private: static.Private[:],
			Public:  static.Public[:],
		},
	})
	if err != nil {
		return nil, errtype.New(errtype.Crypto, "session.StartInitiator", err)
	}

	out, _, _, err := hs.WriteMessage(nil, handshakePayload)
	if err != nil {
		return nil, errtype.New(errtype.Crypto, "session.StartInitiator", err)
	}

	s.hs = hs
	s.isInitiator = true
	s.state = StateHandshaking
	s.handshakeStartedAt = time.Now()

	return out, nil
}

// StartResponder prepares a session to respond to an incoming handshake
// initiation; the caller feeds message 1 through ReadMessage immediately
// after.
func (s *Session) StartResponder(static meshcrypto.X25519KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked()
	if state != StateNone && state != StateHandshakeQueued {
		return errtype.New(errtype.Session, "session.StartResponder", ErrWrongState)
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: CipherSuite(DefaultSuiteName),
		Pattern:     HandshakePattern,
		Initiator:   false,
		StaticKeypair: noise.DHKey{
			Private: static.Private[:],
			Public:  static.Public[:],
		},
	})
	if err != nil {
		return errtype.New(errtype.Crypto, "session.StartResponder", err)
	}

	s.hs = hs
	s.isInitiator = false
	s.state = StateHandshaking
	s.handshakeStartedAt = time.Now()

	return nil
}

// ReadHandshakeMessage feeds an incoming handshake message through the
// Noise state machine, completing the handshake and transitioning to
// Established when the pattern finishes.
func (s *Session) ReadHandshakeMessage(msg []byte) (payload []byte, established bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stateLocked() != StateHandshaking {
		return nil, false, errtype.New(errtype.Session, "session.ReadHandshakeMessage", ErrWrongState)
	}
	if time.Since(s.handshakeStartedAt) > HandshakeTimeout {
		s.failLocked(errors.New("session: handshake timed out"))
		return nil, false, errtype.New(errtype.Session, "session.ReadHandshakeMessage", errors.New("handshake timeout"))
	}

	payload, cs1, cs2, err := s.hs.ReadMessage(nil, msg)
	if err != nil {
		s.failLocked(err)
		return nil, false, errtype.New(errtype.Crypto, "session.ReadHandshakeMessage", err)
	}

	if cs1 != nil && cs2 != nil {
		s.completeLocked(cs1, cs2)
		return payload, true, nil
	}

	return payload, false, nil
}

// WriteHandshakeMessage produces the next outbound handshake message,
// completing the handshake when the pattern finishes.
func (s *Session) WriteHandshakeMessage(payload []byte) (out []byte, established bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stateLocked() != StateHandshaking {
		return nil, false, errtype.New(errtype.Session, "session.WriteHandshakeMessage", ErrWrongState)
	}

	out, cs1, cs2, err := s.hs.WriteMessage(nil, payload)
	if err != nil {
		s.failLocked(err)
		return nil, false, errtype.New(errtype.Crypto, "session.WriteHandshakeMessage", err)
	}

	if cs1 != nil && cs2 != nil {
		s.completeLocked(cs1, cs2)
		return out, true, nil
	}

	return out, false, nil
}

func (s *Session) completeLocked(cs1, cs2 *noise.CipherState) {
	if s.isInitiator {
		s.sendCipher, s.recvCipher = cs1, cs2
	} else {
		s.sendCipher, s.recvCipher = cs2, cs1
	}
	s.sendCounter = meshcrypto.NewNonceCounter(meshcrypto.DirectionInitiatorToResponder)
	s.recvCounter = meshcrypto.NewNonceCounter(meshcrypto.DirectionResponderToInitiator)
	s.state = StateEstablished
	s.establishedAt = time.Now()
	s.hs = nil
}

func (s *Session) failLocked(reason error) {
	s.state = StateFailed
	s.failedAt = time.Now()
	s.failReason = reason
	s.hs = nil
	s.sendCipher = nil
	s.recvCipher = nil
}

// Fail forces the session into Failed, e.g. on a detected decrypt auth
// failure (§4.5: "On decrypt failure, emit a Nack and mark session Failed").
func (s *Session) Fail(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(reason)
}

// Encrypt encrypts plaintext for the wire and reports whether a rekey
// should now be queued (§4.5's countdown/wall-clock caps).
func (s *Session) Encrypt(plaintext []byte) (ciphertext []byte, needsRekey bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stateLocked() != StateEstablished {
		return nil, false, errtype.New(errtype.Session, "session.Encrypt", ErrNotEstablished)
	}

	out, err := s.sendCipher.Encrypt(nil, nil, plaintext)
	if err != nil {
		s.failLocked(err)
		return nil, false, errtype.New(errtype.Crypto, "session.Encrypt", err)
	}
	if _, nonceErr := s.sendCounter.Next(); nonceErr != nil {
		s.failLocked(nonceErr)
		return nil, false, errtype.New(errtype.Crypto, "session.Encrypt", nonceErr)
	}

	return out, s.needsRekeyLocked(), nil
}

// Decrypt decrypts ciphertext received from the wire. A failure marks the
// session Failed, per §4.5, and never returns partial plaintext.
func (s *Session) Decrypt(ciphertext []byte) (plaintext []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stateLocked() != StateEstablished {
		return nil, errtype.New(errtype.Session, "session.Decrypt", ErrNotEstablished)
	}

	out, err := s.recvCipher.Decrypt(nil, nil, ciphertext)
	if err != nil {
		s.failLocked(ErrDecryptFailed)
		return nil, errtype.New(errtype.Crypto, "session.Decrypt", ErrDecryptFailed)
	}
	if _, nonceErr := s.recvCounter.Next(); nonceErr != nil {
		s.failLocked(nonceErr)
		return nil, errtype.New(errtype.Crypto, "session.Decrypt", nonceErr)
	}

	return out, nil
}

func (s *Session) needsRekeyLocked() bool {
	if s.sendCounter.Count() >= RekeyMessageCap || s.recvCounter.Count() >= RekeyMessageCap {
		return true
	}
	return time.Since(s.establishedAt) >= RekeyWallClockCap
}

// NeedsRekey reports whether the Established session has exceeded its
// message or wall-clock rekey threshold.
func (s *Session) NeedsRekey() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateLocked() != StateEstablished {
		return false
	}
	return s.needsRekeyLocked()
}

// BeginRekey transitions an Established session back to Handshaking,
// discarding its ciphers (§4.5's rekey edge). The caller must immediately
// restart a handshake (StartInitiator, from the last known peer ID) or the
// session will never reach Established again.
func (s *Session) BeginRekey() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateHandshaking
	s.handshakeStartedAt = time.Now()
	s.sendCipher = nil
	s.recvCipher = nil
}

// SetPeerID records the ephemeral peer ID this session is currently reached
// at, so a later rekey (driven only by fingerprint) can address the right
// peer without a registry round trip.
func (s *Session) SetPeerID(peerID [8]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerID = peerID
}

// PeerID returns the last peer ID recorded via SetPeerID, or the zero value
// if none has been set yet.
func (s *Session) PeerID() [8]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID
}
