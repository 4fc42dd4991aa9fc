/*
File Name:  identity.go

The identity store (C4): one long-term Ed25519 signing pair and one X25519
static pair, plus the short-lived 8-byte peer ID derived from them. Handles
never leave this package as raw private key material; callers only ever see
the public identity and signed announcements.
*/

package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/bitchat-mesh/meshcore/meshcrypto"
	"github.com/bitchat-mesh/meshcore/sanitize"
)

// FingerprintSize is the width of a stable identity fingerprint
// (SHA-256 of the static X25519 public key, §3).
const FingerprintSize = 32

// Fingerprint is SHA-256(staticPub); the stable, rotation-independent
// identity of a peer.
type Fingerprint [FingerprintSize]byte

func ComputeFingerprint(staticPub [32]byte) Fingerprint {
	return Fingerprint(sha256.Sum256(staticPub[:]))
}

// Store owns the long-term keys and the current ephemeral peer ID. All
// methods are safe for concurrent use.
type Store struct {
	keys KeyStore

	mu           sync.RWMutex
	signing      meshcrypto.Ed25519KeyPair
	static       meshcrypto.X25519KeyPair
	fingerprint  Fingerprint
	nickname     string
	peerID       [8]byte
	previousPeer [8]byte
	hasPrevious  bool
	rotatedAt    time.Time

	minRotateInterval time.Duration
}

// KeyStore is the collaborator the identity store persists key material
// through (OS keystore / pogreb-backed keystore); keys are never written to
// plain preferences (§4.4).
type KeyStore interface {
	SaveIdentity(signingPriv, staticPriv []byte) error
	LoadIdentity() (signingPriv, staticPriv []byte, ok bool, err error)
}

// DefaultMinRotateInterval is the minimum time between automatic peer-ID
// rotations absent an explicit user-initiated rotation.
const DefaultMinRotateInterval = 10 * time.Minute

// NewStore loads an identity from keys if one exists, otherwise generates a
// fresh long-term keypair and persists it. A fresh ephemeral peer ID is
// always generated at startup (§4.4: "Generates an 8-byte ephemeral peer ID
// on startup").
func NewStore(keys KeyStore, nickname string) (*Store, error) {
	s := &Store{
		keys:              keys,
		nickname:          sanitize.Username(nickname),
		minRotateInterval: DefaultMinRotateInterval,
	}

	signingPrivBytes, staticPrivBytes, ok, err := keys.LoadIdentity()
	if err != nil {
		return nil, err
	}

	if ok {
		s.signing = meshcrypto.Ed25519KeyPair{
			Private: ed25519.PrivateKey(signingPrivBytes),
			Public:  ed25519.PrivateKey(signingPrivBytes).Public().(ed25519.PublicKey),
		}
		var staticPriv [32]byte
		copy(staticPriv[:], staticPrivBytes)
		s.static, err = deriveX25519KeyPair(staticPriv)
		if err != nil {
			return nil, err
		}
	} else {
		if s.signing, err = meshcrypto.GenerateEd25519KeyPair(); err != nil {
			return nil, err
		}
		if s.static, err = meshcrypto.GenerateX25519KeyPair(); err != nil {
			return nil, err
		}
		if err := keys.SaveIdentity(s.signing.Private, s.static.Private[:]); err != nil {
			return nil, err
		}
	}

	s.fingerprint = ComputeFingerprint(s.static.Public)
	if err := s.generatePeerID(); err != nil {
		return nil, err
	}
	s.rotatedAt = time.Now()

	return s, nil
}

func deriveX25519KeyPair(priv [32]byte) (meshcrypto.X25519KeyPair, error) {
	pub, err := meshcrypto.X25519PublicKey(priv)
	if err != nil {
		return meshcrypto.X25519KeyPair{}, err
	}
	return meshcrypto.X25519KeyPair{Private: priv, Public: pub}, nil
}

func (s *Store) generatePeerID() error {
	var id [8]byte
	if _, err := rand.Read(id[:]); err != nil {
		return err
	}
	s.peerID = id
	return nil
}

// Fingerprint returns the stable identity fingerprint.
func (s *Store) Fingerprint() Fingerprint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fingerprint
}

// PeerID returns the current ephemeral peer ID.
func (s *Store) PeerID() [8]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerID
}

// SigningPublicKey returns the long-term Ed25519 public key.
func (s *Store) SigningPublicKey() ed25519.PublicKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signing.Public
}

// StaticPublicKey returns the long-term X25519 public key.
func (s *Store) StaticPublicKey() [32]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.static.Public
}

// StaticPrivateKey returns the long-term X25519 private key, for use only by
// the session layer (C5) to perform the Noise handshake DH.
func (s *Store) StaticPrivateKey() [32]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.static.Private
}

// Nickname returns the current sanitized nickname.
func (s *Store) Nickname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nickname
}

// SetNickname updates the nickname, sanitizing it per §4.4.
func (s *Store) SetNickname(nickname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nickname = sanitize.Username(nickname)
}

// IsLocalPeerID reports whether id is this node's current or most recently
// rotated-away ephemeral peer ID (§4.7 step 2: packets addressed to either
// are still ours during the rotation grace period).
func (s *Store) IsLocalPeerID(id [8]byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == s.peerID {
		return true
	}
	return s.hasPrevious && id == s.previousPeer
}

// CanRotatePeerID reports whether enough time has elapsed for an automatic
// rotation; explicit user-initiated rotation bypasses this check.
func (s *Store) CanRotatePeerID() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.rotatedAt) >= s.minRotateInterval
}

// RotatePeerID replaces the ephemeral peer ID with a fresh random value,
// remembering the prior one as previousPeerID for the next announcement.
func (s *Store) RotatePeerID() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.previousPeer = s.peerID
	s.hasPrevious = true
	if err := s.generatePeerIDLocked(); err != nil {
		return err
	}
	s.rotatedAt = time.Now()
	return nil
}

func (s *Store) generatePeerIDLocked() error {
	var id [8]byte
	if _, err := rand.Read(id[:]); err != nil {
		return err
	}
	s.peerID = id
	return nil
}

// RotateKeys regenerates both the signing and static keypairs and clears the
// previous-peer-ID trail. The stable fingerprint changes as a result: this is
// equivalent to becoming a new identity (§4.4), so callers (the session
// manager, C5) must independently tear down all existing sessions.
func (s *Store) RotateKeys() (newFingerprint Fingerprint, err error) {
	signing, err := meshcrypto.GenerateEd25519KeyPair()
	if err != nil {
		return Fingerprint{}, err
	}
	static, err := meshcrypto.GenerateX25519KeyPair()
	if err != nil {
		return Fingerprint{}, err
	}
	if err := s.keys.SaveIdentity(signing.Private, static.Private[:]); err != nil {
		return Fingerprint{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.signing = signing
	s.static = static
	s.fingerprint = ComputeFingerprint(s.static.Public)
	s.hasPrevious = false
	if err := s.generatePeerIDLocked(); err != nil {
		return Fingerprint{}, err
	}
	s.rotatedAt = time.Now()

	return s.fingerprint, nil
}
