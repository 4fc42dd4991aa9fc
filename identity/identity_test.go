package identity

import (
	"sync"
	"testing"
	"time"
)

type memKeyStore struct {
	mu           sync.Mutex
	signingPriv  []byte
	staticPriv   []byte
	hasIdentity  bool
}

func (m *memKeyStore) SaveIdentity(signingPriv, staticPriv []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signingPriv = append([]byte(nil), signingPriv...)
	m.staticPriv = append([]byte(nil), staticPriv...)
	m.hasIdentity = true
	return nil
}

func (m *memKeyStore) LoadIdentity() (signingPriv, staticPriv []byte, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasIdentity {
		return nil, nil, false, nil
	}
	return m.signingPriv, m.staticPriv, true, nil
}

func TestNewStoreGeneratesAndPersistsIdentity(t *testing.T) {
	ks := &memKeyStore{}
	s, err := NewStore(ks, "  Alice  ")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if s.Nickname() != "Alice" {
		t.Fatalf("expected nickname trimmed, got %q", s.Nickname())
	}
	if !ks.hasIdentity {
		t.Fatalf("expected identity to be persisted")
	}

	s2, err := NewStore(ks, "Alice")
	if err != nil {
		t.Fatalf("NewStore reload: %v", err)
	}
	if s2.Fingerprint() != s.Fingerprint() {
		t.Fatalf("reloaded identity should keep the same fingerprint")
	}
	if s2.StaticPublicKey() != s.StaticPublicKey() {
		t.Fatalf("reloaded identity should keep the same static public key")
	}
}

func TestRotatePeerIDKeepsFingerprint(t *testing.T) {
	s, err := NewStore(&memKeyStore{}, "bob")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	before := s.PeerID()
	beforeFingerprint := s.Fingerprint()

	if err := s.RotatePeerID(); err != nil {
		t.Fatalf("RotatePeerID: %v", err)
	}

	if s.PeerID() == before {
		t.Fatalf("expected peer ID to change after rotation")
	}
	if s.Fingerprint() != beforeFingerprint {
		t.Fatalf("fingerprint must not change on peer-ID rotation")
	}
}

func TestRotateKeysChangesFingerprint(t *testing.T) {
	s, err := NewStore(&memKeyStore{}, "carol")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	before := s.Fingerprint()

	newFingerprint, err := s.RotateKeys()
	if err != nil {
		t.Fatalf("RotateKeys: %v", err)
	}
	if newFingerprint == before {
		t.Fatalf("expected fingerprint to change after key rotation")
	}
	if s.Fingerprint() != newFingerprint {
		t.Fatalf("store fingerprint should reflect rotated keys")
	}
}

func TestAnnouncementRoundTripAndVerify(t *testing.T) {
	s, err := NewStore(&memKeyStore{}, "dave")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	a, err := s.BuildAnnouncement()
	if err != nil {
		t.Fatalf("BuildAnnouncement: %v", err)
	}

	encoded := Encode(a)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.CurrentPeerID != a.CurrentPeerID || decoded.StaticPub != a.StaticPub ||
		decoded.Nickname != a.Nickname || decoded.BindingTimestamp != a.BindingTimestamp {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, a)
	}

	if err := Verify(decoded, time.Now()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	s, err := NewStore(&memKeyStore{}, "erin")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	a, err := s.BuildAnnouncement()
	if err != nil {
		t.Fatalf("BuildAnnouncement: %v", err)
	}

	farFuture := time.UnixMilli(int64(a.BindingTimestamp)).Add(10 * time.Minute)
	if err := Verify(a, farFuture); err == nil {
		t.Fatalf("expected clock skew rejection")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	s, err := NewStore(&memKeyStore{}, "frank")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	a, err := s.BuildAnnouncement()
	if err != nil {
		t.Fatalf("BuildAnnouncement: %v", err)
	}
	a.Signature[0] ^= 0xFF

	if err := Verify(a, time.Now()); err == nil {
		t.Fatalf("expected signature verification to fail after tampering")
	}
}

func TestPeerBindingsAcceptReplacesOnNewerAnnouncement(t *testing.T) {
	s, err := NewStore(&memKeyStore{}, "grace")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	bindings := NewPeerBindings()

	a1, err := s.BuildAnnouncement()
	if err != nil {
		t.Fatalf("BuildAnnouncement: %v", err)
	}
	if _, err := bindings.Accept(a1, time.Now()); err != nil {
		t.Fatalf("Accept a1: %v", err)
	}

	if err := s.RotatePeerID(); err != nil {
		t.Fatalf("RotatePeerID: %v", err)
	}
	a2, err := s.BuildAnnouncement()
	if err != nil {
		t.Fatalf("BuildAnnouncement: %v", err)
	}

	prev, err := bindings.Accept(a2, time.Now())
	if err != nil {
		t.Fatalf("Accept a2: %v", err)
	}
	if prev == nil || prev.Announcement.CurrentPeerID != a1.CurrentPeerID {
		t.Fatalf("expected previous binding to be a1")
	}

	current, ok := bindings.Lookup(ComputeFingerprint(a2.StaticPub))
	if !ok || current.Announcement.CurrentPeerID != a2.CurrentPeerID {
		t.Fatalf("expected current binding to be a2")
	}
}
