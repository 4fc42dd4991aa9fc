/*
File Name:  bindings.go

PeerBindings tracks the accepted NoiseIdentityAnnouncement for every remote
fingerprint seen so far, replacing the prior binding whenever another
validly-signed announcement for the same fingerprint arrives (§4.4).
*/

package identity

import (
	"sync"
	"time"
)

// Binding is an accepted, verified announcement plus the time it was
// accepted.
type Binding struct {
	Announcement *Announcement
	Fingerprint  Fingerprint
	AcceptedAt   time.Time
}

// PeerBindings is the accepted-binding table, safe for concurrent use.
type PeerBindings struct {
	mu       sync.RWMutex
	byFinger map[Fingerprint]*Binding
}

func NewPeerBindings() *PeerBindings {
	return &PeerBindings{byFinger: make(map[Fingerprint]*Binding)}
}

// Accept verifies and, on success, stores/replaces the binding for the
// announcement's fingerprint. Returns the previous binding, if any, so
// callers (C9) can detect a peer-ID rotation under a stable fingerprint.
func (p *PeerBindings) Accept(a *Announcement, now time.Time) (previous *Binding, err error) {
	if err := Verify(a, now); err != nil {
		return nil, err
	}

	fingerprint := ComputeFingerprint(a.StaticPub)

	p.mu.Lock()
	defer p.mu.Unlock()

	previous = p.byFinger[fingerprint]
	p.byFinger[fingerprint] = &Binding{
		Announcement: a,
		Fingerprint:  fingerprint,
		AcceptedAt:   now,
	}
	return previous, nil
}

// Lookup returns the current binding for fingerprint, if any.
func (p *PeerBindings) Lookup(fingerprint Fingerprint) (*Binding, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.byFinger[fingerprint]
	return b, ok
}

// Remove forgets a fingerprint's binding entirely, used by key rotation and
// explicit un-favoriting.
func (p *PeerBindings) Remove(fingerprint Fingerprint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byFinger, fingerprint)
}
