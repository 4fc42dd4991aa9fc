/*
File Name:  registry.go

Peer registry (C9): per-peer transport visibility, RSSI, delivery success,
and a blended health score. Grounded on the teacher's dht/Node.go and
dht/KNode.go shortlist idiom (a bounded, mutex-guarded set of nodes sorted
by a comparator) repurposed around a 0.0-1.0 health score instead of XOR
distance, since BitChat has no structured routing table to sort by (§1
Non-goals).
*/

package registry

import (
	"sync"
	"time"
)

// TransportKind identifies which physical transport a sighting or send
// happened on.
type TransportKind int

const (
	TransportBLE TransportKind = iota
	TransportLocalPeer
)

func (t TransportKind) String() string {
	switch t {
	case TransportBLE:
		return "ble"
	case TransportLocalPeer:
		return "local_peer"
	default:
		return "unknown"
	}
}

// VisibilityWindow is how long a transport sighting remains "current"
// before it's considered stale (§4.9: "sliding window of 60s").
const VisibilityWindow = 60 * time.Second

// StaleRemovalWindow is how long every transport for a peer must be stale
// before the whole record is dropped (§3).
const StaleRemovalWindow = 60 * time.Second

type transportStats struct {
	lastSeen        time.Time
	rssi            float64
	hasRSSI         bool
	deliverySuccess int
	deliveryFailure int
}

// PeerRecord is the per-peer state C9 is the single source of truth for
// (§3).
type PeerRecord struct {
	PeerID    [8]byte
	Nickname  string
	PublicKey [32]byte
	HasPublicKey bool

	mu         sync.RWMutex
	transports map[TransportKind]*transportStats
}

func newPeerRecord(peerID [8]byte) *PeerRecord {
	return &PeerRecord{
		PeerID:     peerID,
		transports: make(map[TransportKind]*transportStats),
	}
}

// Transports returns the set of transports currently within the visibility
// window.
func (p *PeerRecord) Transports(now time.Time) []TransportKind {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []TransportKind
	for kind, stats := range p.transports {
		if now.Sub(stats.lastSeen) <= VisibilityWindow {
			out = append(out, kind)
		}
	}
	return out
}

// HealthScore blends recency, delivery success ratio, and RSSI into a
// 0.0-1.0 score for the given transport (§4.9).
func (p *PeerRecord) HealthScore(kind TransportKind, now time.Time) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats, ok := p.transports[kind]
	if !ok {
		return 0
	}

	age := now.Sub(stats.lastSeen)
	recency := 1.0 - clamp01(age.Seconds()/VisibilityWindow.Seconds())

	total := stats.deliverySuccess + stats.deliveryFailure
	deliveryRatio := 0.5 // neutral prior with no history
	if total > 0 {
		deliveryRatio = float64(stats.deliverySuccess) / float64(total)
	}

	rssiScore := 0.5
	if stats.hasRSSI {
		// RSSI in dBm typically ranges roughly -100 (unusable) to -40 (excellent).
		rssiScore = clamp01((stats.rssi + 100) / 60)
	}

	return clamp01(0.5*recency + 0.3*deliveryRatio + 0.2*rssiScore)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Registry tracks every peer currently or recently visible. Safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	peers map[[8]byte]*PeerRecord
}

func New() *Registry {
	return &Registry{peers: make(map[[8]byte]*PeerRecord)}
}

// Observe records a sighting of peerID on transport kind with an optional
// RSSI reading (§3: "created on first sighting, transport-set mutated on
// visibility updates").
func (r *Registry) Observe(peerID [8]byte, kind TransportKind, rssi *float64, now time.Time) *PeerRecord {
	r.mu.Lock()
	rec, ok := r.peers[peerID]
	if !ok {
		rec = newPeerRecord(peerID)
		r.peers[peerID] = rec
	}
	r.mu.Unlock()

	rec.mu.Lock()
	stats, ok := rec.transports[kind]
	if !ok {
		stats = &transportStats{}
		rec.transports[kind] = stats
	}
	stats.lastSeen = now
	if rssi != nil {
		stats.rssi = *rssi
		stats.hasRSSI = true
	}
	rec.mu.Unlock()

	return rec
}

// MarkDelivery records a successful or failed delivery attempt on a
// transport, feeding the health score (§4.9: markDelivery).
func (r *Registry) MarkDelivery(peerID [8]byte, kind TransportKind, success bool) {
	r.mu.RLock()
	rec, ok := r.peers[peerID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	stats, ok := rec.transports[kind]
	if !ok {
		stats = &transportStats{}
		rec.transports[kind] = stats
	}
	if success {
		stats.deliverySuccess++
	} else {
		stats.deliveryFailure++
	}
}

// SetIdentity records a peer's long-term static public key and nickname,
// learned from a verified NoiseIdentityAnnouncement (§4.4). Creates the
// peer record if this is the first information learned about it.
func (r *Registry) SetIdentity(peerID [8]byte, publicKey [32]byte, nickname string) {
	r.mu.Lock()
	rec, ok := r.peers[peerID]
	if !ok {
		rec = newPeerRecord(peerID)
		r.peers[peerID] = rec
	}
	r.mu.Unlock()

	rec.mu.Lock()
	rec.PublicKey = publicKey
	rec.HasPublicKey = true
	rec.Nickname = nickname
	rec.mu.Unlock()
}

// AllPeerIDs returns every peer ID currently tracked, visible or stale.
func (r *Registry) AllPeerIDs() [][8]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([][8]byte, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	return out
}

// Get returns the record for peerID, if any.
func (r *Registry) Get(peerID [8]byte) (*PeerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.peers[peerID]
	return rec, ok
}

// SelectTransport picks the best transport to reach peerID, by health
// score, or reports false if the peer isn't currently visible on any
// transport (§4.9: selectTransport).
func (r *Registry) SelectTransport(peerID [8]byte, now time.Time) (TransportKind, bool) {
	rec, ok := r.Get(peerID)
	if !ok {
		return 0, false
	}

	visible := rec.Transports(now)
	if len(visible) == 0 {
		return 0, false
	}

	best := visible[0]
	bestScore := rec.HealthScore(best, now)
	for _, kind := range visible[1:] {
		if score := rec.HealthScore(kind, now); score > bestScore {
			best, bestScore = kind, score
		}
	}
	return best, true
}

// CanBridge reports whether this node observes peers on at least two
// transports whose visible peer sets are not subsets of one another (§4.9).
func (r *Registry) CanBridge(now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sets := make(map[TransportKind]map[[8]byte]bool)
	for peerID, rec := range r.peers {
		for _, kind := range rec.Transports(now) {
			if sets[kind] == nil {
				sets[kind] = make(map[[8]byte]bool)
			}
			sets[kind][peerID] = true
		}
	}

	kinds := make([]TransportKind, 0, len(sets))
	for k := range sets {
		kinds = append(kinds, k)
	}

	for i := 0; i < len(kinds); i++ {
		for j := i + 1; j < len(kinds); j++ {
			if !isSubset(sets[kinds[i]], sets[kinds[j]]) && !isSubset(sets[kinds[j]], sets[kinds[i]]) {
				return true
			}
		}
	}
	return false
}

func isSubset(a, b map[[8]byte]bool) bool {
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}

// Prune removes peers whose every transport has gone stale beyond
// StaleRemovalWindow (§3).
func (r *Registry) Prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for peerID, rec := range r.peers {
		if len(rec.Transports(now)) == 0 && rec.allStale(now) {
			delete(r.peers, peerID)
			removed++
		}
	}
	return removed
}

func (p *PeerRecord) allStale(now time.Time) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.transports) == 0 {
		return false // never seen on any transport, nothing to prune yet
	}
	for _, stats := range p.transports {
		if now.Sub(stats.lastSeen) <= StaleRemovalWindow {
			return false
		}
	}
	return true
}
