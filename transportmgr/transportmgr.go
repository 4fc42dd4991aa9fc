/*
File Name:  transportmgr.go

Transport manager (C10): picks which transport(s) carry a given send, and
runs the smart-activation policy that turns the local peer transport on or
off based on how many peers BLE currently sees (§4.10). New code in the
teacher's idiom — a small RWMutex-guarded struct with exported methods and
no interfaces beyond what's needed, since the teacher (a single-UDP-transport
system) has no multi-transport selection analogue to generalize from.
*/

package transportmgr

import (
	"context"
	"sync"
	"time"

	"github.com/bitchat-mesh/meshcore/protocol"
	"github.com/bitchat-mesh/meshcore/registry"
	"github.com/bitchat-mesh/meshcore/transport"
)

// Urgency selects the retry/timeout budget a send is allowed (§4.10).
type Urgency int

const (
	Normal Urgency = iota
	Urgent
	Low
)

// RetryBudget is the (max retries, overall timeout) pair for an Urgency.
type RetryBudget struct {
	MaxRetries int
	Timeout    time.Duration
}

var budgets = map[Urgency]RetryBudget{
	Urgent: {MaxRetries: 1, Timeout: 15 * time.Second},
	Normal: {MaxRetries: 2, Timeout: 30 * time.Second},
	Low:    {MaxRetries: 4, Timeout: 60 * time.Second},
}

// Budget returns the retry budget for u, defaulting to Normal for an
// unrecognized value.
func Budget(u Urgency) RetryBudget {
	if b, ok := budgets[u]; ok {
		return b
	}
	return budgets[Normal]
}

// blePeerLowWatermark/HighWatermark drive smart activation of the local
// peer transport (§4.10).
const (
	blePeerLowWatermark  = 2
	blePeerHighWatermark = 5
	activationDelay      = 5 * time.Second
)

// Manager owns the set of active transports and the selection/activation
// policy layered over C9.
type Manager struct {
	registry *registry.Registry
	canBridge func(now time.Time) bool

	mu         sync.Mutex
	transports map[transport.Kind]transport.Transport
	active     map[transport.Kind]bool

	activationTimer *time.Timer
}

// New constructs a Manager. canBridge reports whether C11 currently sees a
// bridging need — passed as a function rather than a concrete bridge.Manager
// to avoid an import cycle (bridge depends on transportmgr for delivery).
func New(reg *registry.Registry, canBridge func(now time.Time) bool) *Manager {
	return &Manager{
		registry:   reg,
		canBridge:  canBridge,
		transports: make(map[transport.Kind]transport.Transport),
		active:     make(map[transport.Kind]bool),
	}
}

// Register adds a transport the manager may select and activate/deactivate.
// BLE is always active once registered; the local peer transport starts
// inactive and is brought up by smart activation.
func (m *Manager) Register(t transport.Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transports[t.Kind()] = t
	m.active[t.Kind()] = t.Kind() == transport.KindBLE
}

func (m *Manager) IsActive(kind transport.Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[kind]
}

// SelectUnicast implements §4.10's selection policy for a single recipient.
func (m *Manager) SelectUnicast(peerID [8]byte, now time.Time) (transport.Kind, bool) {
	if kind, ok := m.registry.SelectTransport(peerID, now); ok {
		if m.IsActive(kind) {
			return kind, true
		}
	}
	if m.IsActive(transport.KindBLE) {
		if rec, ok := m.registry.Get(peerID); ok {
			for _, kind := range rec.Transports(now) {
				if kind == transport.KindBLE {
					return transport.KindBLE, true
				}
			}
		}
	}
	if m.IsActive(transport.KindLocalPeer) {
		return transport.KindLocalPeer, true
	}
	return 0, false
}

// SendUnicast sends packet to peerID on the selected transport, falling
// back to the one remaining active transport once on failure (§4.10 step 4).
func (m *Manager) SendUnicast(packet *protocol.Packet, peerID [8]byte, now time.Time) error {
	kind, ok := m.SelectUnicast(peerID, now)
	if !ok {
		return errNoTransport
	}

	t := m.transportFor(kind)
	if t == nil {
		return errNoTransport
	}

	err := t.SendUnicast(packet, peerID)
	if err == nil {
		return nil
	}

	for _, fallback := range m.activeKinds() {
		if fallback == kind {
			continue
		}
		if ft := m.transportFor(fallback); ft != nil {
			if ferr := ft.SendUnicast(packet, peerID); ferr == nil {
				return nil
			}
		}
	}
	return err
}

// Broadcast emits packet on every active transport (§4.10).
func (m *Manager) Broadcast(packet *protocol.Packet) {
	for _, kind := range m.activeKinds() {
		if t := m.transportFor(kind); t != nil {
			_ = t.Broadcast(packet)
		}
	}
}

func (m *Manager) transportFor(kind transport.Kind) transport.Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transports[kind]
}

// TransportFor returns the transport registered for kind, or nil, for
// callers that need to drive its lifecycle directly (Start/StartDiscovery
// at startup, Stop at shutdown).
func (m *Manager) TransportFor(kind transport.Kind) transport.Transport {
	return m.transportFor(kind)
}

func (m *Manager) activeKinds() []transport.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []transport.Kind
	for kind, active := range m.active {
		if active {
			out = append(out, kind)
		}
	}
	return out
}

// blePeerCount counts distinct peers currently visible on BLE.
func (m *Manager) blePeerCount(now time.Time) int {
	count := 0
	for _, id := range m.registry.AllPeerIDs() {
		if rec, ok := m.registry.Get(id); ok {
			for _, kind := range rec.Transports(now) {
				if kind == transport.KindBLE {
					count++
					break
				}
			}
		}
	}
	return count
}

// EvaluateActivation runs the smart-activation policy (§4.10): schedule
// local peer transport activation after activationDelay when BLE sees too
// few peers, cancel if BLE recovers in the meantime, and deactivate once
// BLE is healthy again and C11 reports no bridging need.
func (m *Manager) EvaluateActivation(ctx context.Context, now time.Time) {
	blePeers := m.blePeerCount(now)

	m.mu.Lock()
	defer m.mu.Unlock()

	if blePeers < blePeerLowWatermark {
		if m.activationTimer == nil && !m.active[transport.KindLocalPeer] {
			m.activationTimer = time.AfterFunc(activationDelay, func() {
				m.mu.Lock()
				m.active[transport.KindLocalPeer] = true
				m.activationTimer = nil
				m.mu.Unlock()
				if t := m.transportFor(transport.KindLocalPeer); t != nil {
					_ = t.Start(ctx)
					_ = t.StartDiscovery()
				}
			})
		}
		return
	}

	// BLE recovered: cancel a pending activation.
	if m.activationTimer != nil {
		m.activationTimer.Stop()
		m.activationTimer = nil
	}

	if blePeers >= blePeerHighWatermark && m.active[transport.KindLocalPeer] {
		if m.canBridge == nil || !m.canBridge(now) {
			m.active[transport.KindLocalPeer] = false
			if t := m.transports[transport.KindLocalPeer]; t != nil {
				_ = t.StopDiscovery()
			}
		}
	}
}

var errNoTransport = transportError("transportmgr: no active transport can reach peer")

type transportError string

func (e transportError) Error() string { return string(e) }
