package transportmgr

import (
	"context"
	"testing"
	"time"

	"github.com/bitchat-mesh/meshcore/protocol"
	"github.com/bitchat-mesh/meshcore/registry"
	"github.com/bitchat-mesh/meshcore/transport"
)

type fakeTransport struct {
	kind      transport.Kind
	sent      [][8]byte
	failNext  bool
	broadcast int
	started   bool
	discovering bool
}

func (f *fakeTransport) Kind() transport.Kind { return f.kind }
func (f *fakeTransport) Start(ctx context.Context) error { f.started = true; return nil }
func (f *fakeTransport) Stop() error { f.started = false; return nil }
func (f *fakeTransport) StartDiscovery() error { f.discovering = true; return nil }
func (f *fakeTransport) StopDiscovery() error { f.discovering = false; return nil }
func (f *fakeTransport) SendUnicast(p *protocol.Packet, peerID [8]byte) error {
	if f.failNext {
		f.failNext = false
		return errFake
	}
	f.sent = append(f.sent, peerID)
	return nil
}
func (f *fakeTransport) Broadcast(p *protocol.Packet) error { f.broadcast++; return nil }
func (f *fakeTransport) ConnectionQuality(peerID [8]byte) transport.ConnectionQuality {
	return transport.ConnectionQuality{Available: true}
}
func (f *fakeTransport) Events() <-chan transport.Event { return nil }

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errFake = fakeErr("fake send failure")

func TestSelectUnicastPrefersRegistrySelection(t *testing.T) {
	reg := registry.New()
	now := time.Now()
	peer := [8]byte{1}
	reg.Observe(peer, registry.TransportLocalPeer, nil, now)

	mgr := New(reg, nil)
	mgr.Register(&fakeTransport{kind: transport.KindBLE})
	mgr.Register(&fakeTransport{kind: transport.KindLocalPeer})
	mgr.active[transport.KindLocalPeer] = true

	kind, ok := mgr.SelectUnicast(peer, now)
	if !ok || kind != transport.KindLocalPeer {
		t.Fatalf("expected local peer transport selection, got kind=%v ok=%v", kind, ok)
	}
}

func TestSendUnicastFallsBackOnFailure(t *testing.T) {
	reg := registry.New()
	now := time.Now()
	peer := [8]byte{2}
	reg.Observe(peer, registry.TransportBLE, nil, now)

	ble := &fakeTransport{kind: transport.KindBLE, failNext: true}
	local := &fakeTransport{kind: transport.KindLocalPeer}

	mgr := New(reg, nil)
	mgr.Register(ble)
	mgr.Register(local)
	mgr.active[transport.KindLocalPeer] = true

	p := &protocol.Packet{Version: protocol.Version, Type: protocol.TypeMessage}
	if err := mgr.SendUnicast(p, peer, now); err != nil {
		t.Fatalf("expected fallback send to succeed, got %v", err)
	}
	if len(local.sent) != 1 {
		t.Fatalf("expected fallback transport to have sent once, got %d", len(local.sent))
	}
}

func TestBroadcastEmitsOnAllActiveTransports(t *testing.T) {
	reg := registry.New()
	ble := &fakeTransport{kind: transport.KindBLE}
	local := &fakeTransport{kind: transport.KindLocalPeer}

	mgr := New(reg, nil)
	mgr.Register(ble)
	mgr.Register(local)
	mgr.active[transport.KindLocalPeer] = true

	mgr.Broadcast(&protocol.Packet{})
	if ble.broadcast != 1 || local.broadcast != 1 {
		t.Fatalf("expected both transports to broadcast once, got ble=%d local=%d", ble.broadcast, local.broadcast)
	}
}

func TestEvaluateActivationSchedulesThenCancels(t *testing.T) {
	reg := registry.New()
	now := time.Now()
	mgr := New(reg, nil)
	local := &fakeTransport{kind: transport.KindLocalPeer}
	mgr.Register(local)

	mgr.EvaluateActivation(context.Background(), now)
	mgr.mu.Lock()
	timerSet := mgr.activationTimer != nil
	mgr.mu.Unlock()
	if !timerSet {
		t.Fatalf("expected an activation timer to be scheduled with too few BLE peers")
	}

	// BLE recovers before the timer fires.
	peer := [8]byte{9}
	reg.Observe(peer, registry.TransportBLE, nil, now)
	reg.Observe([8]byte{10}, registry.TransportBLE, nil, now)
	mgr.EvaluateActivation(context.Background(), now)

	mgr.mu.Lock()
	timerSet = mgr.activationTimer != nil
	mgr.mu.Unlock()
	if timerSet {
		t.Fatalf("expected activation timer to be cancelled once BLE recovered")
	}
}

func TestBudgetReturnsExpectedRetrySchedules(t *testing.T) {
	if b := Budget(Urgent); b.MaxRetries != 1 || b.Timeout != 15*time.Second {
		t.Fatalf("unexpected urgent budget: %+v", b)
	}
	if b := Budget(Low); b.MaxRetries != 4 || b.Timeout != 60*time.Second {
		t.Fatalf("unexpected low budget: %+v", b)
	}
}
