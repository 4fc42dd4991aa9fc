package bridge

import (
	"testing"
	"time"

	"github.com/bitchat-mesh/meshcore/protocol"
	"github.com/bitchat-mesh/meshcore/registry"
	"github.com/bitchat-mesh/meshcore/router"
	"github.com/bitchat-mesh/meshcore/transport"
)

func TestEvaluateUnicastBridgesToRecipientsOtherTransport(t *testing.T) {
	reg := registry.New()
	now := time.Now()
	recipient := [8]byte{1}
	reg.Observe(recipient, registry.TransportLocalPeer, nil, now)

	m := New(reg, router.NewSeen())
	p := &protocol.Packet{RecipientID: recipient, HasRecipient: true}

	d := m.Evaluate(p, transport.KindBLE, now)
	if len(d.Targets) != 1 || d.Targets[0] != transport.KindLocalPeer {
		t.Fatalf("expected bridge to local peer transport, got %+v", d)
	}
	if d.ExtraTTLDecrement != 1 {
		t.Fatalf("expected extra TTL decrement of 1, got %d", d.ExtraTTLDecrement)
	}
}

func TestEvaluateUnicastNoBridgeWhenRecipientOnlyOnOrigin(t *testing.T) {
	reg := registry.New()
	now := time.Now()
	recipient := [8]byte{2}
	reg.Observe(recipient, registry.TransportBLE, nil, now)

	m := New(reg, router.NewSeen())
	p := &protocol.Packet{RecipientID: recipient, HasRecipient: true}

	d := m.Evaluate(p, transport.KindBLE, now)
	if len(d.Targets) != 0 {
		t.Fatalf("expected no bridge targets, got %+v", d)
	}
}

func TestEvaluateBroadcastBridgesWhenOtherTransportHasExclusivePeer(t *testing.T) {
	reg := registry.New()
	now := time.Now()
	reg.Observe([8]byte{1}, registry.TransportBLE, nil, now)
	reg.Observe([8]byte{2}, registry.TransportLocalPeer, nil, now)

	m := New(reg, router.NewSeen())
	p := &protocol.Packet{RecipientID: protocol.BroadcastRecipient, HasRecipient: true}

	d := m.Evaluate(p, transport.KindBLE, now)
	if len(d.Targets) != 1 || d.Targets[0] != transport.KindLocalPeer {
		t.Fatalf("expected broadcast to bridge to local peer transport, got %+v", d)
	}
}

func TestEvaluateBroadcastNoBridgeWhenOtherTransportIsSubset(t *testing.T) {
	reg := registry.New()
	now := time.Now()
	peer := [8]byte{1}
	reg.Observe(peer, registry.TransportBLE, nil, now)
	reg.Observe(peer, registry.TransportLocalPeer, nil, now)

	m := New(reg, router.NewSeen())
	p := &protocol.Packet{RecipientID: protocol.BroadcastRecipient, HasRecipient: true}

	d := m.Evaluate(p, transport.KindBLE, now)
	if len(d.Targets) != 0 {
		t.Fatalf("expected no bridge targets when local peer transport adds no new audience, got %+v", d)
	}
}

func TestMarkBridgedPreventsEcho(t *testing.T) {
	seen := router.NewSeen()
	m := New(registry.New(), seen)

	sender := [8]byte{3}
	payload := []byte("hello")
	m.MarkBridged(sender, 1000, payload)

	fp := router.ComputeFingerprint(sender, 1000, payload)
	if !seen.CheckAndInsert(fp) {
		t.Fatalf("expected fingerprint inserted by MarkBridged to already be seen")
	}
}
