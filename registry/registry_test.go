package registry

import (
	"testing"
	"time"
)

func TestObserveAndSelectTransportPrefersHigherHealth(t *testing.T) {
	r := New()
	now := time.Now()
	peer := [8]byte{1}

	goodRSSI := -45.0
	badRSSI := -95.0
	r.Observe(peer, TransportBLE, &badRSSI, now)
	r.Observe(peer, TransportLocalPeer, &goodRSSI, now)

	kind, ok := r.SelectTransport(peer, now)
	if !ok {
		t.Fatalf("expected a transport selection")
	}
	if kind != TransportLocalPeer {
		t.Fatalf("expected local-peer transport to win on RSSI, got %v", kind)
	}
}

func TestSelectTransportFalseWhenNotVisible(t *testing.T) {
	r := New()
	if _, ok := r.SelectTransport([8]byte{9}, time.Now()); ok {
		t.Fatalf("expected no selection for unknown peer")
	}
}

func TestMarkDeliveryAffectsHealthScore(t *testing.T) {
	r := New()
	now := time.Now()
	peer := [8]byte{2}
	r.Observe(peer, TransportBLE, nil, now)

	rec, _ := r.Get(peer)
	before := rec.HealthScore(TransportBLE, now)

	for i := 0; i < 5; i++ {
		r.MarkDelivery(peer, TransportBLE, true)
	}
	after := rec.HealthScore(TransportBLE, now)

	if after <= before {
		t.Fatalf("expected health score to improve after successful deliveries: before=%f after=%f", before, after)
	}
}

func TestCanBridgeRequiresNonSubsetTransportSets(t *testing.T) {
	r := New()
	now := time.Now()

	// peer A only on BLE, peer B only on local-peer: neither set is a
	// subset of the other, so bridging is possible.
	r.Observe([8]byte{1}, TransportBLE, nil, now)
	r.Observe([8]byte{2}, TransportLocalPeer, nil, now)

	if !r.CanBridge(now) {
		t.Fatalf("expected CanBridge to be true with disjoint peer sets")
	}
}

func TestCanBridgeFalseWhenOneTransportSetIsSubset(t *testing.T) {
	r := New()
	now := time.Now()

	// peer A visible on both; nothing is visible on local-peer that isn't
	// also visible on BLE, so BLE's set is a superset: no bridging value.
	r.Observe([8]byte{1}, TransportBLE, nil, now)
	r.Observe([8]byte{1}, TransportLocalPeer, nil, now)

	if r.CanBridge(now) {
		t.Fatalf("expected CanBridge to be false when sets are identical")
	}
}

func TestPruneRemovesStalePeers(t *testing.T) {
	r := New()
	now := time.Now()
	peer := [8]byte{3}
	r.Observe(peer, TransportBLE, nil, now.Add(-2*time.Minute))

	removed := r.Prune(now)
	if removed != 1 {
		t.Fatalf("expected 1 peer pruned, got %d", removed)
	}
	if _, ok := r.Get(peer); ok {
		t.Fatalf("expected stale peer to be removed from registry")
	}
}
