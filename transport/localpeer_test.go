package transport

import (
	"testing"
	"time"
)

func TestDiscoveryBeaconRoundTrip(t *testing.T) {
	info := DiscoveryInfo{
		Version:   1,
		PeerID:    [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
		StaticPub: [32]byte{9, 9, 9},
		Nickname:  "alice",
	}
	key := [32]byte{0xAA}
	now := time.Now()

	beacon := encodeDiscoveryBeacon(info, key, now)
	got, ok := decodeDiscoveryBeacon(beacon, now)
	if !ok {
		t.Fatalf("expected beacon to decode")
	}
	if got.PeerID != info.PeerID || got.StaticPub != info.StaticPub || got.Nickname != info.Nickname {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, info)
	}
}

func TestDiscoveryBeaconRejectsStaleTimestamp(t *testing.T) {
	info := DiscoveryInfo{Version: 1, PeerID: [8]byte{1}, Nickname: "bob"}
	key := [32]byte{0xAA}
	now := time.Now()

	beacon := encodeDiscoveryBeacon(info, key, now.Add(-time.Hour))
	if _, ok := decodeDiscoveryBeacon(beacon, now); ok {
		t.Fatalf("expected stale beacon to be rejected")
	}
}

func TestDiscoveryBeaconRejectsTruncatedBuffer(t *testing.T) {
	if _, ok := decodeDiscoveryBeacon([]byte{1, 2, 3}, time.Now()); ok {
		t.Fatalf("expected truncated beacon to be rejected")
	}
}

func TestPeerIDEncodesAsSequenceNumberSource(t *testing.T) {
	p := testPacket()
	p.SenderID = [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	if senderPeerIDFromPacket(p) != p.SenderID {
		t.Fatalf("expected senderPeerIDFromPacket to return SenderID verbatim")
	}
}
