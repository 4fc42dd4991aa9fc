package meshcore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/bitchat-mesh/meshcore/identity"
	"github.com/bitchat-mesh/meshcore/keystore"
	"github.com/bitchat-mesh/meshcore/registry"
)

func TestLoadConfigFallsBackToEmbeddedDefault(t *testing.T) {
	cfg := &Config{}
	status, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"), cfg)
	if status != ExitSuccess {
		t.Fatalf("expected ExitSuccess, got %d (%v)", status, err)
	}
	if cfg.Nickname == "" {
		t.Fatalf("expected the embedded default to set a nickname")
	}
	if cfg.KeystorePath == "" {
		t.Fatalf("expected the embedded default to set a keystore path")
	}
}

func TestSaveConfigThenLoadConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshcore.yaml")
	want := &Config{
		Nickname:          "relay-node",
		EnableBLE:         true,
		ControlAPIListen:  "127.0.0.1:9999",
		RouterSeenCapacity: 1234,
	}
	if err := SaveConfig(path, want); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	got := &Config{}
	if status, err := LoadConfig(path, got); status != ExitSuccess {
		t.Fatalf("LoadConfig: status=%d err=%v", status, err)
	}
	if got.Nickname != want.Nickname || got.ControlAPIListen != want.ControlAPIListen || got.RouterSeenCapacity != want.RouterSeenCapacity {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestConfigDutyCycleDefaultsWhenUnset(t *testing.T) {
	cfg := &Config{}
	if d := cfg.bleDutyCycleActive(); d <= 0 {
		t.Fatalf("expected a positive default active duration, got %v", d)
	}
	if d := cfg.bleDutyCyclePause(); d <= 0 {
		t.Fatalf("expected a positive default pause duration, got %v", d)
	}
	if d := cfg.identityMinRotateInterval(); d <= 0 {
		t.Fatalf("expected a positive default rotate interval, got %v", d)
	}
}

func TestPendingOutboundEnqueueDrain(t *testing.T) {
	p := newPendingOutbound()
	var fp identity.Fingerprint
	fp[0] = 0xAB

	p.enqueue(fp, pendingMessage{messageID: "a", peerID: [8]byte{1}, plaintext: []byte("hello")})
	p.enqueue(fp, pendingMessage{messageID: "b", peerID: [8]byte{1}, plaintext: []byte("world")})

	drained := p.drain(fp)
	if len(drained) != 2 {
		t.Fatalf("expected 2 queued messages, got %d", len(drained))
	}
	if drained[0].messageID != "a" || drained[1].messageID != "b" {
		t.Fatalf("expected FIFO order, got %+v", drained)
	}

	if again := p.drain(fp); len(again) != 0 {
		t.Fatalf("expected drain to empty the queue, got %d left", len(again))
	}
}

func TestRegistryResolverReflectsKnownIdentity(t *testing.T) {
	reg := registry.New()
	resolver := registryResolver{reg}
	peerID := [8]byte{1, 2, 3}

	if _, ok := resolver.FingerprintForPeerID(peerID); ok {
		t.Fatalf("expected no fingerprint before an identity is observed")
	}

	var staticPub [32]byte
	staticPub[0] = 0x42
	reg.SetIdentity(peerID, staticPub, "alice")

	fp, ok := resolver.FingerprintForPeerID(peerID)
	if !ok {
		t.Fatalf("expected a fingerprint after SetIdentity")
	}
	if fp != identity.ComputeFingerprint(staticPub) {
		t.Fatalf("fingerprint does not match the announced static key")
	}
}

func TestBlacklistAdapterDelegatesToKeystore(t *testing.T) {
	mem := keystore.NewMemory()
	adapter := blacklistAdapter{mem}

	var fp identity.Fingerprint
	fp[0] = 0x99

	if adapter.IsBlacklisted(fp) {
		t.Fatalf("expected fp to start off the blacklist")
	}
	if err := mem.Blacklist([32]byte(fp)); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	if !adapter.IsBlacklisted(fp) {
		t.Fatalf("expected adapter to see the keystore's blacklist entry")
	}
}

func TestInitHooksDefaultsNilFields(t *testing.T) {
	e := &Engine{}
	e.initHooks()

	if e.Hooks.LogEvent == nil {
		t.Fatalf("expected LogEvent to be defaulted")
	}
	if e.Hooks.OnMessage == nil || e.Hooks.OnPeerConnected == nil || e.Hooks.OnPeerDisconnected == nil {
		t.Fatalf("expected callback hooks to be defaulted to no-ops")
	}
	if e.Hooks.OnPeerListChanged == nil || e.Hooks.OnDeliveryAck == nil || e.Hooks.OnReadReceipt == nil || e.Hooks.OnDeliveryStatusChanged == nil {
		t.Fatalf("expected remaining callback hooks to be defaulted to no-ops")
	}

	// Defaulted callbacks must be safe to call with zero values.
	e.Hooks.OnMessage(nil, [8]byte{})
	e.Hooks.OnPeerConnected([8]byte{})
	e.Hooks.OnPeerDisconnected([8]byte{})
	e.Hooks.OnPeerListChanged(nil)
	e.Hooks.OnDeliveryAck("", [8]byte{})
	e.Hooks.OnReadReceipt("", [8]byte{})
}

func TestHexPeerID(t *testing.T) {
	id := [8]byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 1}
	if got, want := hexPeerID(id), "deadbeef00000001"; got != want {
		t.Fatalf("hexPeerID(%v) = %q, want %q", id, got, want)
	}
}

func TestSinkWriteFansOutToSubscribers(t *testing.T) {
	s := newSink()
	var buf bytes.Buffer
	id := s.Subscribe(&buf)
	defer s.Unsubscribe(id)

	msg := []byte("hello sink\n")
	n, err := s.Write(msg)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(msg) {
		t.Fatalf("Write returned %d, want %d", n, len(msg))
	}
	if buf.String() != string(msg) {
		t.Fatalf("got %q, want %q", buf.String(), msg)
	}

	s.Unsubscribe(id)
	buf.Reset()
	if _, err := s.Write([]byte("after unsubscribe\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no more writes after Unsubscribe, got %q", buf.String())
	}
}
