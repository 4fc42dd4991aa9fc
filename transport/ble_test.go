package transport

import (
	"context"
	"testing"
	"time"

	"github.com/bitchat-mesh/meshcore/protocol"
)

type fakeBLEDriver struct {
	advertised  [][]byte
	advertising bool
	scanning    bool
	written     map[[8]byte][][]byte
	notifyFn    func(peerID [8]byte, raw []byte)
}

func newFakeBLEDriver() *fakeBLEDriver {
	return &fakeBLEDriver{written: make(map[[8]byte][][]byte)}
}

func (f *fakeBLEDriver) StartAdvertising(payload []byte) error {
	f.advertising = true
	f.advertised = append(f.advertised, payload)
	return nil
}
func (f *fakeBLEDriver) StopAdvertising() error { f.advertising = false; return nil }

func (f *fakeBLEDriver) StartScanning(discovered func(peerID [8]byte, rssi *float64, advertisement []byte)) error {
	f.scanning = true
	return nil
}
func (f *fakeBLEDriver) StopScanning() error { f.scanning = false; return nil }

func (f *fakeBLEDriver) WriteCharacteristic(peerID [8]byte, raw []byte) error {
	f.written[peerID] = append(f.written[peerID], raw)
	return nil
}

func (f *fakeBLEDriver) Notifications(received func(peerID [8]byte, raw []byte)) {
	f.notifyFn = received
}

func testPacket() *protocol.Packet {
	return &protocol.Packet{
		Version:   protocol.Version,
		Type:      protocol.TypeMessage,
		TTL:       3,
		Timestamp: 1,
		Payload:   []byte("hello"),
	}
}

func TestBLETransportSendUnicastWritesCharacteristic(t *testing.T) {
	driver := newFakeBLEDriver()
	tr := NewBLETransport(driver, [8]byte{1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	peer := [8]byte{2}
	if err := tr.SendUnicast(testPacket(), peer); err != nil {
		t.Fatalf("SendUnicast: %v", err)
	}
	if len(driver.written[peer]) != 1 {
		t.Fatalf("expected one write to peer, got %d", len(driver.written[peer]))
	}
}

func TestBLETransportNotificationEmitsPacketReceived(t *testing.T) {
	driver := newFakeBLEDriver()
	tr := NewBLETransport(driver, [8]byte{1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case e := <-tr.Events():
		if e.Type != EventStateChanged || !e.Available {
			t.Fatalf("expected Start's state-changed event first, got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Start's state-changed event")
	}

	raw, err := protocol.EncodePacket(testPacket())
	if err != nil {
		t.Fatalf("EncodePacket: %v", err)
	}
	peer := [8]byte{3}
	driver.notifyFn(peer, raw)

	select {
	case e := <-tr.Events():
		if e.Type != EventPacketReceived || e.SourcePeerID != peer {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBLETransportStartDiscoveryAdvertisesAndScans(t *testing.T) {
	driver := newFakeBLEDriver()
	tr := NewBLETransport(driver, [8]byte{1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = tr.Start(ctx)

	if err := tr.StartDiscovery(); err != nil {
		t.Fatalf("StartDiscovery: %v", err)
	}
	if !driver.advertising || !driver.scanning {
		t.Fatalf("expected advertising and scanning to be active")
	}

	if err := tr.StopDiscovery(); err != nil {
		t.Fatalf("StopDiscovery: %v", err)
	}
	if driver.advertising || driver.scanning {
		t.Fatalf("expected advertising and scanning to be stopped")
	}
}
