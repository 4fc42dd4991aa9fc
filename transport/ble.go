/*
File Name:  ble.go

The BLE transport: duty-cycled advertise/scan plus GATT-style unicast and
broadcast framing (§4.8). No real BLE binding is available to a headless Go
module, so the platform-specific radio calls are abstracted behind a
BLEDriver collaborator interface the host application implements (iOS
CoreBluetooth, Android BluetoothLeScanner, or a desktop BlueZ binding). This
mirrors the teacher's Filter.go idiom of exposing a struct of injectable
callbacks rather than hard-wiring a concrete dependency (§4.8 grounds the
BLE radio boundary the same way).
*/

package transport

import (
	"context"
	"sync"
	"time"

	"github.com/bitchat-mesh/meshcore/protocol"
)

// BLEDriver is the platform boundary a host application implements to
// drive an actual Bluetooth Low Energy radio. BLETransport never touches
// BLE APIs directly; it only calls through this interface.
type BLEDriver interface {
	// StartAdvertising begins advertising the given service payload.
	StartAdvertising(payload []byte) error
	StopAdvertising() error

	// StartScanning begins scanning for peers advertising the BitChat
	// service UUID. discovered is invoked once per advertisement seen,
	// with an RSSI reading when the platform can supply one.
	StartScanning(discovered func(peerID [8]byte, rssi *float64, advertisement []byte)) error
	StopScanning() error

	// WriteCharacteristic delivers raw to peerID over a GATT write.
	WriteCharacteristic(peerID [8]byte, raw []byte) error

	// Notifications registers a callback invoked for every GATT
	// notification received from any connected peer.
	Notifications(received func(peerID [8]byte, raw []byte))
}

// dutyCycleActive/dutyCyclePause implement the advertise/scan duty cycling
// that keeps BLE radio usage power-efficient (§4.8: "low-power duty
// cycling of advertise/scan windows").
const (
	dutyCycleActive = 3 * time.Second
	dutyCyclePause  = 2 * time.Second
)

// BLETransport implements Transport by driving a BLEDriver on a duty cycle.
type BLETransport struct {
	driver BLEDriver
	self   [8]byte

	dutyCycleActive time.Duration
	dutyCyclePause  time.Duration

	mu      sync.Mutex
	quality map[[8]byte]ConnectionQuality

	discovering bool
	cancel      context.CancelFunc
	events      chan Event
}

func NewBLETransport(driver BLEDriver, self [8]byte) *BLETransport {
	return NewBLETransportWithDutyCycle(driver, self, dutyCycleActive, dutyCyclePause)
}

// NewBLETransportWithDutyCycle lets the caller override the advertise/scan
// duty cycle window from configuration instead of the package default.
func NewBLETransportWithDutyCycle(driver BLEDriver, self [8]byte, active, pause time.Duration) *BLETransport {
	if active <= 0 {
		active = dutyCycleActive
	}
	if pause <= 0 {
		pause = dutyCyclePause
	}
	return &BLETransport{
		driver:          driver,
		self:            self,
		dutyCycleActive: active,
		dutyCyclePause:  pause,
		quality:         make(map[[8]byte]ConnectionQuality),
		events:          make(chan Event, 256),
	}
}

func (t *BLETransport) Kind() Kind { return KindBLE }

func (t *BLETransport) Events() <-chan Event { return t.events }

func (t *BLETransport) Start(ctx context.Context) error {
	t.driver.Notifications(func(peerID [8]byte, raw []byte) {
		p, err := protocol.DecodePacket(raw)
		if err != nil {
			return
		}
		t.emit(Event{Type: EventPacketReceived, Packet: p, SourcePeerID: peerID})
	})

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go func() {
		<-runCtx.Done()
		t.emit(Event{Type: EventStateChanged, Available: false})
	}()
	t.emit(Event{Type: EventStateChanged, Available: true})

	return nil
}

func (t *BLETransport) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	_ = t.driver.StopScanning()
	return t.driver.StopAdvertising()
}

func (t *BLETransport) StartDiscovery() error {
	t.mu.Lock()
	if t.discovering {
		t.mu.Unlock()
		return nil
	}
	t.discovering = true
	t.mu.Unlock()

	if err := t.driver.StartAdvertising(t.self[:]); err != nil {
		return err
	}
	if err := t.driver.StartScanning(t.onDiscovered); err != nil {
		return err
	}

	go t.dutyCycleLoop()
	return nil
}

func (t *BLETransport) StopDiscovery() error {
	t.mu.Lock()
	t.discovering = false
	t.mu.Unlock()
	_ = t.driver.StopScanning()
	return t.driver.StopAdvertising()
}

// dutyCycleLoop alternates brief scan pauses to bound BLE radio duty cycle
// (§4.8). Advertising stays on; only scanning is paused, since advertising
// is the cheaper of the two operations on most BLE stacks.
func (t *BLETransport) dutyCycleLoop() {
	for {
		t.mu.Lock()
		discovering := t.discovering
		t.mu.Unlock()
		if !discovering {
			return
		}

		time.Sleep(t.dutyCycleActive)

		t.mu.Lock()
		discovering = t.discovering
		t.mu.Unlock()
		if !discovering {
			return
		}
		_ = t.driver.StopScanning()
		time.Sleep(t.dutyCyclePause)
		_ = t.driver.StartScanning(t.onDiscovered)
	}
}

func (t *BLETransport) onDiscovered(peerID [8]byte, rssi *float64, advertisement []byte) {
	t.mu.Lock()
	t.quality[peerID] = ConnectionQuality{Available: true, RSSI: rssi}
	t.mu.Unlock()
	t.emit(Event{Type: EventPeerDiscovered, PeerID: peerID, RSSI: rssi})
}

func (t *BLETransport) emit(e Event) {
	select {
	case t.events <- e:
	default:
	}
}

func (t *BLETransport) SendUnicast(p *protocol.Packet, peerID [8]byte) error {
	raw, err := protocol.EncodePacket(p)
	if err != nil {
		return err
	}
	if err := t.driver.WriteCharacteristic(peerID, raw); err != nil {
		t.emit(Event{Type: EventSendFailed, PeerID: peerID, Err: err})
		return err
	}
	return nil
}

// Broadcast re-advertises the packet in the advertisement payload, since
// BLE broadcast has no recipient and relies on every peer in range scanning
// it (§4.8). Large packets should be fragmented by the caller first (C6);
// BLETransport does not fragment on its own.
func (t *BLETransport) Broadcast(p *protocol.Packet) error {
	raw, err := protocol.EncodePacket(p)
	if err != nil {
		return err
	}
	return t.driver.StartAdvertising(raw)
}

func (t *BLETransport) ConnectionQuality(peerID [8]byte) ConnectionQuality {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quality[peerID]
}
