/*
File Name:  transport.go

The transport abstraction (C8): a uniform interface BLE and the local peer
transport both implement, plus the event types they emit upward to the
transport manager (C10). Each implementation owns its own I/O goroutines;
no implementation may call into another transport directly (§4.8).
*/

package transport

import (
	"context"

	"github.com/bitchat-mesh/meshcore/protocol"
	"github.com/bitchat-mesh/meshcore/registry"
)

// Kind identifies a concrete transport implementation. Reuses registry's
// enum since C9 is the single source of truth for which transports exist
// (§3 ownership note).
type Kind = registry.TransportKind

const (
	KindBLE       = registry.TransportBLE
	KindLocalPeer = registry.TransportLocalPeer
)

// ConnectionQuality summarizes a transport's current link to one peer.
type ConnectionQuality struct {
	Available bool
	RSSI      *float64
}

// Transport is the uniform interface every concrete transport implements
// (§4.8).
type Transport interface {
	Kind() Kind
	Start(ctx context.Context) error
	Stop() error
	StartDiscovery() error
	StopDiscovery() error
	SendUnicast(packet *protocol.Packet, peerID [8]byte) error
	Broadcast(packet *protocol.Packet) error
	ConnectionQuality(peerID [8]byte) ConnectionQuality
	Events() <-chan Event
}

// EventType discriminates the Event union (§4.8).
type EventType int

const (
	EventPeerDiscovered EventType = iota
	EventPeerLost
	EventPacketReceived
	EventStateChanged
	EventSendFailed
)

// Event is emitted by a Transport to the manager that owns it.
type Event struct {
	Type EventType

	PeerID       [8]byte
	RSSI         *float64 // EventPeerDiscovered
	Packet       *protocol.Packet // EventPacketReceived
	SourcePeerID [8]byte          // EventPacketReceived
	Available    bool             // EventStateChanged
	MessageID    string           // EventSendFailed
	Err          error            // EventSendFailed
}
