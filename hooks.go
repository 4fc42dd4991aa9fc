/*
File Name:  hooks.go

Hooks is this engine's Filters-equivalent (§10): a struct of injectable
callbacks covering the collaborator interfaces the core exposes upward
(§6). Nil fields are safe to call through initHooks's defaulting, mirroring
the teacher's initFilters.
*/

package meshcore

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bitchat-mesh/meshcore/delivery"
	"github.com/bitchat-mesh/meshcore/protocol"
)

// Hooks lets a host application observe engine activity. The functions are
// called sequentially and block the calling goroutine; a slow hook should
// start its own goroutine.
type Hooks struct {
	// LogEvent receives a structured log record. The default implementation
	// backs onto a *zap.Logger (§10); a host may override it entirely.
	LogEvent func(level zapcore.Level, msg string, fields ...zap.Field)

	// OnMessage is called for every delivered ChatMessage, local or relayed.
	OnMessage func(msg *protocol.ChatMessage, origin [8]byte)

	OnPeerConnected    func(peerID [8]byte)
	OnPeerDisconnected func(peerID [8]byte)
	OnPeerListChanged  func(peerIDs [][8]byte)

	OnDeliveryAck           func(messageID string, peerID [8]byte)
	OnReadReceipt           func(messageID string, peerID [8]byte)
	OnDeliveryStatusChanged func(messageID string, state delivery.State)
}

func (e *Engine) initHooks() {
	if e.Hooks.LogEvent == nil {
		e.Hooks.LogEvent = e.defaultLogEvent
	}
	if e.Hooks.OnMessage == nil {
		e.Hooks.OnMessage = func(*protocol.ChatMessage, [8]byte) {}
	}
	if e.Hooks.OnPeerConnected == nil {
		e.Hooks.OnPeerConnected = func([8]byte) {}
	}
	if e.Hooks.OnPeerDisconnected == nil {
		e.Hooks.OnPeerDisconnected = func([8]byte) {}
	}
	if e.Hooks.OnPeerListChanged == nil {
		e.Hooks.OnPeerListChanged = func([][8]byte) {}
	}
	if e.Hooks.OnDeliveryAck == nil {
		e.Hooks.OnDeliveryAck = func(string, [8]byte) {}
	}
	if e.Hooks.OnReadReceipt == nil {
		e.Hooks.OnReadReceipt = func(string, [8]byte) {}
	}
	if e.Hooks.OnDeliveryStatusChanged == nil {
		e.Hooks.OnDeliveryStatusChanged = func(string, delivery.State) {}
	}
}
