/*
File Name:  inbound.go

The inbound pipeline: transport events feed the router (C7), fragment
reassembly (C6), and the Noise session layer (C5) in the order §4 lays
out, ending in either a Hooks callback (local delivery) or a relay/bridge
re-emission.
*/

package meshcore

import (
	"time"

	"go.uber.org/zap"

	"github.com/bitchat-mesh/meshcore/delivery"
	"github.com/bitchat-mesh/meshcore/fragment"
	"github.com/bitchat-mesh/meshcore/identity"
	"github.com/bitchat-mesh/meshcore/meshcrypto"
	"github.com/bitchat-mesh/meshcore/protocol"
	"github.com/bitchat-mesh/meshcore/session"
	"github.com/bitchat-mesh/meshcore/transport"
)

func (e *Engine) handleTransportEvent(kind transport.Kind, ev transport.Event) {
	now := time.Now()
	switch ev.Type {
	case transport.EventPeerDiscovered:
		e.registry.Observe(ev.PeerID, kind, ev.RSSI, now)
		e.publishPeerListChanged()
	case transport.EventPeerLost:
		e.Hooks.OnPeerDisconnected(ev.PeerID)
		e.publishPeerListChanged()
	case transport.EventPacketReceived:
		e.registry.Observe(ev.SourcePeerID, kind, nil, now)
		e.handlePacket(ev.Packet, ev.SourcePeerID, kind)
	case transport.EventStateChanged:
		e.logf(zap.InfoLevel, "transport state changed", zap.Stringer("transport", kind), zap.Bool("available", ev.Available))
	case transport.EventSendFailed:
		e.registry.MarkDelivery(ev.PeerID, kind, false)
		if ev.MessageID != "" {
			e.deliveries.MarkFailed(ev.MessageID, ev.Err.Error())
		}
	}
}

func (e *Engine) handlePacket(p *protocol.Packet, sourcePeerID [8]byte, origin transport.Kind) {
	now := time.Now()

	if p.Type == protocol.TypeFragment {
		e.handleFragment(p, sourcePeerID, origin, now)
		return
	}

	if p.Type == protocol.TypeNoiseHandshake && p.HasRecipient && e.identity.IsLocalPeerID(p.RecipientID) {
		e.handleHandshakePacket(p, sourcePeerID)
		return
	}

	outcome := e.router.Route(p, origin.String(), now)
	if outcome.DeliverToC5 {
		e.handleEncryptedToUs(p, sourcePeerID)
		return
	}
	if outcome.DeliverLocally {
		e.deliverLocally(p, sourcePeerID, now)
	}
	if outcome.Relay {
		e.relay(outcome.RelayPacket, sourcePeerID, origin, now)
	}
}

func (e *Engine) handleFragment(p *protocol.Packet, sourcePeerID [8]byte, origin transport.Kind, now time.Time) {
	frag, err := fragment.DecodeFragment(p.Payload)
	if err != nil {
		e.logf(zap.DebugLevel, "dropping malformed fragment", zap.Error(err))
		return
	}
	assembled, complete, err := e.assembler.Add(p.SenderID, frag)
	if err != nil {
		e.logf(zap.DebugLevel, "dropping fragment", zap.Error(err))
		return
	}
	if !complete {
		return
	}
	inner, err := protocol.DecodePacket(assembled)
	if err != nil {
		e.logf(zap.DebugLevel, "dropping reassembled packet: decode failed", zap.Error(err))
		return
	}
	e.handlePacket(inner, sourcePeerID, origin)
}

func (e *Engine) deliverLocally(p *protocol.Packet, sourcePeerID [8]byte, now time.Time) {
	switch p.Type {
	case protocol.TypeMessage:
		msg, err := protocol.DecodeMessage(p.Payload)
		if err != nil {
			return
		}
		e.Hooks.OnMessage(msg, sourcePeerID)
		e.publishMessageEvent(sourcePeerID, msg.Channel)
	case protocol.TypeAnnounce:
		announcement, err := identity.Decode(p.Payload)
		if err != nil {
			return
		}
		previous, err := e.bindings.Accept(announcement, now)
		if err != nil {
			return
		}
		if previous != nil && previous.Announcement.CurrentPeerID != announcement.CurrentPeerID {
			e.logf(zap.InfoLevel, "peer rotated ephemeral id under stable fingerprint",
				zap.String("previous", hexPeerID(previous.Announcement.CurrentPeerID)),
				zap.String("current", hexPeerID(announcement.CurrentPeerID)))
		}
		e.registry.SetIdentity(announcement.CurrentPeerID, announcement.StaticPub, announcement.Nickname)
		e.Hooks.OnPeerConnected(announcement.CurrentPeerID)
		e.publishPeerListChanged()
	case protocol.TypeLeave:
		e.Hooks.OnPeerDisconnected(sourcePeerID)
		e.publishPeerListChanged()
	}
}

// relay re-emits an already TTL-decremented packet on the transport(s)
// appropriate to its recipient, then asks C11 whether it should additionally
// cross onto another mesh this node bridges (§4.7, §4.11).
func (e *Engine) relay(p *protocol.Packet, sourcePeerID [8]byte, origin transport.Kind, now time.Time) {
	if p.HasRecipient && !protocol.IsBroadcast(p.RecipientID) {
		_ = e.transports.SendUnicast(p, p.RecipientID, now)
	} else {
		e.transports.Broadcast(p)
	}

	decision := e.bridge.Evaluate(p, origin, now)
	if len(decision.Targets) == 0 {
		return
	}

	bridged := *p
	if bridged.TTL > decision.ExtraTTLDecrement {
		bridged.TTL -= decision.ExtraTTLDecrement
	} else {
		bridged.TTL = 0
	}
	e.bridge.MarkBridged(p.SenderID, p.Timestamp, p.Payload)

	for _, kind := range decision.Targets {
		t := e.transports.TransportFor(kind)
		if t == nil {
			continue
		}
		if bridged.HasRecipient && !protocol.IsBroadcast(bridged.RecipientID) {
			_ = t.SendUnicast(&bridged, bridged.RecipientID)
		} else {
			_ = t.Broadcast(&bridged)
		}
	}
}

func (e *Engine) handleEncryptedToUs(p *protocol.Packet, sourcePeerID [8]byte) {
	fp, ok := registryResolver{e.registry}.FingerprintForPeerID(sourcePeerID)
	if !ok {
		e.logf(zap.DebugLevel, "dropping encrypted packet from peer with unknown identity", zap.String("peer", hexPeerID(sourcePeerID)))
		return
	}
	sess, ok := e.sessions.Get(fp)
	if !ok {
		return
	}
	plaintext, err := sess.Decrypt(p.Payload)
	if err != nil {
		e.logf(zap.WarnLevel, "decrypt failed, session marked failed", zap.Error(err))
		return
	}
	decoded, err := session.DecodePayload(plaintext)
	if err != nil {
		return
	}
	switch decoded.Type {
	case protocol.PayloadPrivateMessage:
		e.Hooks.OnMessage(decoded.ChatMessage, sourcePeerID)
		e.publishMessageEvent(sourcePeerID, "")
	case protocol.PayloadReadReceipt:
		e.deliveries.MarkRead(decoded.AckMessageID)
		e.Hooks.OnReadReceipt(decoded.AckMessageID, sourcePeerID)
		e.Hooks.OnDeliveryStatusChanged(decoded.AckMessageID, delivery.StateRead)
	case protocol.PayloadDelivered:
		e.deliveries.MarkDelivered(decoded.AckMessageID)
		e.retries.remove(decoded.AckMessageID)
		e.Hooks.OnDeliveryAck(decoded.AckMessageID, sourcePeerID)
	}
}

// handleHandshakePacket drives one step of the Noise XX exchange, whichever
// side of it this call represents; the message/read/write alternation
// self-synchronizes since flynn/noise reports completion (non-nil cipher
// states) only on the message that actually finishes the pattern (§4.5).
func (e *Engine) handleHandshakePacket(p *protocol.Packet, sourcePeerID [8]byte) {
	fp, ok := registryResolver{e.registry}.FingerprintForPeerID(sourcePeerID)
	if !ok {
		e.logf(zap.DebugLevel, "dropping handshake from peer with unknown identity", zap.String("peer", hexPeerID(sourcePeerID)))
		return
	}

	sess := e.sessions.GetOrCreate(fp)
	sess.SetPeerID(sourcePeerID)
	switch sess.State() {
	case session.StateNone, session.StateHandshakeQueued:
		if err := sess.StartResponder(e.staticKeyPair()); err != nil {
			e.logf(zap.WarnLevel, "handshake responder start failed", zap.Error(err))
			return
		}
		e.continueHandshake(sess, fp, sourcePeerID, p.Payload)
	case session.StateHandshaking:
		e.continueHandshake(sess, fp, sourcePeerID, p.Payload)
	default:
		// Established/Failed: stray or replayed handshake message, ignore.
	}
}

func (e *Engine) continueHandshake(sess *session.Session, fp identity.Fingerprint, peerID [8]byte, msg []byte) {
	_, established, err := sess.ReadHandshakeMessage(msg)
	if err != nil {
		e.logf(zap.WarnLevel, "handshake read failed", zap.Error(err))
		return
	}
	if established {
		e.flushPending(fp)
		return
	}

	announcement, err := e.identity.BuildAnnouncement()
	if err != nil {
		return
	}
	out, established2, err := sess.WriteHandshakeMessage(identity.Encode(announcement))
	if err != nil {
		e.logf(zap.WarnLevel, "handshake write failed", zap.Error(err))
		return
	}

	reply := &protocol.Packet{
		Version:      protocol.Version,
		Type:         protocol.TypeNoiseHandshake,
		TTL:          protocol.TTLHandshake,
		Timestamp:    uint64(time.Now().UnixMilli()),
		SenderID:     e.identity.PeerID(),
		RecipientID:  peerID,
		HasRecipient: true,
		Payload:      out,
	}
	_ = e.transports.SendUnicast(reply, peerID, time.Now())

	if established2 {
		e.flushPending(fp)
	}
}

func (e *Engine) staticKeyPair() meshcrypto.X25519KeyPair {
	return meshcrypto.X25519KeyPair{Private: e.identity.StaticPrivateKey(), Public: e.identity.StaticPublicKey()}
}
