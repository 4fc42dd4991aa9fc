/*
File Name:  outbound.go

The upward operations a host application drives (§6): sendPublic,
sendPrivate, markRead, announceIdentity, rotateIdentity, plus the
favorite/blacklist tables (§13). Each wraps the lower C-module calls in the
order §4 describes, so a host never needs to touch session/router/transport
directly.
*/

package meshcore

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bitchat-mesh/meshcore/identity"
	"github.com/bitchat-mesh/meshcore/meshcrypto"
	"github.com/bitchat-mesh/meshcore/protocol"
	"github.com/bitchat-mesh/meshcore/session"
	"github.com/bitchat-mesh/meshcore/transportmgr"
)

// SendPublic broadcasts a plaintext ChatMessage to the mesh, optionally
// scoped to a channel. Returns the generated message ID.
func (e *Engine) SendPublic(text, channel string) (messageID string, err error) {
	messageID = uuid.New().String()
	msg := &protocol.ChatMessage{
		ID:        messageID,
		Sender:    e.identity.Nickname(),
		Content:   text,
		Timestamp: uint64(time.Now().UnixMilli()),
		Channel:   channel,
		HasChannel: channel != "",
	}
	body, err := protocol.EncodeMessage(msg)
	if err != nil {
		return "", err
	}

	p := &protocol.Packet{
		Version:   protocol.Version,
		Type:      protocol.TypeMessage,
		TTL:       protocol.TTLUserMessage,
		Timestamp: msg.Timestamp,
		SenderID:  e.identity.PeerID(),
		Payload:   body,
	}
	e.transports.Broadcast(p)
	e.publishMessageEvent(e.identity.PeerID(), channel)
	return messageID, nil
}

// SendPrivate encrypts and sends text to peerID, initiating a handshake
// first if no session is yet Established (§4.5), in which case the
// plaintext is queued and flushed once the handshake completes.
func (e *Engine) SendPrivate(text string, peerID [8]byte, urgency transportmgr.Urgency) (messageID string, err error) {
	fp, ok := registryResolver{e.registry}.FingerprintForPeerID(peerID)
	if !ok {
		return "", errUnknownPeerIdentity
	}

	messageID = uuid.New().String()
	msg := &protocol.ChatMessage{
		ID:        messageID,
		Sender:    e.identity.Nickname(),
		Content:   text,
		Timestamp: uint64(time.Now().UnixMilli()),
		IsPrivate: true,
	}
	plaintext, err := session.EncodePrivateMessagePayload(msg)
	if err != nil {
		return "", err
	}

	e.deliveries.Begin(messageID, peerID, urgency, time.Now())
	e.retries.put(messageID, peerID, plaintext, urgency)

	if err := e.sendOrQueue(fp, peerID, messageID, plaintext, urgency); err != nil {
		e.deliveries.MarkFailed(messageID, err.Error())
		e.retries.remove(messageID)
		return "", err
	}
	return messageID, nil
}

// MarkRead sends a ReadReceipt for messageID to peerID, the message's
// original sender.
func (e *Engine) MarkRead(messageID string, peerID [8]byte) error {
	fp, ok := registryResolver{e.registry}.FingerprintForPeerID(peerID)
	if !ok {
		return errUnknownPeerIdentity
	}
	plaintext, err := session.EncodeReadReceiptPayload(messageID)
	if err != nil {
		return err
	}
	return e.sendOrQueue(fp, peerID, "", plaintext, transportmgr.Low)
}

// sendOrQueue encrypts and sends plaintext immediately if the session with
// fp is Established, otherwise queues it and kicks off (or rides along
// with) a handshake.
func (e *Engine) sendOrQueue(fp identity.Fingerprint, peerID [8]byte, messageID string, plaintext []byte, urgency transportmgr.Urgency) error {
	sess := e.sessions.GetOrCreate(fp)
	sess.SetPeerID(peerID)
	if sess.State() == session.StateEstablished {
		if err := e.encryptAndSend(sess, peerID, plaintext); err != nil {
			return err
		}
		if messageID != "" {
			e.deliveries.MarkSent(messageID, 0)
		}
		return nil
	}

	e.pending.enqueue(fp, pendingMessage{messageID: messageID, peerID: peerID, plaintext: plaintext, urgency: urgency})

	if sess.Enqueue() {
		return e.beginHandshake(sess, peerID)
	}
	return nil
}

func (e *Engine) beginHandshake(sess *session.Session, peerID [8]byte) error {
	sess.SetPeerID(peerID)
	static := meshcrypto.X25519KeyPair{Private: e.identity.StaticPrivateKey(), Public: e.identity.StaticPublicKey()}
	announcement, err := e.identity.BuildAnnouncement()
	if err != nil {
		return err
	}
	out, err := sess.StartInitiator(static, identity.Encode(announcement))
	if err != nil {
		return err
	}

	p := &protocol.Packet{
		Version:     protocol.Version,
		Type:        protocol.TypeNoiseHandshake,
		TTL:         protocol.TTLHandshake,
		Timestamp:   uint64(time.Now().UnixMilli()),
		SenderID:    e.identity.PeerID(),
		RecipientID: peerID,
		HasRecipient: true,
		Payload:     out,
	}
	return e.transports.SendUnicast(p, peerID, time.Now())
}

// encryptAndSend encrypts plaintext under sess and sends it to peerID,
// queuing a rekey if the session reports it is due.
func (e *Engine) encryptAndSend(sess *session.Session, peerID [8]byte, plaintext []byte) error {
	ciphertext, needsRekey, err := sess.Encrypt(plaintext)
	if err != nil {
		return err
	}

	p := &protocol.Packet{
		Version:      protocol.Version,
		Type:         protocol.TypeNoiseEncrypted,
		TTL:          protocol.TTLUserMessage,
		Timestamp:    uint64(time.Now().UnixMilli()),
		SenderID:     e.identity.PeerID(),
		RecipientID:  peerID,
		HasRecipient: true,
		Payload:      ciphertext,
	}
	if err := e.transports.SendUnicast(p, peerID, time.Now()); err != nil {
		return err
	}
	if needsRekey {
		sess.BeginRekey()
		if err := e.beginHandshake(sess, peerID); err != nil {
			e.logf(zap.WarnLevel, "rekey handshake restart failed", zap.Error(err))
		}
	}
	return nil
}

// flushPending sends every plaintext payload queued behind fp's handshake,
// called once the session reaches Established.
func (e *Engine) flushPending(fp identity.Fingerprint) {
	sess, ok := e.sessions.Get(fp)
	if !ok {
		return
	}
	for _, msg := range e.pending.drain(fp) {
		if err := e.encryptAndSend(sess, msg.peerID, msg.plaintext); err != nil {
			if msg.messageID != "" {
				e.deliveries.MarkFailed(msg.messageID, err.Error())
			}
			continue
		}
		if msg.messageID != "" {
			e.deliveries.MarkSent(msg.messageID, 0)
		}
	}
}

// checkRetries drives delivery.Tracker's ack-timeout retry: every Sent
// message past its deadline is re-encrypted and re-sent from the cached
// plaintext, or marked Failed if CheckRetries already exhausted its budget
// (§4.12).
func (e *Engine) checkRetries(now time.Time) {
	retry, failed := e.deliveries.CheckRetries(now)

	for _, id := range failed {
		e.retries.remove(id)
	}

	for _, id := range retry {
		entry, ok := e.retries.get(id)
		if !ok {
			continue
		}
		fp, ok := registryResolver{e.registry}.FingerprintForPeerID(entry.peerID)
		if !ok {
			e.deliveries.MarkFailed(id, "peer identity no longer known")
			e.retries.remove(id)
			continue
		}
		if err := e.sendOrQueue(fp, entry.peerID, id, entry.plaintext, entry.urgency); err != nil {
			e.deliveries.MarkFailed(id, err.Error())
			e.retries.remove(id)
			continue
		}
		e.deliveries.RecordRetry(id, now)
	}
}

// AnnounceIdentity broadcasts a fresh signed NoiseIdentityAnnouncement for
// the current ephemeral peer ID (§4.4).
func (e *Engine) AnnounceIdentity() error {
	announcement, err := e.identity.BuildAnnouncement()
	if err != nil {
		return err
	}
	body := identity.Encode(announcement)

	p := &protocol.Packet{
		Version:   protocol.Version,
		Type:      protocol.TypeAnnounce,
		TTL:       protocol.TTLAnnouncement,
		Timestamp: announcement.BindingTimestamp,
		SenderID:  e.identity.PeerID(),
		Payload:   body,
	}
	e.transports.Broadcast(p)
	return nil
}

// RotateIdentity replaces the ephemeral peer ID (not the long-term keys)
// and announces the new binding, honoring the minimum rotation interval
// (§4.4).
func (e *Engine) RotateIdentity() error {
	if !e.identity.CanRotatePeerID() {
		return errRotateTooSoon
	}
	if err := e.identity.RotatePeerID(); err != nil {
		return err
	}
	return e.AnnounceIdentity()
}

// Favorite marks fp as a favorite (§13).
func (e *Engine) Favorite(fp identity.Fingerprint) error { return e.keys.Favorite([32]byte(fp)) }

// Unfavorite removes fp from the favorites table.
func (e *Engine) Unfavorite(fp identity.Fingerprint) error { return e.keys.Unfavorite([32]byte(fp)) }

// IsFavorite reports whether fp is favorited.
func (e *Engine) IsFavorite(fp identity.Fingerprint) bool { return e.keys.IsFavorite([32]byte(fp)) }

// Blacklist suppresses local delivery of fp's traffic (§13); the mesh
// still relays it for other peers.
func (e *Engine) Blacklist(fp identity.Fingerprint) error { return e.keys.Blacklist([32]byte(fp)) }

// Unblacklist removes fp from the blacklist.
func (e *Engine) Unblacklist(fp identity.Fingerprint) error { return e.keys.Unblacklist([32]byte(fp)) }

// IsBlacklisted reports whether fp is currently blacklisted.
func (e *Engine) IsBlacklisted(fp identity.Fingerprint) bool { return e.keys.IsBlacklisted([32]byte(fp)) }

var (
	errUnknownPeerIdentity = engineError("meshcore: peer's long-term identity is not yet known")
	errRotateTooSoon       = engineError("meshcore: minimum peer ID rotation interval has not elapsed")
)

type engineError string

func (e engineError) Error() string { return string(e) }
