/*
File Name:  announcement.go

NoiseIdentityAnnouncement: the signed binding between a peer's current
ephemeral peer ID and its long-term static/signing keys (§3, §4.4). Encoded
as length-prefixed fields, matching the teacher's preference for explicit
hand-rolled TLV encoding over reflection-based serialization.
*/

package identity

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"strconv"
	"time"

	"github.com/bitchat-mesh/meshcore/errtype"
	"github.com/bitchat-mesh/meshcore/meshcrypto"
)

// ClockSkewTolerance is the maximum allowed difference between an
// announcement's timestamp and local clock (§4.4: "within ±5 minutes").
const ClockSkewTolerance = 5 * time.Minute

var (
	ErrAnnouncementTruncated = errors.New("identity: announcement buffer truncated")
	ErrSignatureInvalid      = errors.New("identity: announcement signature does not validate")
	ErrClockSkew             = errors.New("identity: announcement timestamp outside tolerance")
)

// Announcement is the decoded NoiseIdentityAnnouncement.
type Announcement struct {
	CurrentPeerID    [8]byte
	StaticPub        [32]byte
	SigningPub       [32]byte
	Nickname         string
	BindingTimestamp uint64 // ms since epoch
	PreviousPeerID   [8]byte
	HasPrevious      bool
	Signature        [64]byte
}

// signedMessage reconstructs the bytes the signature covers:
// currentPeerID || staticPub || timestamp_ms_as_ascii (§3 invariant).
func signedMessage(peerID [8]byte, staticPub [32]byte, timestampMs uint64) []byte {
	var buf bytes.Buffer
	buf.Write(peerID[:])
	buf.Write(staticPub[:])
	buf.WriteString(strconv.FormatUint(timestampMs, 10))
	return buf.Bytes()
}

// BuildAnnouncement produces a fresh, signed NoiseIdentityAnnouncement for
// this store's current identity.
func (s *Store) BuildAnnouncement() (*Announcement, error) {
	s.mu.RLock()
	peerID := s.peerID
	staticPub := s.static.Public
	signingPriv := s.signing.Private
	signingPub := s.signing.Public
	nickname := s.nickname
	previous := s.previousPeer
	hasPrevious := s.hasPrevious
	s.mu.RUnlock()

	timestamp := uint64(time.Now().UnixMilli())
	sigBytes := meshcrypto.Sign(signingPriv, signedMessage(peerID, staticPub, timestamp))

	a := &Announcement{
		CurrentPeerID:    peerID,
		StaticPub:        staticPub,
		Nickname:         nickname,
		BindingTimestamp: timestamp,
		PreviousPeerID:   previous,
		HasPrevious:      hasPrevious,
	}
	copy(a.SigningPub[:], signingPub)
	copy(a.Signature[:], sigBytes)
	return a, nil
}

// Encode serializes an Announcement to its wire form.
func Encode(a *Announcement) []byte {
	buf := &bytes.Buffer{}
	buf.Write(a.CurrentPeerID[:])
	buf.Write(a.StaticPub[:])
	buf.Write(a.SigningPub[:])

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], a.BindingTimestamp)
	buf.Write(ts[:])

	buf.WriteByte(uint8(len(a.Nickname)))
	buf.WriteString(a.Nickname)

	if a.HasPrevious {
		buf.WriteByte(1)
		buf.Write(a.PreviousPeerID[:])
	} else {
		buf.WriteByte(0)
	}

	buf.Write(a.Signature[:])

	return buf.Bytes()
}

// Decode parses raw into an Announcement without verifying the signature;
// call Verify separately against the claimed signing key.
func Decode(raw []byte) (*Announcement, error) {
	const fixedLen = 8 + 32 + 32 + 8 + 1 // peerID, staticPub, signingPub, timestamp, nicknameLen
	if len(raw) < fixedLen {
		return nil, errtype.New(errtype.Parse, "identity.Decode", ErrAnnouncementTruncated)
	}

	a := &Announcement{}
	offset := 0
	copy(a.CurrentPeerID[:], raw[offset:offset+8])
	offset += 8
	copy(a.StaticPub[:], raw[offset:offset+32])
	offset += 32
	copy(a.SigningPub[:], raw[offset:offset+32])
	offset += 32
	a.BindingTimestamp = binary.BigEndian.Uint64(raw[offset : offset+8])
	offset += 8

	nicknameLen := int(raw[offset])
	offset++
	if offset+nicknameLen > len(raw) {
		return nil, errtype.New(errtype.Parse, "identity.Decode", ErrAnnouncementTruncated)
	}
	a.Nickname = string(raw[offset : offset+nicknameLen])
	offset += nicknameLen

	if offset+1 > len(raw) {
		return nil, errtype.New(errtype.Parse, "identity.Decode", ErrAnnouncementTruncated)
	}
	hasPrevious := raw[offset] != 0
	offset++
	if hasPrevious {
		if offset+8 > len(raw) {
			return nil, errtype.New(errtype.Parse, "identity.Decode", ErrAnnouncementTruncated)
		}
		copy(a.PreviousPeerID[:], raw[offset:offset+8])
		a.HasPrevious = true
		offset += 8
	}

	if offset+64 > len(raw) {
		return nil, errtype.New(errtype.Parse, "identity.Decode", ErrAnnouncementTruncated)
	}
	copy(a.Signature[:], raw[offset:offset+64])
	offset += 64

	return a, nil
}

// Verify checks the announcement's signature and clock-skew tolerance
// against now, per §4.4's acceptance rule.
func Verify(a *Announcement, now time.Time) error {
	msg := signedMessage(a.CurrentPeerID, a.StaticPub, a.BindingTimestamp)
	if !meshcrypto.Verify(ed25519.PublicKey(a.SigningPub[:]), msg, a.Signature[:]) {
		return errtype.New(errtype.Crypto, "identity.Verify", ErrSignatureInvalid)
	}

	claimed := time.UnixMilli(int64(a.BindingTimestamp))
	delta := now.Sub(claimed)
	if delta < 0 {
		delta = -delta
	}
	if delta > ClockSkewTolerance {
		return errtype.New(errtype.Parse, "identity.Verify", ErrClockSkew)
	}

	return nil
}
