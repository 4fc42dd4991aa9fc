/*
File Name:  packet.go

Binary wire packet: fixed header + sender/recipient IDs + payload + optional
signature. All multi-byte integers are big-endian. Bounds are checked before
every slice operation so a malformed buffer can never read out of range
(§8 invariant 2); on any violation DecodePacket returns a Parse-class error
and the caller drops the packet (§7).

Header layout (fixed-size fields preceding the two always-8-byte IDs):

	offset  size  field
	0       1     version
	1       1     type
	2       1     ttl
	3       8     timestamp (ms since epoch, big-endian)
	11      1     flags
	12      2     payloadLen
	--      8     senderID
	--      8     recipientID (present iff FlagHasRecipient)
	--      2     originalPayloadLen (present iff FlagIsCompressed)
	--      N     payload
	--      64    signature (present iff FlagHasSignature)

headerSize below measures the fixed prefix through payloadLen (14 bytes);
senderID/recipientID are emitted immediately after it as spec'd in §4.1
("senderID/recipientID are always emitted as 8 bytes").
*/

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/bitchat-mesh/meshcore/errtype"
)

const headerSize = 1 + 1 + 1 + 8 + 1 + 2 // version, type, ttl, timestamp, flags, payloadLen
const signatureSize = 64

// compressMinSize is the smallest payload §4.1 will ever attempt to
// compress.
const compressMinSize = 256

// compressRatio is the ratio a payload must beat to be stored compressed
// (§4.1: "compresses to <90% of original").
const compressRatio = 0.9

var (
	ErrBufferTooShort   = errors.New("protocol: buffer too short for header")
	ErrUnsupportedVersion = errors.New("protocol: unsupported packet version")
	ErrPayloadTooLarge  = errors.New("protocol: payload exceeds maximum size")
	ErrOutOfBounds      = errors.New("protocol: field offset/length exceeds buffer")
	ErrBadCompressedLen = errors.New("protocol: invalid original payload length")
	ErrDecompressedSize = errors.New("protocol: decompressed payload size mismatch")
)

// Packet is the decoded form of a wire packet.
type Packet struct {
	Version            uint8
	Type               PacketType
	TTL                uint8
	Timestamp          uint64 // ms since epoch
	SenderID           [PeerIDSize]byte
	RecipientID        [PeerIDSize]byte
	HasRecipient       bool
	Payload            []byte
	Signature          [signatureSize]byte
	HasSignature       bool
}

// EncodePacket serializes p into its wire form, compressing the payload
// when it is worthwhile (§4.1).
func EncodePacket(p *Packet) ([]byte, error) {
	if len(p.Payload) > MaxPayloadSize {
		return nil, errtype.New(errtype.Parse, "protocol.EncodePacket", ErrPayloadTooLarge)
	}

	payload := p.Payload
	flags := uint8(0)
	var originalLen uint16

	if p.HasRecipient {
		flags |= FlagHasRecipient
	}
	if p.HasSignature {
		flags |= FlagHasSignature
	}

	if compressed, ok := tryCompress(p.Payload); ok {
		flags |= FlagIsCompressed
		originalLen = uint16(len(p.Payload))
		payload = compressed
	}

	if len(payload) > MaxPayloadSize {
		return nil, errtype.New(errtype.Parse, "protocol.EncodePacket", ErrPayloadTooLarge)
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+2*PeerIDSize+len(payload)+signatureSize))

	buf.WriteByte(p.Version)
	buf.WriteByte(uint8(p.Type))
	buf.WriteByte(p.TTL)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], p.Timestamp)
	buf.Write(ts[:])

	buf.WriteByte(flags)

	var payloadLenField [2]byte
	binary.BigEndian.PutUint16(payloadLenField[:], uint16(len(payload)))
	buf.Write(payloadLenField[:])

	buf.Write(p.SenderID[:])

	if p.HasRecipient {
		buf.Write(p.RecipientID[:])
	}

	if flags&FlagIsCompressed != 0 {
		var origLenField [2]byte
		binary.BigEndian.PutUint16(origLenField[:], originalLen)
		buf.Write(origLenField[:])
	}

	buf.Write(payload)

	if p.HasSignature {
		buf.Write(p.Signature[:])
	}

	return buf.Bytes(), nil
}

// DecodePacket parses raw into a Packet, enforcing every bound from §4.1
// before touching the corresponding bytes. It never panics and never reads
// past len(raw) regardless of what the declared lengths claim.
func DecodePacket(raw []byte) (*Packet, error) {
	if len(raw) < headerSize {
		return nil, errtype.New(errtype.Parse, "protocol.DecodePacket", ErrBufferTooShort)
	}

	p := &Packet{}
	p.Version = raw[0]
	if p.Version != Version {
		return nil, errtype.New(errtype.Parse, "protocol.DecodePacket", ErrUnsupportedVersion)
	}
	p.Type = PacketType(raw[1])
	p.TTL = raw[2]
	p.Timestamp = binary.BigEndian.Uint64(raw[3:11])
	flags := raw[11]
	payloadLen := int(binary.BigEndian.Uint16(raw[12:14]))

	if payloadLen > MaxPayloadSize {
		return nil, errtype.New(errtype.Parse, "protocol.DecodePacket", ErrPayloadTooLarge)
	}

	offset := headerSize
	if !withinBounds(raw, offset, PeerIDSize) {
		return nil, errtype.New(errtype.Parse, "protocol.DecodePacket", ErrOutOfBounds)
	}
	copy(p.SenderID[:], raw[offset:offset+PeerIDSize])
	offset += PeerIDSize

	if flags&FlagHasRecipient != 0 {
		if !withinBounds(raw, offset, PeerIDSize) {
			return nil, errtype.New(errtype.Parse, "protocol.DecodePacket", ErrOutOfBounds)
		}
		copy(p.RecipientID[:], raw[offset:offset+PeerIDSize])
		p.HasRecipient = true
		offset += PeerIDSize
	}

	var originalLen int
	if flags&FlagIsCompressed != 0 {
		if !withinBounds(raw, offset, 2) {
			return nil, errtype.New(errtype.Parse, "protocol.DecodePacket", ErrOutOfBounds)
		}
		originalLen = int(binary.BigEndian.Uint16(raw[offset : offset+2]))
		offset += 2
		if originalLen <= 0 || originalLen > MaxPayloadSize {
			return nil, errtype.New(errtype.Parse, "protocol.DecodePacket", ErrBadCompressedLen)
		}
	}

	if !withinBounds(raw, offset, payloadLen) {
		return nil, errtype.New(errtype.Parse, "protocol.DecodePacket", ErrOutOfBounds)
	}
	payload := make([]byte, payloadLen)
	copy(payload, raw[offset:offset+payloadLen])
	offset += payloadLen

	if flags&FlagIsCompressed != 0 {
		decompressed, err := decompress(payload, originalLen)
		if err != nil {
			return nil, errtype.New(errtype.Parse, "protocol.DecodePacket", err)
		}
		payload = decompressed
	}
	p.Payload = payload

	if flags&FlagHasSignature != 0 {
		if !withinBounds(raw, offset, signatureSize) {
			return nil, errtype.New(errtype.Parse, "protocol.DecodePacket", ErrOutOfBounds)
		}
		copy(p.Signature[:], raw[offset:offset+signatureSize])
		p.HasSignature = true
		offset += signatureSize
	}

	return p, nil
}

// withinBounds reports whether [offset, offset+length) lies inside buf
// without overflowing, guarding against the integer-overflow variant of an
// out-of-bounds read.
func withinBounds(buf []byte, offset, length int) bool {
	if offset < 0 || length < 0 {
		return false
	}
	end := offset + length
	if end < offset { // overflow
		return false
	}
	return end <= len(buf)
}

// tryCompress attempts DEFLATE compression of data, returning the
// compressed bytes only when it beats compressRatio (§4.1).
func tryCompress(data []byte) (compressed []byte, ok bool) {
	if len(data) <= compressMinSize {
		return nil, false
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, false
	}
	if _, err := w.Write(data); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}

	if float64(buf.Len()) >= float64(len(data))*compressRatio {
		return nil, false
	}

	return buf.Bytes(), true
}

// decompress inflates data and verifies the result is exactly
// expectedLen bytes (§4.1: "after decompression, payload must be exactly
// originalLen bytes").
func decompress(data []byte, expectedLen int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out := make([]byte, expectedLen)
	n, err := io.ReadFull(r, out)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if n != expectedLen {
		return nil, ErrDecompressedSize
	}

	// Confirm no trailing bytes remain, i.e. expectedLen was exact.
	var extra [1]byte
	if n2, _ := r.Read(extra[:]); n2 != 0 {
		return nil, ErrDecompressedSize
	}

	return out, nil
}
