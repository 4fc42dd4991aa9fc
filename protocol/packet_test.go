package protocol

import (
	"bytes"
	"testing"
)

func TestPacketRoundTripBroadcastNoSignature(t *testing.T) {
	p := &Packet{
		Version:     Version,
		Type:        TypeMessage,
		TTL:         3,
		Timestamp:   1_700_000_000_000,
		SenderID:    [PeerIDSize]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		RecipientID: BroadcastRecipient,
		HasRecipient: true,
		Payload:     []byte("hello"),
	}

	encoded, err := EncodePacket(p)
	if err != nil {
		t.Fatalf("EncodePacket: %v", err)
	}

	// headerSize(14) + senderID(8) + recipientID(8) + payload(5) = 35
	if len(encoded) < headerSize+PeerIDSize+len(p.Payload) {
		t.Fatalf("encoded packet too short: %d bytes", len(encoded))
	}
	if encoded[11]&FlagHasRecipient == 0 {
		t.Fatalf("expected FlagHasRecipient set, flags=%#x", encoded[11])
	}

	decoded, err := DecodePacket(encoded)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}

	if decoded.Version != p.Version || decoded.Type != p.Type || decoded.TTL != p.TTL ||
		decoded.Timestamp != p.Timestamp || decoded.SenderID != p.SenderID ||
		decoded.RecipientID != p.RecipientID || decoded.HasRecipient != p.HasRecipient ||
		!bytes.Equal(decoded.Payload, p.Payload) || decoded.HasSignature != false {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, p)
	}
}

func TestPacketRoundTripSigned(t *testing.T) {
	p := &Packet{
		Version:      Version,
		Type:         TypeAnnounce,
		TTL:          TTLAnnouncement,
		Timestamp:    1_700_000_000_001,
		SenderID:     [PeerIDSize]byte{8, 7, 6, 5, 4, 3, 2, 1},
		Payload:      []byte("identity announcement payload"),
		HasSignature: true,
	}
	for i := range p.Signature {
		p.Signature[i] = byte(i)
	}

	encoded, err := EncodePacket(p)
	if err != nil {
		t.Fatalf("EncodePacket: %v", err)
	}

	decoded, err := DecodePacket(encoded)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if !decoded.HasSignature || decoded.Signature != p.Signature {
		t.Fatalf("signature not preserved")
	}
	if decoded.HasRecipient {
		t.Fatalf("unexpected recipient on unicast-less packet")
	}
}

func TestPacketCompressionRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("mesh-compress-me "), 100)
	p := &Packet{
		Version:   Version,
		Type:      TypeMessage,
		TTL:       TTLUserMessage,
		Timestamp: 42,
		SenderID:  [PeerIDSize]byte{1, 1, 1, 1, 1, 1, 1, 1},
		Payload:   payload,
	}

	encoded, err := EncodePacket(p)
	if err != nil {
		t.Fatalf("EncodePacket: %v", err)
	}
	if len(encoded) >= len(payload) {
		t.Fatalf("expected compression to shrink repetitive payload: encoded=%d original=%d", len(encoded), len(payload))
	}

	decoded, err := DecodePacket(encoded)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("decompressed payload mismatch")
	}
}

func TestDecodePacketRejectsShortBuffer(t *testing.T) {
	if _, err := DecodePacket([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for buffer shorter than header")
	}
}

func TestDecodePacketRejectsBadVersion(t *testing.T) {
	p := &Packet{Version: Version + 1, Type: TypeMessage, SenderID: [PeerIDSize]byte{1}}
	encoded, err := EncodePacket(p)
	if err != nil {
		t.Fatalf("EncodePacket: %v", err)
	}
	if _, err := DecodePacket(encoded); err == nil {
		t.Fatalf("expected unsupported version error")
	}
}

func TestDecodePacketRejectsTruncatedPayload(t *testing.T) {
	p := &Packet{Version: Version, Type: TypeMessage, SenderID: [PeerIDSize]byte{1}, Payload: []byte("hello")}
	encoded, err := EncodePacket(p)
	if err != nil {
		t.Fatalf("EncodePacket: %v", err)
	}
	truncated := encoded[:len(encoded)-2]
	if _, err := DecodePacket(truncated); err == nil {
		t.Fatalf("expected out-of-bounds error on truncated payload")
	}
}

func TestEncodePacketRejectsOversizePayload(t *testing.T) {
	p := &Packet{Version: Version, Type: TypeMessage, SenderID: [PeerIDSize]byte{1}, Payload: make([]byte, MaxPayloadSize+1)}
	if _, err := EncodePacket(p); err == nil {
		t.Fatalf("expected error for oversize payload")
	}
}
