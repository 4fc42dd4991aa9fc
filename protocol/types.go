/*
File Name:  types.go

Wire-level constants: packet types, Noise payload types, and the flag bits
used in both the packet header and the ChatMessage encoding.
*/

package protocol

// Version is the only packet version this core speaks. Any other version
// byte is dropped by DecodePacket.
const Version uint8 = 1

// PacketType identifies the payload carried by a Packet.
type PacketType uint8

// Current packet types. The historical expanded set (KeyExchange,
// FragmentStart/Continue/End, RoomAnnounce/Retention, DeliveryAck,
// ReadReceipt, DeliveryStatusRequest) is retired in favor of typed payloads
// inside NoiseEncrypted (§3). DecodePacket does not check the type byte;
// the inbound dispatch has no handler for the retired types, so they are
// never delivered locally.
const (
	TypeAnnounce       PacketType = 0x01
	TypeMessage        PacketType = 0x02
	TypeLeave          PacketType = 0x03
	TypeNoiseHandshake PacketType = 0x10
	TypeNoiseEncrypted PacketType = 0x11
	TypeFragment       PacketType = 0x20
)

// NoisePayloadType is the first byte of a decrypted NoiseEncrypted payload.
type NoisePayloadType uint8

const (
	PayloadPrivateMessage NoisePayloadType = 0x01
	PayloadReadReceipt    NoisePayloadType = 0x02
	PayloadDelivered      NoisePayloadType = 0x03
)

// Header flag bits (the flags byte of the wire header).
const (
	FlagHasRecipient = 1 << 0
	FlagHasSignature = 1 << 1
	FlagIsCompressed = 1 << 2
)

// ChatMessage flag bits (§4.1: "8 booleans").
const (
	MsgFlagIsRelay               = 1 << 0
	MsgFlagIsPrivate             = 1 << 1
	MsgFlagHasOriginalSender     = 1 << 2
	MsgFlagHasRecipientNickname  = 1 << 3
	MsgFlagHasSenderPeerID       = 1 << 4
	MsgFlagHasMentions           = 1 << 5
	MsgFlagHasChannel            = 1 << 6
	MsgFlagIsEncrypted           = 1 << 7
)

// PeerIDSize is the fixed wire width of every peer ID, sender ID, and
// recipient ID (§3, §6: "All peer IDs on the wire are 8 bytes").
const PeerIDSize = 8

// BroadcastRecipient is the reserved recipient ID meaning "everyone"
// (8 bytes of 0xFF, §6).
var BroadcastRecipient = [PeerIDSize]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// IsBroadcast reports whether id is the reserved broadcast recipient.
func IsBroadcast(id [PeerIDSize]byte) bool {
	return id == BroadcastRecipient
}

// Starting TTL defaults (§4.7).
const (
	TTLUserMessage   = 7
	TTLAnnouncement  = 3
	TTLHandshake     = 3
)

// MaxPayloadSize is the hard cap on a packet's payload (§3).
const MaxPayloadSize = 1 << 20 // 1 MiB
