/*
File Name:  payload.go

Typed Noise data-phase payloads: the first byte after decryption is a
protocol.NoisePayloadType (§3), followed by a type-specific body. Before
encryption, outbound plaintext is padded to a C2 block size; padding never
touches ciphertext (§4.2).
*/

package session

import (
	"errors"

	"github.com/bitchat-mesh/meshcore/errtype"
	"github.com/bitchat-mesh/meshcore/padding"
	"github.com/bitchat-mesh/meshcore/protocol"
)

var ErrEmptyPayload = errors.New("session: empty decrypted payload")

// EncodePrivateMessagePayload packs a ChatMessage behind a PrivateMessage
// payload-type byte and pads the plaintext before the caller encrypts it.
func EncodePrivateMessagePayload(msg *protocol.ChatMessage) ([]byte, error) {
	body, err := protocol.EncodeMessage(msg)
	if err != nil {
		return nil, err
	}
	return prependTypePadded(protocol.PayloadPrivateMessage, body)
}

// EncodeReadReceiptPayload builds a ReadReceipt payload whose body is the
// acknowledged message ID.
func EncodeReadReceiptPayload(messageID string) ([]byte, error) {
	return prependTypePadded(protocol.PayloadReadReceipt, []byte(messageID))
}

// EncodeDeliveredPayload builds a Delivered payload whose body is the
// acknowledged message ID.
func EncodeDeliveredPayload(messageID string) ([]byte, error) {
	return prependTypePadded(protocol.PayloadDelivered, []byte(messageID))
}

func prependTypePadded(payloadType protocol.NoisePayloadType, body []byte) ([]byte, error) {
	raw := make([]byte, 0, 1+len(body))
	raw = append(raw, byte(payloadType))
	raw = append(raw, body...)

	block := padding.ChooseBlock(len(raw))
	if block <= len(raw) {
		return raw, nil
	}
	return padding.Pad(raw, block)
}

// DecodedPayload is a decrypted, unpadded Noise data-phase payload dispatched
// by type.
type DecodedPayload struct {
	Type           protocol.NoisePayloadType
	ChatMessage    *protocol.ChatMessage // set when Type == PayloadPrivateMessage
	AckMessageID   string                // set when Type == ReadReceipt or Delivered
}

// DecodePayload unpads and dispatches a decrypted Noise payload by its
// leading type byte.
func DecodePayload(plaintext []byte) (*DecodedPayload, error) {
	unpadded := padding.Unpad(plaintext)
	if len(unpadded) == 0 {
		return nil, errtype.New(errtype.Parse, "session.DecodePayload", ErrEmptyPayload)
	}

	payloadType := protocol.NoisePayloadType(unpadded[0])
	body := unpadded[1:]

	switch payloadType {
	case protocol.PayloadPrivateMessage:
		msg, err := protocol.DecodeMessage(body)
		if err != nil {
			return nil, err
		}
		return &DecodedPayload{Type: payloadType, ChatMessage: msg}, nil
	case protocol.PayloadReadReceipt, protocol.PayloadDelivered:
		return &DecodedPayload{Type: payloadType, AckMessageID: string(body)}, nil
	default:
		return &DecodedPayload{Type: payloadType}, nil
	}
}
