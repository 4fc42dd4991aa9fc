/*
File Name:  message.go

ChatMessage is the payload typically carried inside a Message or
NoiseEncrypted/PrivateMessage packet. It is encoded compactly: a flags byte,
an 8-byte millisecond timestamp, 1-byte-length-prefixed strings for the
identifier fields, a 2-byte-length-prefixed content field, and a 1-byte
count of mentions each themselves 1-byte-length-prefixed.

Content doubles as ciphertext when IsEncrypted is set (§3: "content:
string|ciphertext"); there is no separate wire field for "encryptedContent"
since the two are mutually exclusive on a single message.
*/

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	maxMentions      = 100
	maxShortField    = 255   // ids, sender, originalSender, recipientNickname, senderPeerID, channel, each mention
	maxContentLength = 65535 // content / ciphertext
)

var (
	ErrTooManyMentions  = errors.New("protocol: too many mentions")
	ErrFieldTooLong     = errors.New("protocol: field exceeds maximum length")
	ErrMessageTruncated = errors.New("protocol: message buffer truncated")
)

// ChatMessage is the decoded application-level chat payload.
type ChatMessage struct {
	ID                  string
	Sender              string
	Content             string // plaintext, or ciphertext bytes as a string when IsEncrypted
	Timestamp           uint64 // ms since epoch
	IsRelay             bool
	OriginalSender      string
	HasOriginalSender   bool
	IsPrivate           bool
	RecipientNickname   string
	HasRecipientNickname bool
	SenderPeerID        string
	HasSenderPeerID     bool
	Mentions            []string
	Channel             string
	HasChannel          bool
	IsEncrypted         bool
}

// EncodeMessage serializes m, enforcing every length cap in §4.1.
func EncodeMessage(m *ChatMessage) ([]byte, error) {
	if len(m.Mentions) > maxMentions {
		return nil, ErrTooManyMentions
	}
	for _, mention := range m.Mentions {
		if len(mention) > maxShortField {
			return nil, ErrFieldTooLong
		}
	}
	if len(m.ID) > maxShortField || len(m.Sender) > maxShortField ||
		len(m.OriginalSender) > maxShortField || len(m.RecipientNickname) > maxShortField ||
		len(m.SenderPeerID) > maxShortField || len(m.Channel) > maxShortField {
		return nil, ErrFieldTooLong
	}
	if len(m.Content) > maxContentLength {
		return nil, ErrFieldTooLong
	}

	flags := uint8(0)
	if m.IsRelay {
		flags |= MsgFlagIsRelay
	}
	if m.IsPrivate {
		flags |= MsgFlagIsPrivate
	}
	if m.HasOriginalSender {
		flags |= MsgFlagHasOriginalSender
	}
	if m.HasRecipientNickname {
		flags |= MsgFlagHasRecipientNickname
	}
	if m.HasSenderPeerID {
		flags |= MsgFlagHasSenderPeerID
	}
	if len(m.Mentions) > 0 {
		flags |= MsgFlagHasMentions
	}
	if m.HasChannel {
		flags |= MsgFlagHasChannel
	}
	if m.IsEncrypted {
		flags |= MsgFlagIsEncrypted
	}

	buf := &bytes.Buffer{}
	buf.WriteByte(flags)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], m.Timestamp)
	buf.Write(ts[:])

	writeShortString(buf, m.ID)
	writeShortString(buf, m.Sender)
	writeLongString(buf, m.Content)

	if m.HasOriginalSender {
		writeShortString(buf, m.OriginalSender)
	}
	if m.HasRecipientNickname {
		writeShortString(buf, m.RecipientNickname)
	}
	if m.HasSenderPeerID {
		writeShortString(buf, m.SenderPeerID)
	}
	if len(m.Mentions) > 0 {
		buf.WriteByte(uint8(len(m.Mentions)))
		for _, mention := range m.Mentions {
			writeShortString(buf, mention)
		}
	}
	if m.HasChannel {
		writeShortString(buf, m.Channel)
	}

	return buf.Bytes(), nil
}

// DecodeMessage parses data into a ChatMessage, bounds-checking every
// length before slicing it.
func DecodeMessage(data []byte) (*ChatMessage, error) {
	r := &byteReader{buf: data}

	flags, err := r.readByte()
	if err != nil {
		return nil, err
	}
	timestamp, err := r.readUint64()
	if err != nil {
		return nil, err
	}

	m := &ChatMessage{
		Timestamp:   timestamp,
		IsRelay:     flags&MsgFlagIsRelay != 0,
		IsPrivate:   flags&MsgFlagIsPrivate != 0,
		IsEncrypted: flags&MsgFlagIsEncrypted != 0,
	}

	if m.ID, err = r.readShortString(); err != nil {
		return nil, err
	}
	if m.Sender, err = r.readShortString(); err != nil {
		return nil, err
	}
	if m.Content, err = r.readLongString(); err != nil {
		return nil, err
	}

	if flags&MsgFlagHasOriginalSender != 0 {
		m.HasOriginalSender = true
		if m.OriginalSender, err = r.readShortString(); err != nil {
			return nil, err
		}
	}
	if flags&MsgFlagHasRecipientNickname != 0 {
		m.HasRecipientNickname = true
		if m.RecipientNickname, err = r.readShortString(); err != nil {
			return nil, err
		}
	}
	if flags&MsgFlagHasSenderPeerID != 0 {
		m.HasSenderPeerID = true
		if m.SenderPeerID, err = r.readShortString(); err != nil {
			return nil, err
		}
	}
	if flags&MsgFlagHasMentions != 0 {
		count, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if int(count) > maxMentions {
			return nil, ErrTooManyMentions
		}
		m.Mentions = make([]string, 0, count)
		for i := 0; i < int(count); i++ {
			mention, err := r.readShortString()
			if err != nil {
				return nil, err
			}
			m.Mentions = append(m.Mentions, mention)
		}
	}
	if flags&MsgFlagHasChannel != 0 {
		m.HasChannel = true
		if m.Channel, err = r.readShortString(); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func writeShortString(buf *bytes.Buffer, s string) {
	buf.WriteByte(uint8(len(s)))
	buf.WriteString(s)
}

func writeLongString(buf *bytes.Buffer, s string) {
	var lenField [2]byte
	binary.BigEndian.PutUint16(lenField[:], uint16(len(s)))
	buf.Write(lenField[:])
	buf.WriteString(s)
}

// byteReader is a tiny bounds-checked cursor, avoiding aliased subslices
// (§9: "Data subranges ... must be bounds-checked copies, not aliased
// views") by always returning string()-copied data.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) readByte() (uint8, error) {
	if r.pos+1 > len(r.buf) {
		return 0, ErrMessageTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) readUint64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, ErrMessageTruncated
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *byteReader) readShortString() (string, error) {
	length, err := r.readByte()
	if err != nil {
		return "", err
	}
	if r.pos+int(length) > len(r.buf) {
		return "", ErrMessageTruncated
	}
	s := string(r.buf[r.pos : r.pos+int(length)])
	r.pos += int(length)
	return s, nil
}

func (r *byteReader) readLongString() (string, error) {
	if r.pos+2 > len(r.buf) {
		return "", ErrMessageTruncated
	}
	length := int(binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2]))
	r.pos += 2
	if length > maxContentLength {
		return "", ErrFieldTooLong
	}
	if r.pos+length > len(r.buf) {
		return "", ErrMessageTruncated
	}
	s := string(r.buf[r.pos : r.pos+length])
	r.pos += length
	return s, nil
}
