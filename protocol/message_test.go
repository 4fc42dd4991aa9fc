package protocol

import (
	"strings"
	"testing"
)

func TestMessageRoundTripMinimal(t *testing.T) {
	m := &ChatMessage{
		ID:        "a1b2c3d4",
		Sender:    "alice",
		Content:   "hello mesh",
		Timestamp: 1_700_000_000_000,
	}

	encoded, err := EncodeMessage(m)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	decoded, err := DecodeMessage(encoded)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}

	if decoded.ID != m.ID || decoded.Sender != m.Sender || decoded.Content != m.Content ||
		decoded.Timestamp != m.Timestamp || decoded.IsRelay || decoded.IsPrivate ||
		decoded.IsEncrypted || len(decoded.Mentions) != 0 {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, m)
	}
}

func TestMessageRoundTripAllOptionalFields(t *testing.T) {
	m := &ChatMessage{
		ID:                   "msg-42",
		Sender:               "bob",
		Content:              "private reply",
		Timestamp:            1_700_000_123_456,
		IsRelay:              true,
		OriginalSender:       "carol",
		HasOriginalSender:    true,
		IsPrivate:            true,
		RecipientNickname:    "alice",
		HasRecipientNickname: true,
		SenderPeerID:         "0102030405060708",
		HasSenderPeerID:      true,
		Mentions:             []string{"alice", "dave"},
		Channel:              "#general",
		HasChannel:           true,
		IsEncrypted:          true,
	}

	encoded, err := EncodeMessage(m)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	decoded, err := DecodeMessage(encoded)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}

	if decoded.ID != m.ID || decoded.Sender != m.Sender || decoded.Content != m.Content ||
		decoded.Timestamp != m.Timestamp || decoded.IsRelay != m.IsRelay ||
		decoded.OriginalSender != m.OriginalSender || decoded.IsPrivate != m.IsPrivate ||
		decoded.RecipientNickname != m.RecipientNickname || decoded.SenderPeerID != m.SenderPeerID ||
		len(decoded.Mentions) != len(m.Mentions) || decoded.Channel != m.Channel ||
		decoded.IsEncrypted != m.IsEncrypted {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, m)
	}
	for i := range m.Mentions {
		if decoded.Mentions[i] != m.Mentions[i] {
			t.Fatalf("mention %d mismatch: got %q want %q", i, decoded.Mentions[i], m.Mentions[i])
		}
	}
}

func TestEncodeMessageRejectsTooManyMentions(t *testing.T) {
	m := &ChatMessage{ID: "x", Sender: "x", Mentions: make([]string, maxMentions+1)}
	if _, err := EncodeMessage(m); err == nil {
		t.Fatalf("expected error for too many mentions")
	}
}

func TestEncodeMessageRejectsOversizeContent(t *testing.T) {
	m := &ChatMessage{ID: "x", Sender: "x", Content: strings.Repeat("a", maxContentLength+1)}
	if _, err := EncodeMessage(m); err == nil {
		t.Fatalf("expected error for oversize content")
	}
}

func TestEncodeMessageRejectsOversizeShortField(t *testing.T) {
	m := &ChatMessage{ID: strings.Repeat("a", maxShortField+1), Sender: "x"}
	if _, err := EncodeMessage(m); err == nil {
		t.Fatalf("expected error for oversize id field")
	}
}

func TestDecodeMessageRejectsTruncatedBuffer(t *testing.T) {
	m := &ChatMessage{ID: "abc", Sender: "def", Content: "hello", Timestamp: 1}
	encoded, err := EncodeMessage(m)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if _, err := DecodeMessage(encoded[:len(encoded)-3]); err == nil {
		t.Fatalf("expected truncation error")
	}
}
