package meshcore

import (
	"testing"

	"github.com/bitchat-mesh/meshcore/transportmgr"
)

func TestRetryCachePutGetRemove(t *testing.T) {
	c := newRetryCache()

	if _, ok := c.get("m1"); ok {
		t.Fatalf("expected no entry before put")
	}

	peerID := [8]byte{1, 2, 3}
	c.put("m1", peerID, []byte("hello"), transportmgr.Urgent)

	entry, ok := c.get("m1")
	if !ok {
		t.Fatalf("expected entry after put")
	}
	if entry.peerID != peerID || string(entry.plaintext) != "hello" || entry.urgency != transportmgr.Urgent {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	c.remove("m1")
	if _, ok := c.get("m1"); ok {
		t.Fatalf("expected entry to be gone after remove")
	}
}
