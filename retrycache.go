/*
File Name:  retrycache.go

retryCache holds the plaintext and destination of every outstanding private
message, so the maintenance loop's ack-timeout retry (delivery.Tracker.
CheckRetries) can re-send a message it only knows by ID (§4.12).
*/

package meshcore

import (
	"sync"

	"github.com/bitchat-mesh/meshcore/transportmgr"
)

type retryEntry struct {
	peerID    [8]byte
	plaintext []byte
	urgency   transportmgr.Urgency
}

type retryCache struct {
	mu      sync.Mutex
	byMsgID map[string]retryEntry
}

func newRetryCache() *retryCache {
	return &retryCache{byMsgID: make(map[string]retryEntry)}
}

func (c *retryCache) put(messageID string, peerID [8]byte, plaintext []byte, urgency transportmgr.Urgency) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byMsgID[messageID] = retryEntry{peerID: peerID, plaintext: plaintext, urgency: urgency}
}

func (c *retryCache) get(messageID string) (retryEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byMsgID[messageID]
	return e, ok
}

func (c *retryCache) remove(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byMsgID, messageID)
}
