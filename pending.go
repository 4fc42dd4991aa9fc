/*
File Name:  pending.go

pendingOutbound holds plaintext Noise data-phase payloads queued behind a
handshake that hasn't completed yet (§4.5: "user-visible actions ...
enqueue a handshake if state=None"), flushed once the session reaches
Established.
*/

package meshcore

import (
	"sync"

	"github.com/bitchat-mesh/meshcore/identity"
	"github.com/bitchat-mesh/meshcore/transportmgr"
)

type pendingMessage struct {
	messageID string
	peerID    [8]byte
	plaintext []byte
	urgency   transportmgr.Urgency
}

type pendingOutbound struct {
	mu    sync.Mutex
	byFp  map[identity.Fingerprint][]pendingMessage
}

func newPendingOutbound() *pendingOutbound {
	return &pendingOutbound{byFp: make(map[identity.Fingerprint][]pendingMessage)}
}

func (p *pendingOutbound) enqueue(fp identity.Fingerprint, msg pendingMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byFp[fp] = append(p.byFp[fp], msg)
}

func (p *pendingOutbound) drain(fp identity.Fingerprint) []pendingMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.byFp[fp]
	delete(p.byFp, fp)
	return msgs
}
