/*
File Name:  engine_controlapi.go

Wires the optional local introspection server (§13) against the engine's
collaborators and pushes message/peer-list events onto its live stream.
*/

package meshcore

import (
	"time"

	"github.com/bitchat-mesh/meshcore/controlapi"
)

type controlAPIServer = controlapi.Server

func (e *Engine) startControlAPI() {
	e.control = controlapi.New(e.registry, e.sessions, e.deliveries)
	go e.control.Serve(e.Config.ControlAPIListen)
}

func (e *Engine) publishMessageEvent(origin [8]byte, channel string) {
	if e.control == nil {
		return
	}
	e.control.Broadcast(controlapi.StreamEvent{
		Kind:      controlapi.EventMessage,
		Timestamp: time.Now(),
		Data:      map[string]string{"origin": hexPeerID(origin), "channel": channel},
	})
}

func (e *Engine) publishPeerListChanged() {
	if e.control == nil {
		return
	}
	e.control.Broadcast(controlapi.StreamEvent{
		Kind:      controlapi.EventPeerListChanged,
		Timestamp: time.Now(),
		Data:      e.registry.AllPeerIDs(),
	})
}
