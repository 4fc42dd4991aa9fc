/*
File Name:  router.go

Router (C7): the TTL-bounded flood router. Pure decision logic over a
parsed Packet plus its origin transport tag; transmission itself is the
transport manager's job (C10), modulated by the bridge manager (C11).
*/

package router

import (
	"time"

	"github.com/bitchat-mesh/meshcore/identity"
	"github.com/bitchat-mesh/meshcore/protocol"
)

// PeerResolver maps a wire peer ID to a stable fingerprint, when known,
// letting the router consult the blacklist by fingerprint rather than by
// rotation-sensitive peer ID.
type PeerResolver interface {
	FingerprintForPeerID(id [8]byte) (identity.Fingerprint, bool)
}

// Blacklist reports whether a fingerprint's traffic should be suppressed
// from local delivery (§13 supplemented feature: blacklist is local-delivery
// suppression, not a mesh-wide poison — blacklisted traffic still relays).
type Blacklist interface {
	IsBlacklisted(fp identity.Fingerprint) bool
}

// LocalIdentity reports whether a peer ID belongs to this node, across its
// current and recently-rotated ephemeral IDs (§4.7 step 2).
type LocalIdentity interface {
	IsLocalPeerID(id [8]byte) bool
}

// Outcome is the result of routing one inbound packet.
type Outcome struct {
	Drop           bool
	DropReason     string
	DeliverLocally bool
	DeliverToC5    bool // NoiseEncrypted addressed to us: hand to the session layer, do not relay
	Relay          bool
	RelayPacket    *protocol.Packet // TTL already decremented, ready for C10
}

// Router is safe for concurrent use; Seen is internally synchronized and
// the collaborators are expected to be read-mostly.
type Router struct {
	Seen     *Seen
	Local    LocalIdentity
	Resolver PeerResolver
	Blocked  Blacklist
}

func New(local LocalIdentity, resolver PeerResolver, blocked Blacklist) *Router {
	return &Router{
		Seen:     NewSeen(),
		Local:    local,
		Resolver: resolver,
		Blocked:  blocked,
	}
}

// isAnnouncementType reports whether t is always-relay-always-local (§4.7:
// "Announcements (Announce, Leave, NoiseIdentityAnnouncement) are always
// relayed unless TTL-exhausted and always delivered locally").
func isAnnouncementType(t protocol.PacketType) bool {
	return t == protocol.TypeAnnounce || t == protocol.TypeLeave
}

func isBroadcast(p *protocol.Packet) bool {
	return !p.HasRecipient || protocol.IsBroadcast(p.RecipientID)
}

// Route applies the §4.7 decision steps to one inbound packet, already
// parsed by C1, tagged with the origin transport by C8.
func (r *Router) Route(p *protocol.Packet, originTag string, now time.Time) Outcome {
	fp := ComputeFingerprint(p.SenderID, p.Timestamp, p.Payload)
	if r.Seen.CheckAndInsert(fp) {
		return Outcome{Drop: true, DropReason: "duplicate fingerprint"}
	}

	if r.Blocked != nil && r.Resolver != nil {
		if fingerprint, ok := r.Resolver.FingerprintForPeerID(p.SenderID); ok && r.Blocked.IsBlacklisted(fingerprint) {
			// Still eligible for relay below; only local delivery is suppressed.
			return r.routeBlacklisted(p)
		}
	}

	if p.Type == protocol.TypeNoiseEncrypted && p.HasRecipient && r.Local != nil && r.Local.IsLocalPeerID(p.RecipientID) {
		return Outcome{DeliverToC5: true}
	}

	if p.TTL == 0 {
		if isAnnouncementType(p.Type) {
			// TTL-exhausted announcements are still delivered locally, just not relayed.
			return Outcome{Drop: true, DropReason: "ttl exhausted", DeliverLocally: true}
		}
		return Outcome{Drop: true, DropReason: "ttl exhausted"}
	}

	relayed := *p
	relayed.TTL--

	deliverLocally := isBroadcast(p) || isAnnouncementType(p.Type)

	return Outcome{
		DeliverLocally: deliverLocally,
		Relay:          true,
		RelayPacket:    &relayed,
	}
}

func (r *Router) routeBlacklisted(p *protocol.Packet) Outcome {
	if p.TTL == 0 {
		return Outcome{Drop: true, DropReason: "ttl exhausted"}
	}
	relayed := *p
	relayed.TTL--
	return Outcome{Relay: true, RelayPacket: &relayed}
}
