/*
File Name:  adapters.go

Small adapters binding the engine's concrete collaborators to the narrow
interfaces C7 (router) declares for itself, so router stays decoupled from
registry/keystore's concrete types.
*/

package meshcore

import (
	"github.com/bitchat-mesh/meshcore/identity"
	"github.com/bitchat-mesh/meshcore/keystore"
	"github.com/bitchat-mesh/meshcore/registry"
)

// registryResolver implements router.PeerResolver over the peer registry's
// already-tracked public keys.
type registryResolver struct {
	reg *registry.Registry
}

func (r registryResolver) FingerprintForPeerID(id [8]byte) (identity.Fingerprint, bool) {
	rec, ok := r.reg.Get(id)
	if !ok || !rec.HasPublicKey {
		return identity.Fingerprint{}, false
	}
	return identity.ComputeFingerprint(rec.PublicKey), true
}

// blacklistAdapter implements router.Blacklist over the keystore's
// persisted blacklist table (§13).
type blacklistAdapter struct {
	keys keystore.Store
}

func (b blacklistAdapter) IsBlacklisted(fp identity.Fingerprint) bool {
	return b.keys.IsBlacklisted([32]byte(fp))
}
