package meshcore

import "encoding/hex"

func hexPeerID(id [8]byte) string {
	return hex.EncodeToString(id[:])
}
