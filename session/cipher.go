/*
File Name:  cipher.go

Noise cipher suite selection. §12 fixes Noise_XX_25519_AESGCM_SHA256 as the
only suite negotiated on the wire today; the ChaChaPoly entry is kept in the
table, unused by DefaultSuite, the way awenaw-wireguard-go's device package
structures its noise construction around a single selected suite while
leaving the shape open for another.
*/

package session

import "github.com/flynn/noise"

// SuiteName identifies a cipher suite table entry.
type SuiteName int

const (
	SuiteAESGCMSHA256 SuiteName = iota
	SuiteChaChaPolyBLAKE2s
)

var suiteTable = map[SuiteName]noise.CipherSuite{
	SuiteAESGCMSHA256:      noise.NewCipherSuite(noise.DH25519, noise.CipherAESGCM, noise.HashSHA256),
	SuiteChaChaPolyBLAKE2s: noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s),
}

// DefaultSuiteName is the suite every new handshake uses.
const DefaultSuiteName = SuiteAESGCMSHA256

// CipherSuite returns the noise.CipherSuite for name.
func CipherSuite(name SuiteName) noise.CipherSuite {
	return suiteTable[name]
}

// HandshakePattern is fixed to Noise XX (§4.3, §4.5).
var HandshakePattern = noise.HandshakeXX
