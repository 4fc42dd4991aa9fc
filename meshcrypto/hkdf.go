/*
File Name:  hkdf.go

HKDF-SHA256 helpers for key derivation outside the Noise handshake proper
(flynn/noise derives its own handshake keys internally). No other package
of this module calls them: a rekey runs a fresh Noise handshake, and the
keystore stores keys without a wrapping key.
*/

package meshcrypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey runs HKDF-SHA256(secret, salt, info) and fills out with
// len(out) bytes of output key material.
func DeriveKey(secret, salt, info []byte, out []byte) error {
	reader := hkdf.New(sha256.New, secret, salt, info)
	_, err := io.ReadFull(reader, out)
	return err
}

// DeriveKey32 is DeriveKey specialized to a single 32-byte key.
func DeriveKey32(secret, salt, info []byte) (key [32]byte, err error) {
	err = DeriveKey(secret, salt, info, key[:])
	return key, err
}
