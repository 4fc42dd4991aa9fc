/*
File Name:  keys.go

Key-agreement and signing primitives. One function per primitive, mirroring
the teacher's Secp256k1NewPrivateKey shape, but fixed to the curves the
protocol specifies: X25519 for key agreement, Ed25519 for signing.
*/

package meshcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/curve25519"
)

// ErrInvalidPublicKey is returned when a peer-supplied public key is the
// wrong length or is a low-order/identity point rejected by curve25519.
var ErrInvalidPublicKey = errors.New("meshcrypto: invalid public key")

// X25519KeyPair is a static or ephemeral Diffie-Hellman key pair.
type X25519KeyPair struct {
	Private [32]byte
	Public  [32]byte
}

// GenerateX25519KeyPair creates a new X25519 static or ephemeral key pair.
func GenerateX25519KeyPair() (kp X25519KeyPair, err error) {
	if _, err = rand.Read(kp.Private[:]); err != nil {
		return kp, err
	}

	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return kp, err
	}
	copy(kp.Public[:], pub)

	return kp, nil
}

// X25519PublicKey recomputes the public key for a private scalar, used when
// reloading a static keypair from persisted key material.
func X25519PublicKey(privateKey [32]byte) (publicKey [32]byte, err error) {
	pub, err := curve25519.X25519(privateKey[:], curve25519.Basepoint)
	if err != nil {
		return publicKey, err
	}
	copy(publicKey[:], pub)
	return publicKey, nil
}

// X25519SharedSecret computes the Diffie-Hellman shared secret between a
// local private key and a remote public key.
func X25519SharedSecret(privateKey, peerPublicKey [32]byte) (secret [32]byte, err error) {
	shared, err := curve25519.X25519(privateKey[:], peerPublicKey[:])
	if err != nil {
		return secret, ErrInvalidPublicKey
	}
	copy(secret[:], shared)
	return secret, nil
}

// Ed25519KeyPair is a long-term signing key pair.
type Ed25519KeyPair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// GenerateEd25519KeyPair creates a new Ed25519 signing key pair.
func GenerateEd25519KeyPair() (kp Ed25519KeyPair, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return kp, err
	}
	return Ed25519KeyPair{Private: priv, Public: pub}, nil
}

// Sign signs message with the given Ed25519 private key.
func Sign(privateKey ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(privateKey, message)
}

// Verify reports whether signature is a valid Ed25519 signature of message
// under publicKey.
func Verify(publicKey ed25519.PublicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}
