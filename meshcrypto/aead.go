/*
File Name:  aead.go

Authenticated encryption for the data phase of a session. AES-256-GCM is the
fixed default cipher (see SPEC_FULL.md §12); ChaCha20-Poly1305 is kept as an
alternate cipher-suite table entry, matching how the Noise cipher suite is
selected in session/cipher.go, but is never negotiated automatically.
*/

package meshcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecryptFailed covers any authentication failure during decryption.
// The caller must not branch on the underlying reason (timing side
// channel) and must treat this uniformly as a Crypto-class error (§7).
var ErrDecryptFailed = errors.New("meshcrypto: decryption failed")

// SealAESGCM encrypts plaintext with AES-256-GCM under key using nonce and
// associated data ad, returning ciphertext||tag.
func SealAESGCM(key [32]byte, nonce [12]byte, ad, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce[:], plaintext, ad), nil
}

// OpenAESGCM decrypts and authenticates data previously produced by
// SealAESGCM. Any failure is reported uniformly as ErrDecryptFailed.
func OpenAESGCM(key [32]byte, nonce [12]byte, ad, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, ErrDecryptFailed
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	plaintext, err := gcm.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// SealChaChaPoly encrypts plaintext with ChaCha20-Poly1305, the alternate
// cipher-suite entry (see session/cipher.go).
func SealChaChaPoly(key [32]byte, nonce [12]byte, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], plaintext, ad), nil
}

// OpenChaChaPoly decrypts data previously produced by SealChaChaPoly.
func OpenChaChaPoly(key [32]byte, nonce [12]byte, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, ErrDecryptFailed
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
