/*
File Name:  channel.go

Legacy per-channel password keys (§4.3). A channel key is derived from a
human password with PBKDF2-HMAC-SHA256 and published as a commitment so
joining peers can verify they derived the same key before activating it,
without ever transmitting the password or key itself.
*/

package meshcrypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// ChannelKeyIterations is the minimum PBKDF2 iteration count the spec
// requires (§4.3: "iter >= 100000").
const ChannelKeyIterations = 100000

// ChannelKeySalt builds the salt for a channel's key derivation:
// "bitchat-" || channelName.
func ChannelKeySalt(channelName string) []byte {
	return append([]byte("bitchat-"), []byte(channelName)...)
}

// DeriveChannelKey derives the 32-byte symmetric key for a password-
// protected channel.
func DeriveChannelKey(password, channelName string) [32]byte {
	salt := ChannelKeySalt(channelName)
	derived := pbkdf2.Key([]byte(password), salt, ChannelKeyIterations, 32, sha256.New)

	var key [32]byte
	copy(key[:], derived)
	return key
}

// ChannelKeyCommitment returns SHA-256(key), published so joining peers can
// verify they derived the same key before activating it.
func ChannelKeyCommitment(key [32]byte) [32]byte {
	return sha256.Sum256(key[:])
}

// VerifyChannelKeyCommitment reports whether key matches the published
// commitment.
func VerifyChannelKeyCommitment(key [32]byte, commitment [32]byte) bool {
	got := ChannelKeyCommitment(key)
	return got == commitment
}
