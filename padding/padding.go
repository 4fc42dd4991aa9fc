/*
File Name:  padding.go

PKCS#7-style random padding to fixed block sizes. Applied to plaintext before
it reaches the AEAD layer in session; never applied to ciphertext.
*/

package padding

import "crypto/rand"

// blockSizes are the fixed plaintext block sizes a message may be padded to
// before encryption, smallest first.
var blockSizes = []int{256, 512, 1024, 2048}

// gcmTagSize is the AES-256-GCM (and ChaChaPoly) authentication tag size,
// reserved when choosing a block so the resulting ciphertext still fits
// the same size class.
const gcmTagSize = 16

// Pad appends random bytes followed by a single length byte so that the
// result is exactly target bytes long. If the gap between len(data) and
// target exceeds what a single length byte can record (255), or target is
// not larger than len(data), data is returned unchanged with no padding.
func Pad(data []byte, target int) ([]byte, error) {
	gap := target - len(data)
	if gap <= 0 || gap > 255 {
		return data, nil
	}

	padded := make([]byte, target)
	copy(padded, data)

	if _, err := rand.Read(padded[len(data) : target-1]); err != nil {
		return nil, err
	}
	padded[target-1] = byte(gap)

	return padded, nil
}

// Unpad reverses Pad. If the trailing length byte does not describe a
// plausible padding run, data is returned unchanged rather than truncated,
// since that indicates data was never padded by Pad in the first place.
func Unpad(data []byte) []byte {
	if len(data) == 0 {
		return data
	}

	n := int(data[len(data)-1])
	if n <= 0 || n > len(data) {
		return data
	}

	return data[:len(data)-n]
}

// ChooseBlock returns the smallest fixed block size that fits length+16
// bytes (room for the AEAD authentication tag). If no fixed size is big
// enough, length is returned unpadded rather than silently growing past
// the largest size class.
func ChooseBlock(length int) int {
	for _, size := range blockSizes {
		if length+gcmTagSize <= size {
			return size
		}
	}
	return length
}
