/*
File Name:  fragment.go

Fragmenter (C6): splits a serialized packet too large for the effective
link MTU into numbered chunks, and Assembler reassembles them on the far
side. Grounded on the teacher's sequence-cache idiom (a bounded map guarded
by a mutex with a background expiry sweep) repurposed for reassembly
buffers instead of duplicate-message suppression.
*/

package fragment

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"

	"github.com/bitchat-mesh/meshcore/errtype"
)

// FragmentIDSize is the wire width of a fragment's correlation ID (§4.6).
const FragmentIDSize = 4

// ReassemblyTimeout is how long an incomplete FragmentAssembly is kept
// before being evicted (§4.6, §3).
const ReassemblyTimeout = 30 * time.Second

// Conservative MTUs per transport kind (§4.6).
const (
	MTUBLE          = 500
	MTULocalDefault = 60 * 1024
)

var (
	ErrTotalMismatch  = errors.New("fragment: total part count disagrees between fragments")
	ErrIndexOutOfRange = errors.New("fragment: index >= total")
	ErrNoParts        = errors.New("fragment: payload produces zero parts")
)

// Fragment is one chunk of a fragmented packet.
type Fragment struct {
	FragmentID [FragmentIDSize]byte
	Index      uint16
	Total      uint16
	Chunk      []byte
}

// Split breaks payload into fragments of at most chunkSize bytes each. A
// payload that already fits in one chunk still yields a single Fragment
// (callers only invoke Split once MTU is already exceeded, per §4.6).
func Split(payload []byte, chunkSize int) ([]Fragment, error) {
	if chunkSize <= 0 {
		return nil, errors.New("fragment: chunkSize must be positive")
	}

	total := (len(payload) + chunkSize - 1) / chunkSize
	if total == 0 {
		return nil, ErrNoParts
	}
	if total > int(^uint16(0)) {
		return nil, errors.New("fragment: payload requires too many parts")
	}

	var fragmentID [FragmentIDSize]byte
	if _, err := rand.Read(fragmentID[:]); err != nil {
		return nil, err
	}

	fragments := make([]Fragment, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := make([]byte, end-start)
		copy(chunk, payload[start:end])
		fragments = append(fragments, Fragment{
			FragmentID: fragmentID,
			Index:      uint16(i),
			Total:      uint16(total),
			Chunk:      chunk,
		})
	}

	return fragments, nil
}

// EncodeFragment serializes a Fragment's header+chunk to wire bytes.
func EncodeFragment(f *Fragment) []byte {
	out := make([]byte, 0, FragmentIDSize+2+2+len(f.Chunk))
	out = append(out, f.FragmentID[:]...)
	var idx, total [2]byte
	binary.BigEndian.PutUint16(idx[:], f.Index)
	binary.BigEndian.PutUint16(total[:], f.Total)
	out = append(out, idx[:]...)
	out = append(out, total[:]...)
	out = append(out, f.Chunk...)
	return out
}

// DecodeFragment parses wire bytes into a Fragment.
func DecodeFragment(raw []byte) (*Fragment, error) {
	const headerLen = FragmentIDSize + 2 + 2
	if len(raw) < headerLen {
		return nil, errtype.New(errtype.Parse, "fragment.DecodeFragment", errors.New("fragment: buffer too short"))
	}

	f := &Fragment{}
	copy(f.FragmentID[:], raw[0:FragmentIDSize])
	f.Index = binary.BigEndian.Uint16(raw[FragmentIDSize : FragmentIDSize+2])
	f.Total = binary.BigEndian.Uint16(raw[FragmentIDSize+2 : headerLen])
	if f.Index >= f.Total {
		return nil, errtype.New(errtype.Parse, "fragment.DecodeFragment", ErrIndexOutOfRange)
	}
	f.Chunk = append([]byte(nil), raw[headerLen:]...)

	return f, nil
}
