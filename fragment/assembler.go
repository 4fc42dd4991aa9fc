/*
File Name:  assembler.go

Assembler reassembles fragments keyed by (senderID, fragmentID), grounded on
the teacher's initMessageSequence bounded-map-with-cleanup-goroutine idiom:
a mutex-guarded map plus a ticking background sweep that evicts anything
past its deadline, rather than a timer-per-entry.
*/

package fragment

import (
	"sync"
	"time"
)

// assemblyKey identifies one in-flight reassembly.
type assemblyKey struct {
	senderID   [8]byte
	fragmentID [FragmentIDSize]byte
}

// assembly is one packet's in-progress reassembly state (§3:
// "fragmentID -> {totalParts, received:bitmap, buffer, deadline}").
type assembly struct {
	total    uint16
	received map[uint16][]byte
	deadline time.Time
}

func (a *assembly) isComplete() bool {
	return len(a.received) == int(a.total)
}

func (a *assembly) assemble() []byte {
	out := make([]byte, 0)
	for i := uint16(0); i < a.total; i++ {
		out = append(out, a.received[i]...)
	}
	return out
}

// Assembler reassembles fragmented packets. Safe for concurrent use.
type Assembler struct {
	mu         sync.Mutex
	assemblies map[assemblyKey]*assembly
	timeout    time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewAssembler starts an Assembler with a background sweep that evicts
// assemblies past their deadline every sweepInterval.
func NewAssembler(sweepInterval time.Duration) *Assembler {
	a := &Assembler{
		assemblies: make(map[assemblyKey]*assembly),
		timeout:    ReassemblyTimeout,
		stopCh:     make(chan struct{}),
	}
	go a.sweepLoop(sweepInterval)
	return a
}

func (a *Assembler) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case now := <-ticker.C:
			a.sweep(now)
		}
	}
}

func (a *Assembler) sweep(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, asm := range a.assemblies {
		if now.After(asm.deadline) {
			delete(a.assemblies, key)
		}
	}
}

// Stop halts the background sweep goroutine.
func (a *Assembler) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// Add feeds one fragment into reassembly. It returns the reassembled
// payload and true once every part has arrived; duplicate fragments are
// silently ignored and out-of-order arrival is supported (§4.6).
func (a *Assembler) Add(senderID [8]byte, f *Fragment) (payload []byte, complete bool, err error) {
	key := assemblyKey{senderID: senderID, fragmentID: f.FragmentID}

	a.mu.Lock()
	defer a.mu.Unlock()

	asm, ok := a.assemblies[key]
	if !ok {
		asm = &assembly{
			total:    f.Total,
			received: make(map[uint16][]byte),
			deadline: time.Now().Add(a.timeout),
		}
		a.assemblies[key] = asm
	}

	if asm.total != f.Total {
		return nil, false, ErrTotalMismatch
	}

	if _, dup := asm.received[f.Index]; dup {
		return nil, false, nil // duplicate fragment, ignored
	}
	asm.received[f.Index] = f.Chunk

	if !asm.isComplete() {
		return nil, false, nil
	}

	delete(a.assemblies, key)
	return asm.assemble(), true, nil
}

// Pending returns the number of in-flight assemblies, for metrics/tests.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.assemblies)
}
