/*
File Name:  sink.go

Sink is a subscribable multi-writer, grounded verbatim on the teacher's
Filter.go multiWriter: writes fan out to every subscribed io.Writer, and no
single subscriber's error stops delivery to the others. Used so a host
application can still tap raw log output even though structured logging
goes through zap by default (§10).
*/

package meshcore

import (
	"io"
	"sync"

	"github.com/google/uuid"
)

// Sink duplicates every Write to all of its subscribers.
type Sink struct {
	mu      sync.Mutex
	writers map[uuid.UUID]io.Writer
}

func newSink() *Sink {
	return &Sink{writers: make(map[uuid.UUID]io.Writer)}
}

// Subscribe adds writer to the fan-out set and returns a handle for
// Unsubscribe.
func (s *Sink) Subscribe(writer io.Writer) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.writers[id] = writer
	return id
}

// Unsubscribe removes a previously subscribed writer.
func (s *Sink) Unsubscribe(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.writers, id)
}

// Write implements io.Writer, fanning p out to every subscriber. It never
// returns an error: a failing subscriber does not stop delivery to others.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.writers {
		_, _ = w.Write(p)
	}
	return len(p), nil
}
