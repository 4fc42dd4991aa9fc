/*
File Name:  delivery.go

Delivery tracker (C12): per-outbound-private-message lifecycle state and
retry scheduling (§4.12). New code in the teacher's idiom (RWMutex-guarded
map keyed by message ID, background sweep for timeouts), mirroring the
bounded-map-plus-sweep shape used throughout this module (router.Seen,
fragment.Assembler) rather than the teacher's own blockchain/transaction
state machine, which tracks an entirely different lifecycle.
*/

package delivery

import (
	"sync"
	"time"

	"github.com/bitchat-mesh/meshcore/transportmgr"
)

// State is a point in the delivery lifecycle (§4.12).
type State int

const (
	StateSending State = iota
	StateSent
	StateDelivered
	StateRead
	StatePartiallyDelivered
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateSent:
		return "sent"
	case StateDelivered:
		return "delivered"
	case StateRead:
		return "read"
	case StatePartiallyDelivered:
		return "partially_delivered"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StuckSendingTimeout is how long a message may remain in Sending before it
// is escalated to Failed (§4.12).
const StuckSendingTimeout = 5 * time.Minute

// MinAckTimeout is the floor on ack-timeout regardless of observed RTT
// (§4.12: "max(5s, 2 * observed path RTT)").
const MinAckTimeout = 5 * time.Second

// retrySchedule is the exponential backoff between retries, in seconds,
// before the urgency budget's max-retry cap is applied (§4.12).
var retrySchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
}

// Record tracks one outbound private message.
type Record struct {
	MessageID string
	PeerID    [8]byte
	Urgency   transportmgr.Urgency

	mu         sync.Mutex
	state      State
	reached    int
	total      int
	sentAt     time.Time
	lastRetry  time.Time
	retryCount int
	rtt        time.Duration
	failReason string
}

func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// AckTimeout is max(MinAckTimeout, 2*observed RTT) (§4.12).
func (r *Record) AckTimeout() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := 2 * r.rtt; d > MinAckTimeout {
		return d
	}
	return MinAckTimeout
}

// NextRetryDelay returns the backoff before the next retry, bounded by the
// urgency budget's max retry count, or false if retries are exhausted.
func (r *Record) NextRetryDelay() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	budget := transportmgr.Budget(r.Urgency)
	if r.retryCount >= budget.MaxRetries {
		return 0, false
	}
	idx := r.retryCount
	if idx >= len(retrySchedule) {
		idx = len(retrySchedule) - 1
	}
	return retrySchedule[idx], true
}

// Tracker owns every in-flight delivery Record.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*Record

	sweepStop chan struct{}
}

// NewTracker starts a background sweep that escalates stuck-in-Sending
// messages to Failed every sweepInterval.
func NewTracker(sweepInterval time.Duration) *Tracker {
	t := &Tracker{
		records:   make(map[string]*Record),
		sweepStop: make(chan struct{}),
	}
	go t.sweepLoop(sweepInterval)
	return t
}

func (t *Tracker) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweep(time.Now())
		case <-t.sweepStop:
			return
		}
	}
}

func (t *Tracker) sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range t.records {
		rec.mu.Lock()
		if rec.state == StateSending && now.Sub(rec.sentAt) > StuckSendingTimeout {
			rec.state = StateFailed
			rec.failReason = "stuck in sending beyond timeout"
		}
		rec.mu.Unlock()
	}
}

func (t *Tracker) Stop() { close(t.sweepStop) }

// Begin starts tracking a new outbound message in the Sending state.
func (t *Tracker) Begin(messageID string, peerID [8]byte, urgency transportmgr.Urgency, now time.Time) *Record {
	rec := &Record{
		MessageID: messageID,
		PeerID:    peerID,
		Urgency:   urgency,
		state:     StateSending,
		sentAt:    now,
	}
	t.mu.Lock()
	t.records[messageID] = rec
	t.mu.Unlock()
	return rec
}

func (t *Tracker) Get(messageID string) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[messageID]
	return rec, ok
}

// Snapshot is a read-only view of a Record for introspection.
type Snapshot struct {
	MessageID string
	PeerID    [8]byte
	State     State
	Reached   int
	Total     int
}

// Snapshot returns a point-in-time view of every tracked message, for
// controlapi's delivery status endpoint.
func (t *Tracker) Snapshot() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Snapshot, 0, len(t.records))
	for _, rec := range t.records {
		rec.mu.Lock()
		out = append(out, Snapshot{
			MessageID: rec.MessageID,
			PeerID:    rec.PeerID,
			State:     rec.state,
			Reached:   rec.reached,
			Total:     rec.total,
		})
		rec.mu.Unlock()
	}
	return out
}

// MarkSent transitions Sending -> Sent on a successful on-wire send
// (§4.12).
func (t *Tracker) MarkSent(messageID string, rtt time.Duration) {
	rec, ok := t.Get(messageID)
	if !ok {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state == StateSending {
		rec.state = StateSent
		rec.rtt = rtt
	}
}

// MarkDelivered transitions Sent -> Delivered on a DeliveredPayload ack
// (§4.12).
func (t *Tracker) MarkDelivered(messageID string) {
	rec, ok := t.Get(messageID)
	if !ok {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state == StateSent || rec.state == StatePartiallyDelivered {
		rec.state = StateDelivered
	}
}

// MarkRead transitions Delivered -> Read on a ReadReceipt (§4.12).
func (t *Tracker) MarkRead(messageID string) {
	rec, ok := t.Get(messageID)
	if !ok {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state == StateDelivered {
		rec.state = StateRead
	}
}

// MarkFanoutAck records one recipient's ack for a group send, transitioning
// to Delivered once every recipient has acked (§4.12 "fanout acks (group)").
func (t *Tracker) MarkFanoutAck(messageID string, total int) {
	rec, ok := t.Get(messageID)
	if !ok {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.total = total
	rec.reached++
	if rec.reached >= rec.total {
		rec.state = StateDelivered
	} else {
		rec.state = StatePartiallyDelivered
	}
}

// Fanout returns the (reached, total) counters for a group send.
func (r *Record) Fanout() (reached, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reached, r.total
}

// RecordRetry increments the retry counter after a retry attempt is sent.
func (t *Tracker) RecordRetry(messageID string, now time.Time) {
	rec, ok := t.Get(messageID)
	if !ok {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.retryCount++
	rec.lastRetry = now
}

// CheckRetries scans every Sent message and returns the IDs whose ack
// deadline has passed and that should be resent now, plus the IDs whose
// retry budget is already exhausted and have been marked Failed as a side
// effect (§4.12's ack-timeout retry loop). A Sent message's first deadline
// is AckTimeout; later ones follow NextRetryDelay's exponential schedule.
// The caller is responsible for actually resending and calling RecordRetry.
func (t *Tracker) CheckRetries(now time.Time) (retry []string, failed []string) {
	t.mu.Lock()
	candidates := make([]*Record, 0, len(t.records))
	for _, rec := range t.records {
		rec.mu.Lock()
		if rec.state == StateSent {
			candidates = append(candidates, rec)
		}
		rec.mu.Unlock()
	}
	t.mu.Unlock()

	for _, rec := range candidates {
		delay, ok := rec.NextRetryDelay()
		if !ok {
			rec.mu.Lock()
			rec.state = StateFailed
			rec.failReason = "ack retry budget exhausted"
			id := rec.MessageID
			rec.mu.Unlock()
			failed = append(failed, id)
			continue
		}

		wait := delay
		if rec.retryCount == 0 {
			if ackWait := rec.AckTimeout(); ackWait > wait {
				wait = ackWait
			}
		}

		rec.mu.Lock()
		since := rec.sentAt
		if !rec.lastRetry.IsZero() {
			since = rec.lastRetry
		}
		due := now.Sub(since) >= wait
		id := rec.MessageID
		rec.mu.Unlock()

		if due {
			retry = append(retry, id)
		}
	}
	return retry, failed
}

// MarkFailed transitions any state to Failed, e.g. on retry exhaustion
// (§4.12).
func (t *Tracker) MarkFailed(messageID, reason string) {
	rec, ok := t.Get(messageID)
	if !ok {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.state = StateFailed
	rec.failReason = reason
}

func (r *Record) FailReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failReason
}
