package delivery

import (
	"testing"
	"time"

	"github.com/bitchat-mesh/meshcore/transportmgr"
)

func TestLifecycleSendingToSentToDeliveredToRead(t *testing.T) {
	tr := NewTracker(time.Hour)
	defer tr.Stop()

	now := time.Now()
	rec := tr.Begin("m1", [8]byte{1}, transportmgr.Normal, now)
	if rec.State() != StateSending {
		t.Fatalf("expected initial state Sending, got %v", rec.State())
	}

	tr.MarkSent("m1", 100*time.Millisecond)
	if rec.State() != StateSent {
		t.Fatalf("expected Sent, got %v", rec.State())
	}

	tr.MarkDelivered("m1")
	if rec.State() != StateDelivered {
		t.Fatalf("expected Delivered, got %v", rec.State())
	}

	tr.MarkRead("m1")
	if rec.State() != StateRead {
		t.Fatalf("expected Read, got %v", rec.State())
	}
}

func TestFanoutAckTransitionsPartiallyThenFullyDelivered(t *testing.T) {
	tr := NewTracker(time.Hour)
	defer tr.Stop()

	now := time.Now()
	rec := tr.Begin("m2", [8]byte{2}, transportmgr.Normal, now)

	tr.MarkFanoutAck("m2", 3)
	if rec.State() != StatePartiallyDelivered {
		t.Fatalf("expected PartiallyDelivered after first ack, got %v", rec.State())
	}
	reached, total := rec.Fanout()
	if reached != 1 || total != 3 {
		t.Fatalf("expected 1/3 reached, got %d/%d", reached, total)
	}

	tr.MarkFanoutAck("m2", 3)
	tr.MarkFanoutAck("m2", 3)
	if rec.State() != StateDelivered {
		t.Fatalf("expected Delivered once all acks arrive, got %v", rec.State())
	}
}

func TestAckTimeoutFloorsAtMinimum(t *testing.T) {
	tr := NewTracker(time.Hour)
	defer tr.Stop()
	rec := tr.Begin("m3", [8]byte{3}, transportmgr.Normal, time.Now())
	tr.MarkSent("m3", time.Millisecond)

	if got := rec.AckTimeout(); got != MinAckTimeout {
		t.Fatalf("expected ack timeout to floor at %v, got %v", MinAckTimeout, got)
	}
}

func TestAckTimeoutScalesWithRTT(t *testing.T) {
	tr := NewTracker(time.Hour)
	defer tr.Stop()
	rec := tr.Begin("m4", [8]byte{4}, transportmgr.Normal, time.Now())
	tr.MarkSent("m4", 10*time.Second)

	if got := rec.AckTimeout(); got != 20*time.Second {
		t.Fatalf("expected ack timeout 2xRTT=20s, got %v", got)
	}
}

func TestNextRetryDelayRespectsUrgencyBudget(t *testing.T) {
	tr := NewTracker(time.Hour)
	defer tr.Stop()
	rec := tr.Begin("m5", [8]byte{5}, transportmgr.Urgent, time.Now())

	if _, ok := rec.NextRetryDelay(); !ok {
		t.Fatalf("expected first retry to be allowed under urgent budget")
	}
	tr.RecordRetry("m5", time.Now())
	if _, ok := rec.NextRetryDelay(); ok {
		t.Fatalf("expected urgent budget (1 retry) to be exhausted after one retry")
	}
}

func TestCheckRetriesFiresOnceAckTimeoutElapses(t *testing.T) {
	tr := NewTracker(time.Hour)
	defer tr.Stop()

	now := time.Now()
	tr.Begin("m7", [8]byte{7}, transportmgr.Normal, now)
	tr.MarkSent("m7", time.Millisecond)

	retry, failed := tr.CheckRetries(now)
	if len(retry) != 0 || len(failed) != 0 {
		t.Fatalf("expected no retries before ack timeout elapses, got retry=%v failed=%v", retry, failed)
	}

	retry, failed = tr.CheckRetries(now.Add(MinAckTimeout + time.Second))
	if len(failed) != 0 {
		t.Fatalf("expected nothing failed yet, got %v", failed)
	}
	if len(retry) != 1 || retry[0] != "m7" {
		t.Fatalf("expected m7 due for retry, got %v", retry)
	}
}

func TestCheckRetriesMarksFailedOnceBudgetExhausted(t *testing.T) {
	tr := NewTracker(time.Hour)
	defer tr.Stop()

	now := time.Now()
	rec := tr.Begin("m8", [8]byte{8}, transportmgr.Urgent, now)
	tr.MarkSent("m8", time.Millisecond)
	tr.RecordRetry("m8", now)

	_, failed := tr.CheckRetries(now.Add(time.Hour))
	if len(failed) != 1 || failed[0] != "m8" {
		t.Fatalf("expected m8 to be reported failed, got %v", failed)
	}
	if rec.State() != StateFailed {
		t.Fatalf("expected record to be marked Failed, got %v", rec.State())
	}
}

func TestSweepEscalatesStuckSendingToFailed(t *testing.T) {
	tr := &Tracker{records: make(map[string]*Record), sweepStop: make(chan struct{})}
	defer close(tr.sweepStop)

	old := time.Now().Add(-StuckSendingTimeout - time.Minute)
	rec := tr.Begin("m6", [8]byte{6}, transportmgr.Normal, old)

	tr.sweep(time.Now())
	if rec.State() != StateFailed {
		t.Fatalf("expected stuck message to be escalated to Failed, got %v", rec.State())
	}
}
