package batch

import (
	"testing"
	"time"
)

func TestDetector_RegisterAndCheckForwardArrived(t *testing.T) {
	d := NewForwardDetector(10*time.Millisecond, 50*time.Millisecond)
	d.Register("u1", "nice post")

	comment, registered, ok := d.CheckForwardArrived("u1")
	if !ok {
		t.Fatal("expected pending wait to be consumed")
	}
	if comment != "nice post" {
		t.Errorf("comment = %q, want %q", comment, "nice post")
	}
	if registered.IsZero() {
		t.Error("expected a registration timestamp")
	}

	// Consuming read is one-shot.
	if _, _, ok := d.CheckForwardArrived("u1"); ok {
		t.Error("second CheckForwardArrived should not consume again")
	}

	// The non-consuming peek still observes the detection.
	peeked, detected := d.ForwardStatus("u1")
	if !detected || peeked != "nice post" {
		t.Errorf("ForwardStatus = (%q, %v), want (%q, true)", peeked, detected, "nice post")
	}

	d.CancelWait("u1")
	if d.InWaitPeriod("u1") {
		t.Error("entry should be gone after CancelWait")
	}
}

func TestDetector_NoDetectionWithoutForward(t *testing.T) {
	d := NewForwardDetector(10*time.Millisecond, 50*time.Millisecond)
	d.Register("u1", "just a note")

	if _, detected := d.ForwardStatus("u1"); detected {
		t.Error("no forward arrived, status should not report detection")
	}
	if _, _, ok := d.CheckForwardArrived("u2"); ok {
		t.Error("unknown user should have no pending wait")
	}
}

func TestDetector_RegisterOverwrites(t *testing.T) {
	d := NewForwardDetector(10*time.Millisecond, 50*time.Millisecond)
	d.Register("u1", "first")
	d.Register("u1", "second")

	comment, _, ok := d.CheckForwardArrived("u1")
	if !ok || comment != "second" {
		t.Errorf("got (%q, %v), want last-write-wins %q", comment, ok, "second")
	}
}

func TestDetector_Stage2Window(t *testing.T) {
	d := NewForwardDetector(5*time.Millisecond, 40*time.Millisecond)
	d.Register("u1", "slow note")

	if d.WithinStage2Window("u1") {
		t.Error("stage 2 not entered yet")
	}

	d.EnterStage2("u1")
	if !d.WithinStage2Window("u1") {
		t.Error("should be inside stage 2 window right after entering")
	}

	time.Sleep(60 * time.Millisecond)
	if d.WithinStage2Window("u1") {
		t.Error("stage 2 window should have elapsed")
	}
}

func TestDetector_EnterStage2WithoutEntry(t *testing.T) {
	d := NewForwardDetector(5*time.Millisecond, 40*time.Millisecond)
	d.EnterStage2("ghost")
	if d.WithinStage2Window("ghost") {
		t.Error("no entry was registered")
	}
}

func TestDetector_SweepStale(t *testing.T) {
	d := NewForwardDetector(5*time.Millisecond, 40*time.Millisecond)
	d.Register("u1", "abandoned")
	time.Sleep(2 * time.Millisecond)

	if removed := d.SweepStale(time.Hour); removed != 0 {
		t.Errorf("fresh entry swept: removed=%d", removed)
	}
	if removed := d.SweepStale(0); removed != 1 {
		t.Errorf("stale entry not swept: removed=%d", removed)
	}
	if d.InWaitPeriod("u1") {
		t.Error("entry should be gone after sweep")
	}
}

func TestDetector_Stats(t *testing.T) {
	d := NewForwardDetector(time.Second, 5*time.Second)
	d.Register("u1", "a")
	d.Register("u2", "b")

	stats := d.Stats()
	if stats.PendingWaits != 2 {
		t.Errorf("PendingWaits = %d, want 2", stats.PendingWaits)
	}
	if stats.Stage1WaitMS != 1000 || stats.Stage2WaitMS != 5000 {
		t.Errorf("wait config = (%d, %d), want (1000, 5000)", stats.Stage1WaitMS, stats.Stage2WaitMS)
	}
}
