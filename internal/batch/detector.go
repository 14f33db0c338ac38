package batch

import (
	"sync"
	"time"

	"github.com/packratbot/packrat/internal/pkg/logs"
	"github.com/packratbot/packrat/internal/pkg/metrics"
	"github.com/packratbot/packrat/internal/pkg/utils"
)

const (
	// DefaultStage1Wait is the short pre-wait applied to every plain text
	// before it is treated as a standalone message.
	DefaultStage1Wait = 1000 * time.Millisecond
	// DefaultStage2Wait bounds how long slow text processing may still be
	// preempted by a late forward.
	DefaultStage2Wait = 5000 * time.Millisecond
)

// waitEntry tracks one sender's pending plain text. At most one entry per
// sender; a newer text overwrites the older one.
type waitEntry struct {
	text            string
	timestamp       time.Time
	waiting         bool
	forwardDetected bool
	stage           int
	stage2Start     time.Time
}

// ForwardDetector disambiguates "standalone text" from "text immediately
// followed by a forwarded post the user is commenting on". It only tracks
// state; the stage-1 delay itself lives in the dispatch entry point.
type ForwardDetector struct {
	stage1Wait time.Duration
	stage2Wait time.Duration

	mu      sync.Mutex
	pending map[string]*waitEntry
	now     func() time.Time
}

func NewForwardDetector(stage1Wait, stage2Wait time.Duration) *ForwardDetector {
	if stage1Wait <= 0 {
		stage1Wait = DefaultStage1Wait
	}
	if stage2Wait <= 0 {
		stage2Wait = DefaultStage2Wait
	}
	logs.Info("[detector] initialized: stage1=%s, stage2=%s", stage1Wait, stage2Wait)
	return &ForwardDetector{
		stage1Wait: stage1Wait,
		stage2Wait: stage2Wait,
		pending:    make(map[string]*waitEntry),
		now:        time.Now,
	}
}

func (d *ForwardDetector) Stage1Wait() time.Duration { return d.stage1Wait }

func (d *ForwardDetector) Stage2Wait() time.Duration { return d.stage2Wait }

// Register stores a stage-1 wait entry for the sender's plain text,
// overwriting any earlier entry (last write wins, no queue).
func (d *ForwardDetector) Register(userID, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[userID]; ok {
		logs.Debug("[detector] overwriting pending wait for user %s", userID)
	}

	d.pending[userID] = &waitEntry{
		text:      text,
		timestamp: d.now(),
		waiting:   true,
		stage:     1,
	}
	metrics.PendingForwardWaits.Set(float64(len(d.pending)))
	logs.Info("[detector] registered text for user %s, entering stage 1 (%s)", userID, d.stage1Wait)
}

// CheckForwardArrived is the consuming read used when a forward arrives
// from the sender: it marks the entry detected, ends the waiting state, and
// returns the captured comment. The entry itself stays until CancelWait so
// that ForwardStatus can still observe the detection.
func (d *ForwardDetector) CheckForwardArrived(userID string) (comment string, registered time.Time, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, exists := d.pending[userID]
	if !exists || !entry.waiting {
		return "", time.Time{}, false
	}

	logs.Info("[detector] forward arrived during wait for user %s, comment: %q",
		userID, utils.Truncate(entry.text, 50))
	entry.forwardDetected = true
	entry.waiting = false
	metrics.ForwardsDetected.Inc()

	return entry.text, entry.timestamp, true
}

// ForwardStatus is the non-consuming peek used after the stage-1 sleep and
// before stage-2 side effects.
func (d *ForwardDetector) ForwardStatus(userID string) (comment string, detected bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, exists := d.pending[userID]
	if !exists || !entry.forwardDetected {
		return "", false
	}
	return entry.text, true
}

// InWaitPeriod reports whether any entry exists for the sender, detected
// or not.
func (d *ForwardDetector) InWaitPeriod(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, exists := d.pending[userID]
	return exists
}

// EnterStage2 marks the start of slow processing for the sender's text.
func (d *ForwardDetector) EnterStage2(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, exists := d.pending[userID]
	if !exists {
		return
	}
	entry.stage = 2
	entry.stage2Start = d.now()
	logs.Info("[detector] user %s entered stage 2 (%s deep wait)", userID, d.stage2Wait)
}

// WithinStage2Window reports whether slow processing is still inside the
// window where a late forward may preempt it.
func (d *ForwardDetector) WithinStage2Window(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, exists := d.pending[userID]
	if !exists || entry.stage != 2 || entry.stage2Start.IsZero() {
		return false
	}
	return d.now().Sub(entry.stage2Start) <= d.stage2Wait
}

// CancelWait removes the sender's entry unconditionally. Called once the
// dispatch path has fully handled the text, whether or not a forward
// preempted it.
func (d *ForwardDetector) CancelWait(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.pending[userID]; exists {
		delete(d.pending, userID)
		metrics.PendingForwardWaits.Set(float64(len(d.pending)))
		logs.Debug("[detector] cancelled wait for user %s", userID)
	}
}

// SweepStale drops entries older than maxAge. Entries are normally cleared
// by CancelWait; maintenance calls this periodically to catch leftovers.
func (d *ForwardDetector) SweepStale(maxAge time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.now().Add(-maxAge)
	removed := 0
	for userID, entry := range d.pending {
		if entry.timestamp.Before(cutoff) {
			delete(d.pending, userID)
			removed++
		}
	}
	if removed > 0 {
		metrics.PendingForwardWaits.Set(float64(len(d.pending)))
		logs.Info("[detector] swept %d stale wait entries", removed)
	}
	return removed
}

type DetectorStats struct {
	PendingWaits int
	Stage1WaitMS int64
	Stage2WaitMS int64
}

func (d *ForwardDetector) Stats() DetectorStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DetectorStats{
		PendingWaits: len(d.pending),
		Stage1WaitMS: d.stage1Wait.Milliseconds(),
		Stage2WaitMS: d.stage2Wait.Milliseconds(),
	}
}
