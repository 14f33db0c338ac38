package batch

import (
	"context"
	"sync"
	"time"

	"github.com/packratbot/packrat/internal/channel"
	"github.com/packratbot/packrat/internal/pkg/logs"
	"github.com/packratbot/packrat/internal/pkg/metrics"
)

const (
	// DefaultWindow is the trailing idle window after which an open batch
	// is finalized.
	DefaultWindow = 200 * time.Millisecond
	// DefaultMaxBatchSize caps attachment items per batch; the next item
	// starts a fresh batch.
	DefaultMaxBatchSize = 100
	// DefaultMaxLocks bounds the per-conversation lock pool.
	DefaultMaxLocks = 100

	// lockSweepEvery finalized batches, locks with no open batch are dropped.
	lockSweepEvery = 100
)

// Handler receives one finalized batch. mergedCaption is empty when the
// batch collected no text. Errors are logged by the aggregator and never
// block cleanup.
type Handler func(ctx context.Context, items []*channel.Message, mergedCaption string, source *SourceInfo, forwarded bool) error

type Config struct {
	Window       time.Duration
	MaxBatchSize int
	MaxLocks     int
}

func (c *Config) normalize() {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.MaxLocks <= 0 {
		c.MaxLocks = DefaultMaxLocks
	}
}

// batchTimer is the single live deadline for one batch id. seq values come
// from an aggregator-wide counter; a fired callback whose seq is stale is a
// no-op, which keeps "reschedule cancels the previous timer" airtight even
// when Timer.Stop races an already-queued fire.
type batchTimer struct {
	timer *time.Timer
	seq   uint64
}

// Aggregator routes each inbound message to the correct batch or dispatches
// it immediately, enforces the trailing idle window, and guarantees each
// batch reaches the handler exactly once.
type Aggregator struct {
	cfg      Config
	handler  Handler
	detector *ForwardDetector

	mu          sync.Mutex
	batches     map[string]*Batch // chat id -> open batch
	mediaGroups map[string]*Batch // media group id -> open batch
	locks       map[string]*sync.Mutex
	timers      map[string]*batchTimer
	seqCounter  uint64
	processed   int // finalized batches since the last lock sweep
}

func NewAggregator(cfg Config, detector *ForwardDetector, handler Handler) *Aggregator {
	cfg.normalize()
	logs.Info("[aggregator] initialized: window=%s, max_batch=%d, max_locks=%d",
		cfg.Window, cfg.MaxBatchSize, cfg.MaxLocks)
	return &Aggregator{
		cfg:         cfg,
		handler:     handler,
		detector:    detector,
		batches:     make(map[string]*Batch),
		mediaGroups: make(map[string]*Batch),
		locks:       make(map[string]*sync.Mutex),
		timers:      make(map[string]*batchTimer),
	}
}

// Process routes one inbound message. It returns quickly: batched messages
// are delivered later by the idle timer, plain texts outside any window are
// dispatched synchronously before returning.
func (a *Aggregator) Process(ctx context.Context, m *channel.Message) error {
	lock := a.chatLock(m.ChatID)
	lock.Lock()
	defer lock.Unlock()

	if m.MediaGroupID != "" {
		a.handleMediaGroup(ctx, m)
		return nil
	}
	return a.handleRegular(ctx, m)
}

// chatLock returns the mutex serializing batch decisions for one chat,
// creating it on demand. When the pool is full one arbitrary entry is
// evicted; a lock for an evicted id is simply recreated on next use.
func (a *Aggregator) chatLock(chatID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	if lock, ok := a.locks[chatID]; ok {
		return lock
	}

	if len(a.locks) >= a.cfg.MaxLocks {
		for victim := range a.locks {
			delete(a.locks, victim)
			logs.Debug("[aggregator] lock pool full, evicted %s", victim)
			break
		}
	}

	lock := &sync.Mutex{}
	a.locks[chatID] = lock
	metrics.CachedLocks.Set(float64(len(a.locks)))
	return lock
}

// handleMediaGroup folds an album item into its media-group batch. The
// media-group id is an authoritative batching scope: membership ignores
// inter-arrival spacing as long as the idle timer has not fired.
func (a *Aggregator) handleMediaGroup(ctx context.Context, m *channel.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.mediaGroups[m.MediaGroupID]
	if !ok {
		b = newBatch(m.MediaGroupID, a.detector)
		a.mediaGroups[m.MediaGroupID] = b
		logs.Debug("[aggregator] created media group batch %s", m.MediaGroupID)
	}
	b.AddMessage(m)

	a.scheduleLocked(ctx, m.MediaGroupID, true)
	a.updateGaugesLocked()
}

// handleRegular folds the message into the chat's open batch when it is
// within the idle window and the batch has room, starts a new batch for
// attachment-bearing messages, and dispatches loose plain text immediately
// as a singleton.
func (a *Aggregator) handleRegular(ctx context.Context, m *channel.Message) error {
	a.mu.Lock()

	if b, ok := a.batches[m.ChatID]; ok && !b.LastTime().IsZero() {
		gap := m.Timestamp.Sub(b.LastTime())
		if gap <= a.cfg.Window && b.Size() < a.cfg.MaxBatchSize {
			// Covers plain text arriving inside the window too: it becomes
			// a caption of the open batch instead of a singleton dispatch.
			b.AddMessage(m)
			logs.Debug("[aggregator] folded into batch %s, size=%d", m.ChatID, b.Size())
			a.scheduleLocked(ctx, m.ChatID, false)
			a.updateGaugesLocked()
			a.mu.Unlock()
			return nil
		}
	}

	if m.HasAttachment() {
		// An open batch the new message cannot extend (full, or outpaced by
		// timestamp skew) can never gain more members; flush it now instead
		// of orphaning it when its timer is superseded.
		displaced := a.removeBatchLocked(m.ChatID, false)

		b := newBatch("", a.detector)
		b.AddMessage(m)
		a.batches[m.ChatID] = b
		logs.Debug("[aggregator] started new batch %s", m.ChatID)
		a.scheduleLocked(ctx, m.ChatID, false)
		a.updateGaugesLocked()
		a.mu.Unlock()

		if displaced != nil {
			a.deliver(ctx, m.ChatID, displaced, "conversation")
		}
		return nil
	}

	a.mu.Unlock()

	// Plain text outside any window: dispatch as a singleton right away.
	// No batch or timer state is created for it.
	logs.Debug("[aggregator] dispatching single message in chat %s", m.ChatID)
	source := SourceFromOrigin(m.ForwardOrigin)
	forwarded := m.ForwardOrigin != nil
	if err := a.handler(ctx, []*channel.Message{m}, "", source, forwarded); err != nil {
		metrics.BatchFinalizeErrors.Inc()
		logs.CtxError(ctx, "[aggregator] singleton handler failed for chat %s: %v", m.ChatID, err)
		return nil
	}
	metrics.BatchesFinalized.WithLabelValues("singleton").Inc()
	return nil
}

// scheduleLocked (re)arms the idle timer for batchID. Must be called with
// a.mu held. At most one live deadline exists per batch id: rescheduling
// issues a fresh sequence so any previously armed fire becomes stale.
func (a *Aggregator) scheduleLocked(ctx context.Context, batchID string, isMediaGroup bool) {
	bt, ok := a.timers[batchID]
	if !ok {
		bt = &batchTimer{}
		a.timers[batchID] = bt
	}

	a.seqCounter++
	seq := a.seqCounter
	bt.seq = seq
	if bt.timer != nil {
		bt.timer.Stop()
	}

	// The finalize goroutine must outlive the inbound request context.
	fireCtx := context.WithoutCancel(ctx)
	bt.timer = time.AfterFunc(a.cfg.Window, func() {
		a.finalize(fireCtx, batchID, seq, isMediaGroup)
	})
}

// removeBatchLocked pops the batch and invalidates its timer. Must be
// called with a.mu held. Returns nil when no batch is open for the id.
func (a *Aggregator) removeBatchLocked(batchID string, isMediaGroup bool) *Batch {
	var b *Batch
	if isMediaGroup {
		b = a.mediaGroups[batchID]
		delete(a.mediaGroups, batchID)
	} else {
		b = a.batches[batchID]
		delete(a.batches, batchID)
	}
	if b == nil {
		return nil
	}

	if bt, ok := a.timers[batchID]; ok {
		if bt.timer != nil {
			bt.timer.Stop()
		}
		delete(a.timers, batchID)
	}
	return b
}

// finalize runs when a batch's idle window elapses without a reschedule.
// State is removed before the handler runs so a failing handler can never
// leave the maps inconsistent and a message arriving mid-handler starts a
// fresh batch.
func (a *Aggregator) finalize(ctx context.Context, batchID string, seq uint64, isMediaGroup bool) {
	a.mu.Lock()

	bt, ok := a.timers[batchID]
	if !ok || bt.seq != seq {
		// A reschedule or displacement won the race; this deadline is stale.
		a.mu.Unlock()
		return
	}

	b := a.removeBatchLocked(batchID, isMediaGroup)

	a.processed++
	if a.processed >= lockSweepEvery {
		a.processed = 0
		a.sweepLocksLocked()
	}
	a.updateGaugesLocked()
	a.mu.Unlock()

	if b == nil {
		return
	}

	kind := "conversation"
	if isMediaGroup {
		kind = "media_group"
	}
	a.deliver(ctx, batchID, b, kind)
}

// deliver invokes the handler with a finalized batch. Handler errors are
// logged with batch context and swallowed; archiving is best-effort and the
// batch is already purged from all maps.
func (a *Aggregator) deliver(ctx context.Context, batchID string, b *Batch, kind string) {
	caption, _ := b.MergedCaption()
	sourceName := "direct"
	if b.Source() != nil {
		sourceName = b.Source().Name
	}
	logs.CtxInfo(ctx, "[aggregator] finalizing batch %s: size=%d, captions=%d, source=%s, forwarded=%v",
		batchID, b.Size(), b.CaptionCount(), sourceName, b.Forwarded())

	if err := a.handler(ctx, b.Items(), caption, b.Source(), b.Forwarded()); err != nil {
		metrics.BatchFinalizeErrors.Inc()
		logs.CtxError(ctx, "[aggregator] handler failed for batch %s (size=%d, source=%s): %v",
			batchID, b.Size(), sourceName, err)
	}
	metrics.BatchesFinalized.WithLabelValues(kind).Inc()
}

// sweepLocksLocked drops lock entries whose chat has no open batch. Must be
// called with a.mu held.
func (a *Aggregator) sweepLocksLocked() {
	removed := 0
	for chatID := range a.locks {
		if _, open := a.batches[chatID]; open {
			continue
		}
		if _, open := a.mediaGroups[chatID]; open {
			continue
		}
		delete(a.locks, chatID)
		removed++
	}
	if removed > 0 {
		logs.Debug("[aggregator] swept %d inactive locks, %d remaining", removed, len(a.locks))
	}
}

func (a *Aggregator) updateGaugesLocked() {
	metrics.OpenBatches.Set(float64(len(a.batches)))
	metrics.OpenMediaGroups.Set(float64(len(a.mediaGroups)))
	metrics.LiveTimers.Set(float64(len(a.timers)))
	metrics.CachedLocks.Set(float64(len(a.locks)))
}

type Stats struct {
	OpenBatches     int
	OpenMediaGroups int
	LiveTimers      int
	CachedLocks     int
}

// Stats is a point-in-time snapshot for observability; it mutates nothing.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		OpenBatches:     len(a.batches),
		OpenMediaGroups: len(a.mediaGroups),
		LiveTimers:      len(a.timers),
		CachedLocks:     len(a.locks),
	}
}
