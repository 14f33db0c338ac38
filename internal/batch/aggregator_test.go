package batch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/packratbot/packrat/internal/channel"
)

type delivery struct {
	items     []*channel.Message
	caption   string
	source    *SourceInfo
	forwarded bool
}

// collector is a Handler that records every finalized batch.
type collector struct {
	mu         sync.Mutex
	deliveries []delivery
	err        error
}

func (c *collector) handle(_ context.Context, items []*channel.Message, caption string, source *SourceInfo, forwarded bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliveries = append(c.deliveries, delivery{items: items, caption: caption, source: source, forwarded: forwarded})
	return c.err
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deliveries)
}

func (c *collector) get(i int) delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deliveries[i]
}

func newTestAggregator(t *testing.T, cfg Config, det *ForwardDetector) (*Aggregator, *collector) {
	t.Helper()
	c := &collector{}
	return NewAggregator(cfg, det, c.handle), c
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestAggregator_MediaGroupDeliveredTogether(t *testing.T) {
	agg, c := newTestAggregator(t, Config{Window: 40 * time.Millisecond}, nil)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 3; i++ {
		m := photoMsg("c1", "u1", "", now.Add(time.Duration(i)*10*time.Millisecond))
		m.ID = fmt.Sprintf("m%d", i)
		m.MediaGroupID = "g1"
		if err := agg.Process(ctx, m); err != nil {
			t.Fatalf("process: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !waitFor(t, time.Second, func() bool { return c.count() == 1 }) {
		t.Fatalf("deliveries = %d, want 1", c.count())
	}

	d := c.get(0)
	if len(d.items) != 3 {
		t.Fatalf("batch size = %d, want 3", len(d.items))
	}
	for i, m := range d.items {
		if m.ID != fmt.Sprintf("m%d", i) {
			t.Errorf("items out of arrival order at %d: %s", i, m.ID)
		}
	}

	stats := agg.Stats()
	if stats.OpenMediaGroups != 0 || stats.LiveTimers != 0 {
		t.Errorf("state not purged after finalize: %+v", stats)
	}
}

func TestAggregator_WindowFoldsConversationBatch(t *testing.T) {
	agg, c := newTestAggregator(t, Config{Window: 60 * time.Millisecond}, nil)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 4; i++ {
		m := photoMsg("c1", "u1", "", now.Add(time.Duration(i)*10*time.Millisecond))
		if err := agg.Process(ctx, m); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if !waitFor(t, time.Second, func() bool { return c.count() == 1 }) {
		t.Fatalf("deliveries = %d, want 1", c.count())
	}
	if got := len(c.get(0).items); got != 4 {
		t.Errorf("batch size = %d, want 4", got)
	}
}

func TestAggregator_GapBeyondWindowStartsNewBatch(t *testing.T) {
	agg, c := newTestAggregator(t, Config{Window: 30 * time.Millisecond}, nil)
	ctx := context.Background()

	now := time.Now()
	if err := agg.Process(ctx, photoMsg("c1", "u1", "", now)); err != nil {
		t.Fatal(err)
	}
	// Second message is outside the first one's window by timestamp.
	second := photoMsg("c1", "u1", "", now.Add(500*time.Millisecond))
	time.Sleep(60 * time.Millisecond) // let the first batch finalize
	if err := agg.Process(ctx, second); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, time.Second, func() bool { return c.count() == 2 }) {
		t.Fatalf("deliveries = %d, want 2", c.count())
	}
}

func TestAggregator_PlainTextSingletonIsSynchronous(t *testing.T) {
	agg, c := newTestAggregator(t, Config{Window: 50 * time.Millisecond}, nil)

	m := textMsg("c1", "u1", "loose note", time.Now())
	if err := agg.Process(context.Background(), m); err != nil {
		t.Fatal(err)
	}

	// Immediate dispatch: the handler ran before Process returned.
	if c.count() != 1 {
		t.Fatalf("deliveries = %d, want 1 (synchronous)", c.count())
	}
	d := c.get(0)
	if len(d.items) != 1 || d.items[0].Text != "loose note" {
		t.Errorf("unexpected singleton delivery: %+v", d)
	}
	if d.caption != "" {
		t.Errorf("singleton caption = %q, want empty", d.caption)
	}

	stats := agg.Stats()
	if stats.OpenBatches != 0 || stats.LiveTimers != 0 {
		t.Errorf("singleton must not create batch/timer state: %+v", stats)
	}
}

func TestAggregator_TextInsideWindowBecomesCaption(t *testing.T) {
	agg, c := newTestAggregator(t, Config{Window: 80 * time.Millisecond}, nil)
	ctx := context.Background()

	now := time.Now()
	if err := agg.Process(ctx, photoMsg("c1", "u1", "", now)); err != nil {
		t.Fatal(err)
	}
	if err := agg.Process(ctx, textMsg("c1", "u1", "album title", now.Add(20*time.Millisecond))); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, time.Second, func() bool { return c.count() == 1 }) {
		t.Fatalf("deliveries = %d, want 1 (text folded in, not dispatched alone)", c.count())
	}
	d := c.get(0)
	if len(d.items) != 1 {
		t.Errorf("batch size = %d, want 1", len(d.items))
	}
	if d.caption != "album title" {
		t.Errorf("caption = %q, want %q", d.caption, "album title")
	}
}

func TestAggregator_MaxBatchSizeRollsOver(t *testing.T) {
	agg, c := newTestAggregator(t, Config{Window: 60 * time.Millisecond, MaxBatchSize: 2}, nil)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 3; i++ {
		m := photoMsg("c1", "u1", "", now.Add(time.Duration(i)*5*time.Millisecond))
		if err := agg.Process(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	if !waitFor(t, time.Second, func() bool { return c.count() == 2 }) {
		t.Fatalf("deliveries = %d, want 2", c.count())
	}

	sizes := []int{len(c.get(0).items), len(c.get(1).items)}
	if sizes[0]+sizes[1] != 3 || (sizes[0] != 2 && sizes[1] != 2) {
		t.Errorf("batch sizes = %v, want a full batch of 2 and a rollover of 1", sizes)
	}
}

func TestAggregator_ForwardCarriesSpeculativeComment(t *testing.T) {
	det := NewForwardDetector(500*time.Millisecond, time.Second)
	agg, c := newTestAggregator(t, Config{Window: 40 * time.Millisecond}, det)

	// Stage 1 registered the user's text; the forward arrives shortly after.
	det.Register("u1", "nice post")
	fwd := forwardedPhoto("c1", "u1", "", &channel.ForwardOrigin{
		Kind: channel.OriginChannel, Name: "Tech News", ID: "100",
	}, time.Now())
	if err := agg.Process(context.Background(), fwd); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, time.Second, func() bool { return c.count() == 1 }) {
		t.Fatalf("deliveries = %d, want 1", c.count())
	}
	d := c.get(0)
	if !d.forwarded {
		t.Error("expected forwarded batch")
	}
	if d.caption != "nice post" {
		t.Errorf("caption = %q, want the speculative comment", d.caption)
	}
	if d.source == nil || d.source.Name != "Tech News" {
		t.Errorf("source = %+v", d.source)
	}

	// The dispatch path's post-sleep peek must still see the detection.
	if _, detected := det.ForwardStatus("u1"); !detected {
		t.Error("ForwardStatus should observe the consumed detection")
	}
}

func TestAggregator_ChatsAreIndependent(t *testing.T) {
	agg, c := newTestAggregator(t, Config{Window: 40 * time.Millisecond}, nil)
	ctx := context.Background()

	now := time.Now()
	var wg sync.WaitGroup
	for _, chat := range []string{"c1", "c2"} {
		wg.Add(1)
		go func(chatID string) {
			defer wg.Done()
			_ = agg.Process(ctx, photoMsg(chatID, "u1", "", now))
		}(chat)
	}
	wg.Wait()

	if !waitFor(t, time.Second, func() bool { return c.count() == 2 }) {
		t.Fatalf("deliveries = %d, want 2 independent batches", c.count())
	}
}

func TestAggregator_ExactlyOnceUnderRescheduling(t *testing.T) {
	agg, c := newTestAggregator(t, Config{Window: 30 * time.Millisecond}, nil)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 5; i++ {
		m := photoMsg("c1", "u1", "", now.Add(time.Duration(i)*5*time.Millisecond))
		if err := agg.Process(ctx, m); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Wait well past several windows: still exactly one delivery.
	time.Sleep(150 * time.Millisecond)
	if c.count() != 1 {
		t.Fatalf("deliveries = %d, want exactly 1", c.count())
	}
	if got := len(c.get(0).items); got != 5 {
		t.Errorf("batch size = %d, want 5 (no message lost or duplicated)", got)
	}
}

func TestAggregator_HandlerErrorDoesNotBlockCleanup(t *testing.T) {
	c := &collector{err: fmt.Errorf("downstream unavailable")}
	agg := NewAggregator(Config{Window: 30 * time.Millisecond}, nil, c.handle)
	ctx := context.Background()

	if err := agg.Process(ctx, photoMsg("c1", "u1", "", time.Now())); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, time.Second, func() bool { return c.count() == 1 }) {
		t.Fatal("handler never invoked")
	}

	stats := agg.Stats()
	if stats.OpenBatches != 0 || stats.LiveTimers != 0 {
		t.Errorf("failed handler left state behind: %+v", stats)
	}

	// The pipeline keeps working afterwards.
	c.err = nil
	if err := agg.Process(ctx, photoMsg("c1", "u1", "", time.Now())); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, time.Second, func() bool { return c.count() == 2 }) {
		t.Error("aggregator did not recover after handler error")
	}
}

func TestAggregator_LockPoolBounded(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{Window: 30 * time.Millisecond, MaxLocks: 2}, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		chat := fmt.Sprintf("c%d", i)
		if err := agg.Process(ctx, textMsg(chat, "u1", "hi", time.Now())); err != nil {
			t.Fatal(err)
		}
	}

	if got := agg.Stats().CachedLocks; got > 2 {
		t.Errorf("cached locks = %d, want <= 2", got)
	}
}

func TestAggregator_SingletonForwardAttribution(t *testing.T) {
	agg, c := newTestAggregator(t, Config{Window: 30 * time.Millisecond}, nil)

	m := textMsg("c1", "u1", "look at this", time.Now())
	m.ForwardOrigin = &channel.ForwardOrigin{Kind: channel.OriginUser, Name: "bob", ID: "7"}
	if err := agg.Process(context.Background(), m); err != nil {
		t.Fatal(err)
	}

	if c.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", c.count())
	}
	d := c.get(0)
	if !d.forwarded || d.source == nil || d.source.Type != "private" {
		t.Errorf("singleton forward attribution wrong: %+v", d)
	}
}
