package batch

import (
	"testing"
	"time"

	"github.com/packratbot/packrat/internal/channel"
)

func photoMsg(chatID, userID, caption string, ts time.Time) *channel.Message {
	return &channel.Message{
		ChatID:      chatID,
		UserID:      userID,
		Caption:     caption,
		Attachments: []channel.Attachment{{Kind: channel.AttachmentPhoto, FileID: "f"}},
		Timestamp:   ts,
	}
}

func textMsg(chatID, userID, text string, ts time.Time) *channel.Message {
	return &channel.Message{
		ChatID:    chatID,
		UserID:    userID,
		Text:      text,
		Timestamp: ts,
	}
}

func forwardedPhoto(chatID, userID, caption string, origin *channel.ForwardOrigin, ts time.Time) *channel.Message {
	m := photoMsg(chatID, userID, caption, ts)
	m.ForwardOrigin = origin
	return m
}

func TestBatch_SourceFrozenFromFirstMedia(t *testing.T) {
	now := time.Now()
	b := newBatch("", nil)

	first := forwardedPhoto("c1", "u1", "", &channel.ForwardOrigin{
		Kind: channel.OriginChannel, Name: "Tech News", ID: "100",
	}, now)
	second := forwardedPhoto("c1", "u1", "", &channel.ForwardOrigin{
		Kind: channel.OriginUser, Name: "alice", ID: "200",
	}, now.Add(50*time.Millisecond))

	b.AddMessage(first)
	b.AddMessage(second)

	if !b.Forwarded() {
		t.Fatal("expected forwarded batch")
	}
	src := b.Source()
	if src == nil || src.Name != "Tech News" || src.Type != "channel" {
		t.Errorf("source = %+v, want the first media message's origin", src)
	}
	if b.Size() != 2 {
		t.Errorf("size = %d, want 2", b.Size())
	}
	if !b.FirstTime().Equal(now) || !b.LastTime().Equal(now.Add(50*time.Millisecond)) {
		t.Errorf("times = (%v, %v)", b.FirstTime(), b.LastTime())
	}
}

func TestBatch_NoOriginMeansDirect(t *testing.T) {
	b := newBatch("", nil)
	b.AddMessage(photoMsg("c1", "u1", "", time.Now()))

	if b.Forwarded() {
		t.Error("expected non-forwarded batch")
	}
	if b.Source() != nil {
		t.Errorf("source = %+v, want nil", b.Source())
	}
}

func TestBatch_LaterItemsDoNotOverwriteSource(t *testing.T) {
	now := time.Now()
	b := newBatch("", nil)
	b.AddMessage(photoMsg("c1", "u1", "", now))
	b.AddMessage(forwardedPhoto("c1", "u1", "", &channel.ForwardOrigin{
		Kind: channel.OriginChannel, Name: "Late", ID: "9",
	}, now.Add(time.Millisecond)))

	if b.Forwarded() || b.Source() != nil {
		t.Error("first media message had no origin; later items must not change that")
	}
}

func TestBatch_UnrecognizedOriginDegrades(t *testing.T) {
	b := newBatch("", nil)
	b.AddMessage(forwardedPhoto("c1", "u1", "", &channel.ForwardOrigin{
		Kind: channel.OriginHidden, Name: "someone",
	}, time.Now()))

	if b.Source() != nil {
		t.Errorf("unrecognized origin should yield nil source, got %+v", b.Source())
	}
	if !b.Forwarded() {
		t.Error("forwarded flag follows presence of any origin, not its variant")
	}
}

func TestBatch_MergedCaptionOrder(t *testing.T) {
	now := time.Now()
	det := NewForwardDetector(10*time.Millisecond, 50*time.Millisecond)
	det.Register("u1", "my comment")

	b := newBatch("", det)
	b.AddMessage(forwardedPhoto("c1", "u1", "item caption", &channel.ForwardOrigin{
		Kind: channel.OriginChannel, Name: "Src", ID: "1",
	}, now))
	b.AddMessage(textMsg("c1", "u1", "user text", now.Add(10*time.Millisecond)))

	caption, ok := b.MergedCaption()
	if !ok {
		t.Fatal("expected a merged caption")
	}
	want := "my comment\nuser text\nitem caption"
	if caption != want {
		t.Errorf("merged caption = %q, want %q", caption, want)
	}

	if comment, has := b.SpeculativeComment(); !has || comment != "my comment" {
		t.Errorf("speculative comment = (%q, %v)", comment, has)
	}
}

func TestBatch_MergedCaptionEmpty(t *testing.T) {
	b := newBatch("", nil)
	b.AddMessage(photoMsg("c1", "u1", "", time.Now()))

	if caption, ok := b.MergedCaption(); ok {
		t.Errorf("empty batch must not fabricate a caption, got %q", caption)
	}
}

func TestBatch_CommentsAndCaptionsSplit(t *testing.T) {
	now := time.Now()
	b := newBatch("", nil)
	b.AddMessage(photoMsg("c1", "u1", "original caption", now))
	b.AddMessage(textMsg("c1", "u1", "user comment", now.Add(time.Millisecond)))

	forwardedText := textMsg("c1", "u1", "quoted text", now.Add(2*time.Millisecond))
	forwardedText.ForwardOrigin = &channel.ForwardOrigin{Kind: channel.OriginChannel, Name: "X", ID: "2"}
	b.AddMessage(forwardedText)

	comments, captions := b.CommentsAndCaptions()
	if comments != "user comment" {
		t.Errorf("user comments = %q, want %q (forwarded text excluded)", comments, "user comment")
	}
	if captions != "original caption" {
		t.Errorf("original captions = %q, want %q", captions, "original caption")
	}
}

func TestBatch_Complete(t *testing.T) {
	b := newBatch("", nil)
	if b.Complete(time.Millisecond) {
		t.Error("batch with no messages is never complete")
	}

	b.AddMessage(photoMsg("c1", "u1", "", time.Now().Add(-time.Second)))
	if !b.Complete(100 * time.Millisecond) {
		t.Error("idle window elapsed, batch should be complete")
	}
	if b.Complete(time.Hour) {
		t.Error("idle window not elapsed yet")
	}
}
