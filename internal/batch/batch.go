package batch

import (
	"strings"
	"time"

	"github.com/packratbot/packrat/internal/channel"
	"github.com/packratbot/packrat/internal/pkg/logs"
	"github.com/packratbot/packrat/internal/pkg/utils"
)

// SourceInfo is the normalized attribution of a forwarded batch.
type SourceInfo struct {
	Name string
	ID   string
	Type string
}

// SourceFromOrigin normalizes a transport forward-origin descriptor.
// Unrecognized variants degrade to nil rather than failing; the forwarded
// flag is tracked separately from attribution.
func SourceFromOrigin(origin *channel.ForwardOrigin) *SourceInfo {
	if origin == nil {
		return nil
	}

	switch origin.Kind {
	case channel.OriginChannel:
		return &SourceInfo{Name: origin.Name, ID: origin.ID, Type: "channel"}
	case channel.OriginChat:
		return &SourceInfo{Name: origin.Name, ID: origin.ID, Type: "group"}
	case channel.OriginUser:
		return &SourceInfo{Name: origin.Name, ID: origin.ID, Type: "private"}
	}
	return nil
}

// Batch accumulates one logical group of related inbound messages destined
// for a single archive handler invocation. It is append-only until the
// aggregator finalizes it, after which it is discarded and never reused.
type Batch struct {
	mediaGroupID string

	// items holds the attachment-bearing messages in arrival order;
	// captions holds plain-text messages that arrived inside the window.
	items    []*channel.Message
	captions []*channel.Message

	firstTime time.Time
	lastTime  time.Time

	// source and forwarded are derived exactly once, from the first
	// attachment-bearing message, and never overwritten afterward.
	source    *SourceInfo
	forwarded bool
	sourceSet bool

	// speculativeComment is the pre-forward user text captured from the
	// detector when the first attachment-bearing item is a forward.
	speculativeComment string
	hasComment         bool

	detector *ForwardDetector
}

func newBatch(mediaGroupID string, detector *ForwardDetector) *Batch {
	return &Batch{
		mediaGroupID: mediaGroupID,
		detector:     detector,
	}
}

// AddMessage folds one message into the batch. Attachment-bearing messages
// go to items, plain text goes to captions; both advance lastTime.
func (b *Batch) AddMessage(m *channel.Message) {
	if b.firstTime.IsZero() {
		b.firstTime = m.Timestamp
	}
	b.lastTime = m.Timestamp

	if m.HasAttachment() {
		b.items = append(b.items, m)

		if !b.sourceSet {
			b.sourceSet = true
			b.source = SourceFromOrigin(m.ForwardOrigin)
			b.forwarded = m.ForwardOrigin != nil
			if b.source != nil {
				logs.Debug("[batch] source detected: %s (forwarded=%v)", b.source.Name, b.forwarded)
			}

			// A forwarded first item may have a pending plain-text wait from
			// the same sender; that text is the user's comment on the forward.
			if b.forwarded && b.detector != nil {
				if comment, _, ok := b.detector.CheckForwardArrived(m.UserID); ok {
					logs.Info("[batch] captured pre-forward comment: %q", utils.Truncate(comment, 50))
					b.speculativeComment = comment
					b.hasComment = true
				}
			}
		}
		return
	}

	if m.Text != "" {
		b.captions = append(b.captions, m)
	}
}

// MergedCaption joins, in order: the speculative comment, the plain-text
// captions, and the attachment items' own caption fields. ok is false when
// the batch collected no text at all.
func (b *Batch) MergedCaption() (caption string, ok bool) {
	var texts []string

	if b.hasComment {
		texts = append(texts, b.speculativeComment)
	}
	for _, m := range b.captions {
		if m.Text != "" {
			texts = append(texts, m.Text)
		}
	}
	for _, m := range b.items {
		if m.Caption != "" {
			texts = append(texts, m.Caption)
		}
	}

	if len(texts) == 0 {
		return "", false
	}
	return strings.Join(texts, "\n"), true
}

// CommentsAndCaptions splits the batch text into what the user wrote (the
// speculative comment plus non-forwarded plain texts) and what the archived
// content itself carried (item caption fields). Consumers use the split to
// avoid attributing a forwarded post's own caption to the user. Empty
// strings mean the respective side collected nothing.
func (b *Batch) CommentsAndCaptions() (userComments, originalCaptions string) {
	var comments, captions []string

	if b.hasComment {
		comments = append(comments, b.speculativeComment)
	}
	for _, m := range b.captions {
		if m.Text != "" && m.ForwardOrigin == nil {
			comments = append(comments, m.Text)
		}
	}
	for _, m := range b.items {
		if m.Caption != "" {
			captions = append(captions, m.Caption)
		}
	}

	return strings.Join(comments, "\n"), strings.Join(captions, "\n")
}

// Complete reports whether the trailing idle window has elapsed since the
// last message. Idle detection is normally timer-driven; this is the
// polling form used by tests and diagnostics.
func (b *Batch) Complete(idleWindow time.Duration) bool {
	if b.lastTime.IsZero() {
		return false
	}
	return time.Since(b.lastTime) > idleWindow
}

// Size is the count of attachment-bearing items.
func (b *Batch) Size() int {
	return len(b.items)
}

func (b *Batch) Items() []*channel.Message { return b.items }

func (b *Batch) CaptionCount() int { return len(b.captions) }

func (b *Batch) MediaGroupID() string { return b.mediaGroupID }

func (b *Batch) FirstTime() time.Time { return b.firstTime }

func (b *Batch) LastTime() time.Time { return b.lastTime }

func (b *Batch) Source() *SourceInfo { return b.source }

func (b *Batch) Forwarded() bool { return b.forwarded }

func (b *Batch) SpeculativeComment() (string, bool) {
	return b.speculativeComment, b.hasComment
}
