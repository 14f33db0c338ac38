package gateway

import (
	"context"
	"time"

	"github.com/packratbot/packrat/internal/channel"
	"github.com/packratbot/packrat/internal/consts"
	"github.com/packratbot/packrat/internal/pkg/logs"
)

// HandleInbound is the entry point for every normalized message. Plain,
// non-forwarded text is held for the stage-1 wait so an immediately
// following forward can claim it as its comment; everything else goes to
// the aggregator right away.
func (gw *Gateway) HandleInbound(ctx context.Context, msg *channel.Message) error {
	ctx = logs.SetLogID(ctx, logs.NewLogID())
	ctx = context.WithValue(ctx, consts.CtxKeyChannelID, msg.ChannelID)
	ctx = context.WithValue(ctx, consts.CtxKeyChatID, msg.ChatID)

	if isHoldableText(msg) {
		return gw.dispatchPlainText(ctx, msg)
	}
	return gw.aggregator.Process(ctx, msg)
}

// isHoldableText reports whether the message enters the stage-1 hold:
// free-standing text with no attachment, no album id, and no forward
// origin. A forwarded text is itself the thing being commented on, so it
// skips the hold.
func isHoldableText(msg *channel.Message) bool {
	return msg.Text != "" &&
		!msg.HasAttachment() &&
		msg.MediaGroupID == "" &&
		msg.ForwardOrigin == nil
}

// dispatchPlainText runs the stage-1 hold. When a forward from the same
// sender arrives during the hold, the batch has already consumed the text
// as its speculative comment and this path ends without output. Otherwise
// the text proceeds to the aggregator; stage 2 is managed by the archive
// handler around its slow processing.
func (gw *Gateway) dispatchPlainText(ctx context.Context, msg *channel.Message) error {
	gw.detector.Register(msg.UserID, msg.Text)

	select {
	case <-time.After(gw.detector.Stage1Wait()):
	case <-ctx.Done():
		gw.detector.CancelWait(msg.UserID)
		return ctx.Err()
	}

	if _, detected := gw.detector.ForwardStatus(msg.UserID); detected {
		logs.CtxInfo(ctx, "[gateway] forward detected during stage 1 for user %s, text becomes batch comment", msg.UserID)
		gw.detector.CancelWait(msg.UserID)
		return nil
	}

	// The wait entry stays alive through processing so a slow forward can
	// still preempt the text inside the stage-2 window.
	err := gw.aggregator.Process(ctx, msg)
	gw.detector.CancelWait(msg.UserID)
	return err
}
