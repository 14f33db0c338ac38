package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/packratbot/packrat/internal/ai"
	"github.com/packratbot/packrat/internal/batch"
	"github.com/packratbot/packrat/internal/channel"
	"github.com/packratbot/packrat/internal/pkg/logs"
	"github.com/packratbot/packrat/internal/pkg/utils"
)

// minTextForSummary is the shortest text worth an AI summary.
const minTextForSummary = 250

// SendFunc delivers a bot reply through the originating channel.
type SendFunc func(ctx context.Context, channelID, chatID, content string) error

type ArchiverOptions struct {
	Store      *Store
	Fetcher    *PageFetcher
	Summarizer *ai.Summarizer
	Detector   *batch.ForwardDetector
	Send       SendFunc
}

// Archiver turns finalized batches into archive rows, notes, and tags,
// and confirms each archive back to the user.
type Archiver struct {
	store      *Store
	fetcher    *PageFetcher
	summarizer *ai.Summarizer
	detector   *batch.ForwardDetector
	send       SendFunc
}

func NewArchiver(opts ArchiverOptions) *Archiver {
	return &Archiver{
		store:      opts.Store,
		fetcher:    opts.Fetcher,
		summarizer: opts.Summarizer,
		detector:   opts.Detector,
		send:       opts.Send,
	}
}

// HandleBatch is the aggregator handler: one call per finalized batch or
// singleton dispatch.
func (ar *Archiver) HandleBatch(ctx context.Context, items []*channel.Message, mergedCaption string, source *batch.SourceInfo, forwarded bool) error {
	if len(items) == 0 {
		return nil
	}

	first := items[0]
	if len(items) == 1 && !first.HasAttachment() {
		return ar.archiveText(ctx, first, source, forwarded)
	}
	return ar.archiveMedia(ctx, items, mergedCaption, source, forwarded)
}

// archiveText handles a free-standing text message. For non-forwarded
// text this is the stage-2 leg of forward detection: slow work happens
// inside the window, and a forward arriving meanwhile aborts the commit
// because the text is that forward's comment, not a note of its own.
func (ar *Archiver) archiveText(ctx context.Context, msg *channel.Message, source *batch.SourceInfo, forwarded bool) error {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	if !forwarded && ar.detector != nil {
		ar.detector.EnterStage2(msg.UserID)
	}

	a := &Archive{
		ChannelID: msg.ChannelID,
		ChatID:    msg.ChatID,
		UserID:    msg.UserID,
		Kind:      KindText,
		Content:   text,
	}
	applySource(a, source, forwarded)

	// Slow leg: page fetch and AI annotation.
	var note string
	if pageURL := ExtractURL(text); pageURL != "" && ar.fetcher != nil {
		a.Kind = KindLink
		page, err := ar.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			logs.CtxWarn(ctx, "[archive] fetch %s failed: %v", pageURL, err)
		} else {
			a.Title = page.Title
			if path, err := ar.fetcher.SavePage(page); err != nil {
				logs.CtxWarn(ctx, "[archive] save page failed: %v", err)
			} else {
				a.PagePath = path
			}
			note = ar.summarize(ctx, page.Markdown)
		}
	} else if len(text) >= minTextForSummary {
		note = ar.summarize(ctx, text)
	}

	if a.Title == "" {
		a.Title = ar.title(ctx, text)
	}

	// Pre-commit re-check: a forward that arrived during the slow leg
	// claims this text as its comment and the note must not be written.
	if !forwarded && ar.detector != nil {
		if _, detected := ar.detector.ForwardStatus(msg.UserID); detected && ar.detector.WithinStage2Window(msg.UserID) {
			logs.CtxInfo(ctx, "[archive] forward arrived during stage 2 for user %s, dropping text archive", msg.UserID)
			return nil
		}
	}

	id, err := ar.store.SaveArchive(ctx, a)
	if err != nil {
		return fmt.Errorf("save text archive: %w", err)
	}

	if tags := ExtractHashtags(text); len(tags) > 0 {
		if err := ar.store.TagArchive(ctx, id, tags); err != nil {
			logs.CtxWarn(ctx, "[archive] tag archive %d failed: %v", id, err)
		}
	}
	if note != "" {
		if _, err := ar.store.AddNote(ctx, id, "[auto] "+note); err != nil {
			logs.CtxWarn(ctx, "[archive] add note to archive %d failed: %v", id, err)
		}
	}

	ar.confirm(ctx, msg.ChannelID, msg.ChatID, a)
	return nil
}

// archiveMedia handles an attachment-bearing batch of any size.
func (ar *Archiver) archiveMedia(ctx context.Context, items []*channel.Message, mergedCaption string, source *batch.SourceInfo, forwarded bool) error {
	first := items[0]

	var fileIDs []string
	for _, item := range items {
		for _, att := range item.Attachments {
			if att.FileID != "" {
				fileIDs = append(fileIDs, att.FileID)
			}
		}
	}

	// Duplicate detection keys on the first provider file id.
	if len(fileIDs) > 0 {
		dup, err := ar.store.FindByFileID(ctx, fileIDs[0])
		if err != nil {
			logs.CtxWarn(ctx, "[archive] duplicate lookup failed: %v", err)
		} else if dup != nil {
			logs.CtxInfo(ctx, "[archive] duplicate of archive %d, skipping", dup.ID)
			ar.reply(ctx, first.ChannelID, first.ChatID,
				fmt.Sprintf("Already archived as #%d (%s)", dup.ID, dup.CreatedAt.Format("2006-01-02")))
			return nil
		}
	}

	kind := KindMedia
	if len(items) > 1 {
		kind = KindMediaBatch
	}

	a := &Archive{
		ChannelID: first.ChannelID,
		ChatID:    first.ChatID,
		UserID:    first.UserID,
		Kind:      kind,
		Title:     utils.FirstLine(mergedCaption),
		Content:   mergedCaption,
		ItemCount: len(items),
		FileIDs:   fileIDs,
	}
	applySource(a, source, forwarded)

	id, err := ar.store.SaveArchive(ctx, a)
	if err != nil {
		return fmt.Errorf("save media archive: %w", err)
	}

	if tags := ExtractHashtags(mergedCaption); len(tags) > 0 {
		if err := ar.store.TagArchive(ctx, id, tags); err != nil {
			logs.CtxWarn(ctx, "[archive] tag archive %d failed: %v", id, err)
		}
	}
	if mergedCaption != "" {
		if note := ar.summarize(ctx, mergedCaption); note != "" {
			if _, err := ar.store.AddNote(ctx, id, "[auto] "+note); err != nil {
				logs.CtxWarn(ctx, "[archive] add note to archive %d failed: %v", id, err)
			}
		}
	}

	ar.confirm(ctx, first.ChannelID, first.ChatID, a)
	return nil
}

func applySource(a *Archive, source *batch.SourceInfo, forwarded bool) {
	a.Forwarded = forwarded
	if source == nil {
		return
	}
	a.SourceName = source.Name
	a.SourceID = source.ID
	a.SourceType = source.Type
}

// summarize returns an AI note for the content, or "" when AI is off or
// the call fails. Failures never block archiving.
func (ar *Archiver) summarize(ctx context.Context, content string) string {
	if ar.summarizer == nil || !ar.summarizer.Available() {
		return ""
	}
	note, err := ar.summarizer.Summarize(ctx, content)
	if err != nil {
		logs.CtxWarn(ctx, "[archive] summarize failed: %v", err)
		return ""
	}
	return note
}

func (ar *Archiver) title(ctx context.Context, content string) string {
	if ar.summarizer != nil && ar.summarizer.Available() && len(content) >= minTextForSummary {
		title, err := ar.summarizer.Title(ctx, content)
		if err != nil {
			logs.CtxWarn(ctx, "[archive] title generation failed: %v", err)
		} else if title != "" {
			return title
		}
	}
	return utils.Truncate(utils.FirstLine(content), 50)
}

func (ar *Archiver) confirm(ctx context.Context, channelID, chatID string, a *Archive) {
	var b strings.Builder
	fmt.Fprintf(&b, "Archived #%d", a.ID)
	switch a.Kind {
	case KindMediaBatch:
		fmt.Fprintf(&b, " (%d items)", a.ItemCount)
	case KindLink:
		b.WriteString(" (link)")
	}
	if a.SourceName != "" {
		fmt.Fprintf(&b, " from %s", a.SourceName)
	} else if a.Forwarded {
		b.WriteString(" (forwarded)")
	}
	if a.Title != "" {
		fmt.Fprintf(&b, "\n%s", utils.Truncate80(a.Title))
	}
	ar.reply(ctx, channelID, chatID, b.String())
}

func (ar *Archiver) reply(ctx context.Context, channelID, chatID, content string) {
	if ar.send == nil {
		return
	}
	if err := ar.send(ctx, channelID, chatID, content); err != nil {
		logs.CtxWarn(ctx, "[archive] send confirmation failed: %v", err)
	}
}
