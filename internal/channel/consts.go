package channel

import (
	"errors"
	"time"
)

var ErrUnsupportedOperation = errors.New("channel operation is not supported")

type Type string

const (
	Telegram Type = "telegram"
)

var SupportedChannels = []Type{
	Telegram,
}

// AttachmentKind enumerates the media payloads a message may carry. A
// message with at least one attachment is "attachment-bearing" for the
// batching pipeline.
type AttachmentKind string

const (
	AttachmentPhoto     AttachmentKind = "photo"
	AttachmentVideo     AttachmentKind = "video"
	AttachmentDocument  AttachmentKind = "document"
	AttachmentAudio     AttachmentKind = "audio"
	AttachmentVoice     AttachmentKind = "voice"
	AttachmentAnimation AttachmentKind = "animation"
	AttachmentSticker   AttachmentKind = "sticker"
	AttachmentContact   AttachmentKind = "contact"
	AttachmentLocation  AttachmentKind = "location"
)

type Attachment struct {
	Kind AttachmentKind
	// FileID is the provider-side handle for later download.
	FileID   string
	FileSize int64
	MIMEType string
}

// OriginKind tags the forward-origin variant reported by the transport.
type OriginKind string

const (
	OriginChannel OriginKind = "channel"
	OriginChat    OriginKind = "chat"
	OriginUser    OriginKind = "user"
	OriginHidden  OriginKind = "hidden"
)

// ForwardOrigin describes where a forwarded message was originally posted.
type ForwardOrigin struct {
	Kind OriginKind
	Name string
	ID   string
}

// Message is the normalized inbound message every channel adapter produces.
// The batching core reads it and never mutates it.
type Message struct {
	ID          string
	ChannelID   string
	ChannelType Type
	ChatID      string
	UserID      string

	// Text is set for free-standing text messages, Caption for text that
	// rides along with an attachment. At most one of the two is non-empty.
	Text    string
	Caption string

	// MediaGroupID is set when the message is part of a native album.
	MediaGroupID string
	Attachments  []Attachment

	// ForwardOrigin is nil unless the message was forwarded.
	ForwardOrigin *ForwardOrigin

	Timestamp time.Time
	Metadata  map[string]string
}

// HasAttachment reports whether the message is attachment-bearing.
func (m *Message) HasAttachment() bool {
	return len(m.Attachments) > 0
}

type Response struct {
	ID       string
	ChatID   string
	Content  string
	Error    error
	Metadata map[string]string
}
