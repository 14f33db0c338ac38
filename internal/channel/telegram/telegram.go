package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/packratbot/packrat/internal/channel"
	"github.com/packratbot/packrat/internal/config"
	"github.com/packratbot/packrat/internal/pkg/logs"
)

var _ channel.Channel = (*Telegram)(nil)

// Telegram normalizes bot updates into channel.Messages. It does no
// batching of its own: album items are tagged with their media-group id
// and handed to the handler one at a time, in arrival order.
type Telegram struct {
	id      string
	config  Config
	bot     *bot.Bot
	handler func(ctx context.Context, msg *channel.Message) error
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewChannel(chanId string, chCfg *config.ChannelConfig) (channel.Channel, error) {
	cfg, err := ParseConfig(chCfg.Config)
	if err != nil {
		return nil, fmt.Errorf("parse telegram config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	tg := &Telegram{
		id:     chanId,
		config: *cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(tg.handleUpdate),
	}

	tgBot, err := bot.New(cfg.Token, opts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	tg.bot = tgBot

	return tg, nil
}

func (c *Telegram) ID() string {
	return c.id
}

func (c *Telegram) Type() channel.Type {
	return channel.Telegram
}

func (c *Telegram) Start(ctx context.Context) error {
	if c.config.WebhookURL != "" && c.config.WebhookPort > 0 {
		return c.startWebhook(ctx)
	}

	c.bot.Start(ctx)
	return nil
}

func (c *Telegram) startWebhook(ctx context.Context) error {
	logs.CtxInfo(ctx, "[channel:telegram] starting in webhook mode: %s", c.config.WebhookURL)

	_, err := c.bot.SetWebhook(ctx, &bot.SetWebhookParams{
		URL: c.config.WebhookURL,
	})
	if err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}

	return errors.New("webhook mode not yet fully implemented")
}

func (c *Telegram) Stop(ctx context.Context) error {
	c.cancel()
	if c.bot != nil {
		c.bot.Close(ctx)
	}
	return nil
}

func (c *Telegram) SendMessage(ctx context.Context, chatID string, content string) error {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	_, err = c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatIDInt,
		Text:      content,
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		logs.CtxWarn(ctx, "[channel:telegram] markdown send failed, falling back to plain text: %v", err)
		_, err = c.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatIDInt,
			Text:   content,
		})
	}

	return err
}

func (c *Telegram) RegisterMessageHandler(handler func(ctx context.Context, msg *channel.Message) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	c.handler = handler
	return nil
}

// handleUpdate is the default handler for all incoming Telegram updates.
// Every usable message, album item or not, is normalized and dispatched
// individually; the aggregator downstream reassembles albums.
func (c *Telegram) handleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	if !c.isAllowedUser(msg.From.ID) {
		logs.CtxDebug(ctx, "[channel:telegram] dropping message from unauthorized user %d", msg.From.ID)
		return
	}

	channelMsg := c.buildChannelMessage(msg)
	if channelMsg.Text == "" && channelMsg.Caption == "" && !channelMsg.HasAttachment() {
		return
	}

	c.dispatchMessage(ctx, b, msg.Chat.ID, channelMsg)
}

func (c *Telegram) isAllowedUser(userID int64) bool {
	if len(c.config.AllowedUsers) == 0 {
		return true
	}
	for _, allowed := range c.config.AllowedUsers {
		if allowed == userID {
			return true
		}
	}
	return false
}

// buildChannelMessage constructs a channel.Message from a Telegram message.
// Attachments keep their provider file IDs; nothing is downloaded here.
func (c *Telegram) buildChannelMessage(msg *models.Message) *channel.Message {
	messageID := strconv.Itoa(msg.ID)
	metadata := map[string]string{
		"message_id": messageID,
		"chat_type":  string(msg.Chat.Type),
	}
	if msg.From != nil {
		metadata["username"] = msg.From.Username
		metadata["first_name"] = msg.From.FirstName
		metadata["last_name"] = msg.From.LastName
	}

	userID := ""
	if msg.From != nil {
		userID = strconv.FormatInt(msg.From.ID, 10)
	}

	out := &channel.Message{
		ID:            messageID,
		ChannelID:     c.id,
		ChannelType:   channel.Telegram,
		UserID:        userID,
		ChatID:        strconv.FormatInt(msg.Chat.ID, 10),
		MediaGroupID:  msg.MediaGroupID,
		Attachments:   extractAttachments(msg),
		ForwardOrigin: convertForwardOrigin(msg.ForwardOrigin),
		Timestamp:     time.Unix(int64(msg.Date), 0),
		Metadata:      metadata,
	}

	if len(out.Attachments) > 0 {
		out.Caption = msg.Caption
	} else {
		out.Text = msg.Text
	}
	return out
}

// extractAttachments maps the media fields of a Telegram message onto
// attachment records. A Telegram message carries at most one media kind
// besides the photo size list.
func extractAttachments(msg *models.Message) []channel.Attachment {
	var attachments []channel.Attachment

	if len(msg.Photo) > 0 {
		// Telegram sends multiple sizes; the last one is the largest.
		best := msg.Photo[len(msg.Photo)-1]
		attachments = append(attachments, channel.Attachment{
			Kind:     channel.AttachmentPhoto,
			FileID:   best.FileID,
			FileSize: int64(best.FileSize),
			MIMEType: "image/jpeg",
		})
	}
	if msg.Video != nil {
		attachments = append(attachments, channel.Attachment{
			Kind:     channel.AttachmentVideo,
			FileID:   msg.Video.FileID,
			FileSize: int64(msg.Video.FileSize),
			MIMEType: msg.Video.MimeType,
		})
	}
	if msg.Document != nil {
		attachments = append(attachments, channel.Attachment{
			Kind:     channel.AttachmentDocument,
			FileID:   msg.Document.FileID,
			FileSize: int64(msg.Document.FileSize),
			MIMEType: msg.Document.MimeType,
		})
	}
	if msg.Audio != nil {
		attachments = append(attachments, channel.Attachment{
			Kind:     channel.AttachmentAudio,
			FileID:   msg.Audio.FileID,
			FileSize: int64(msg.Audio.FileSize),
			MIMEType: msg.Audio.MimeType,
		})
	}
	if msg.Voice != nil {
		attachments = append(attachments, channel.Attachment{
			Kind:     channel.AttachmentVoice,
			FileID:   msg.Voice.FileID,
			FileSize: int64(msg.Voice.FileSize),
			MIMEType: msg.Voice.MimeType,
		})
	}
	if msg.Animation != nil {
		attachments = append(attachments, channel.Attachment{
			Kind:     channel.AttachmentAnimation,
			FileID:   msg.Animation.FileID,
			FileSize: int64(msg.Animation.FileSize),
			MIMEType: msg.Animation.MimeType,
		})
	}
	if msg.Sticker != nil {
		attachments = append(attachments, channel.Attachment{
			Kind:     channel.AttachmentSticker,
			FileID:   msg.Sticker.FileID,
			FileSize: int64(msg.Sticker.FileSize),
		})
	}
	if msg.Contact != nil {
		attachments = append(attachments, channel.Attachment{
			Kind: channel.AttachmentContact,
		})
	}
	if msg.Location != nil {
		attachments = append(attachments, channel.Attachment{
			Kind: channel.AttachmentLocation,
		})
	}

	return attachments
}

// convertForwardOrigin maps the Telegram origin variants onto the
// normalized record. Unknown variants (hidden users included) keep only
// the kind so the rest of the pipeline still sees a forward.
func convertForwardOrigin(origin *models.MessageOrigin) *channel.ForwardOrigin {
	if origin == nil {
		return nil
	}

	switch origin.Type {
	case models.MessageOriginTypeChannel:
		if origin.MessageOriginChannel == nil {
			return &channel.ForwardOrigin{Kind: channel.OriginChannel}
		}
		return &channel.ForwardOrigin{
			Kind: channel.OriginChannel,
			Name: origin.MessageOriginChannel.Chat.Title,
			ID:   strconv.FormatInt(origin.MessageOriginChannel.Chat.ID, 10),
		}
	case models.MessageOriginTypeChat:
		if origin.MessageOriginChat == nil {
			return &channel.ForwardOrigin{Kind: channel.OriginChat}
		}
		return &channel.ForwardOrigin{
			Kind: channel.OriginChat,
			Name: origin.MessageOriginChat.SenderChat.Title,
			ID:   strconv.FormatInt(origin.MessageOriginChat.SenderChat.ID, 10),
		}
	case models.MessageOriginTypeUser:
		if origin.MessageOriginUser == nil {
			return &channel.ForwardOrigin{Kind: channel.OriginUser}
		}
		from := origin.MessageOriginUser.SenderUser
		name := strings.TrimSpace(from.FirstName + " " + from.LastName)
		if name == "" {
			name = from.Username
		}
		return &channel.ForwardOrigin{
			Kind: channel.OriginUser,
			Name: name,
			ID:   strconv.FormatInt(from.ID, 10),
		}
	case models.MessageOriginTypeHiddenUser:
		name := ""
		if origin.MessageOriginHiddenUser != nil {
			name = origin.MessageOriginHiddenUser.SenderUserName
		}
		return &channel.ForwardOrigin{
			Kind: channel.OriginHidden,
			Name: name,
		}
	default:
		return &channel.ForwardOrigin{Kind: channel.OriginHidden}
	}
}

// dispatchMessage sends the message to the registered handler.
func (c *Telegram) dispatchMessage(ctx context.Context, b *bot.Bot, chatID int64, channelMsg *channel.Message) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler == nil {
		return
	}

	if err := handler(ctx, channelMsg); err != nil {
		logs.CtxError(ctx, "[channel:telegram] error handling message: %v", err)
		if b != nil {
			_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
				ChatID: chatID,
				Text:   "Sorry, an error occurred while processing your message.",
			})
		}
	}
}
