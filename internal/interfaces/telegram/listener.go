package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/janhq/photo-bot/internal/config"
	"github.com/janhq/photo-bot/internal/infrastructure/metrics"
	"github.com/janhq/photo-bot/internal/interfaces/bot"
)

// BotClient is the slice of tgbotapi.BotAPI the listener uses.
type BotClient interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Handler turns an inbound message into a reply.
type Handler interface {
	Handle(ctx context.Context, in bot.Inbound) bot.Reply
}

// Listener long-polls for updates and dispatches them to the router.
type Listener struct {
	client      BotClient
	handler     Handler
	workers     int
	pollTimeout int
	log         zerolog.Logger
}

func NewListener(cfg *config.Config, client BotClient, handler Handler, log zerolog.Logger) *Listener {
	workers := cfg.BotWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Listener{
		client:      client,
		handler:     handler,
		workers:     workers,
		pollTimeout: cfg.TelegramPollTimeout,
		log:         log.With().Str("component", "telegram-listener").Logger(),
	}
}

// Run receives updates until ctx is cancelled. In-flight handlers finish before it returns.
func (l *Listener) Run(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = l.pollTimeout
	updates := l.client.GetUpdatesChan(updateConfig)

	// Handlers outlive cancellation of the receive loop so accepted messages get a reply.
	handlerCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(l.workers)

	l.log.Info().Int("workers", l.workers).Msg("receiving telegram updates")
	defer func() {
		if err := g.Wait(); err != nil {
			l.log.Error().Err(err).Msg("handler group finished with error")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			l.log.Info().Msg("context cancelled, stopping telegram updates")
			l.client.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				l.log.Info().Msg("updates channel closed")
				return nil
			}
			in, ok := ToInbound(update)
			if !ok {
				metrics.RecordUpdate("ignored")
				continue
			}
			metrics.RecordUpdate(string(bot.Classify(in)))
			g.Go(func() error {
				l.process(handlerCtx, in)
				return nil
			})
		}
	}
}

func (l *Listener) process(ctx context.Context, in bot.Inbound) {
	defer func() {
		if rec := recover(); rec != nil {
			l.log.Error().Str("update_id", in.UpdateID).Str("panic", fmt.Sprint(rec)).Msg("update processing panicked")
		}
	}()

	placeholderID := 0
	if bot.Classify(in) == bot.IntentUpload {
		msg := tgbotapi.NewMessage(in.ChatID, bot.ProcessingText)
		msg.ReplyToMessageID = in.MessageID
		sent, err := l.client.Send(msg)
		if err != nil {
			l.log.Warn().Err(err).Int64("chat_id", in.ChatID).Msg("failed to send processing message")
		} else {
			placeholderID = sent.MessageID
		}
	}

	reply := l.handler.Handle(ctx, in)
	if reply.Text == "" {
		return
	}

	if placeholderID != 0 {
		edit := tgbotapi.NewEditMessageText(in.ChatID, placeholderID, reply.Text)
		edit.DisableWebPagePreview = true
		_, err := l.client.Send(edit)
		if err == nil {
			return
		}
		l.log.Warn().Err(err).Int64("chat_id", in.ChatID).Msg("failed to edit processing message, sending reply instead")
	}

	msg := tgbotapi.NewMessage(in.ChatID, reply.Text)
	msg.ReplyToMessageID = in.MessageID
	msg.DisableWebPagePreview = true
	if _, err := l.client.Send(msg); err != nil {
		l.log.Error().Err(err).Int64("chat_id", in.ChatID).Msg("failed to send reply")
	}
}

// ToInbound translates an update. Updates without a usable message report false.
func ToInbound(update tgbotapi.Update) (bot.Inbound, bool) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return bot.Inbound{}, false
	}
	sender, ok := resolveSender(msg)
	if !ok {
		return bot.Inbound{}, false
	}

	in := bot.Inbound{
		UpdateID:  strconv.Itoa(update.UpdateID),
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Sender:    sender,
		Text:      strings.TrimSpace(msg.Text),
	}
	if in.Text == "" {
		in.Text = strings.TrimSpace(msg.Caption)
	}
	if msg.IsCommand() {
		in.Command = msg.Command()
		in.Args = strings.TrimSpace(msg.CommandArguments())
	}

	switch {
	case len(msg.Photo) > 0:
		in.FileRef = pickLargestPhoto(msg.Photo).FileID
	case msg.Document != nil:
		if isImageDocument(msg.Document) {
			in.FileRef = msg.Document.FileID
		} else {
			in.Unsupported = true
		}
	}

	if in.Text == "" && in.FileRef == "" && !in.Unsupported {
		return bot.Inbound{}, false
	}
	return in, true
}

// resolveSender prefers the username as display name, then first + last name.
func resolveSender(msg *tgbotapi.Message) (bot.Sender, bool) {
	if msg.From == nil {
		return bot.Sender{}, false
	}
	username := strings.TrimSpace(msg.From.UserName)
	displayName := username
	if displayName == "" {
		displayName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}
	return bot.Sender{
		ID:          strconv.FormatInt(msg.From.ID, 10),
		Username:    username,
		DisplayName: displayName,
	}, true
}

// pickLargestPhoto returns the highest resolution size of a photo.
func pickLargestPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		if item.Width*item.Height > best.Width*best.Height ||
			(item.Width*item.Height == best.Width*best.Height && item.FileSize > best.FileSize) {
			best = item
		}
	}
	return best
}

func isImageDocument(doc *tgbotapi.Document) bool {
	return strings.HasPrefix(strings.ToLower(doc.MimeType), "image/")
}
