package telegram

import (
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/janhq/photo-bot/internal/config"
)

// NewBotAPI authenticates against the Bot API. A failure here is fatal for startup.
func NewBotAPI(cfg *config.Config, log zerolog.Logger) (*tgbotapi.BotAPI, error) {
	logger := log.With().Str("component", "telegram").Logger()
	if err := tgbotapi.SetLogger(&zerologBotLogger{log: logger}); err != nil {
		return nil, fmt.Errorf("set telegram logger: %w", err)
	}

	// Long polls hold the connection for the poll timeout, so the client deadline sits above it.
	client := &http.Client{
		Timeout: time.Duration(cfg.TelegramPollTimeout)*time.Second + cfg.TransportFetchTimeout,
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramToken, cfg.TelegramAPIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("authenticate telegram bot: %w", err)
	}
	bot.Debug = cfg.TelegramDebug

	logger.Info().Str("username", bot.Self.UserName).Msg("authorized telegram bot")
	return bot, nil
}
