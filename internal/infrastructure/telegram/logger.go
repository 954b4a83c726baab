package telegram

import (
	"fmt"

	"github.com/rs/zerolog"
)

// zerologBotLogger routes tgbotapi library logs through zerolog.
type zerologBotLogger struct {
	log zerolog.Logger
}

func (z *zerologBotLogger) Println(v ...any) {
	z.log.Warn().Msg(fmt.Sprint(v...))
}

func (z *zerologBotLogger) Printf(format string, v ...any) {
	z.log.Warn().Msg(fmt.Sprintf(format, v...))
}
