package telegram

import (
	"fmt"
	"log/slog"
	"strings"
)

// botLogger routes tgbotapi output through slog. The library only prints request
// and response dumps ("Endpoint: ...") in debug mode; those go out at Debug,
// anything else is a warning.
type botLogger struct {
	log *slog.Logger
}

func newBotLogger(log *slog.Logger) *botLogger {
	return &botLogger{log: log.With("component", "tgbotapi")}
}

func (b *botLogger) Println(v ...any) {
	b.emit(fmt.Sprintln(v...))
}

func (b *botLogger) Printf(format string, v ...any) {
	b.emit(fmt.Sprintf(format, v...))
}

func (b *botLogger) emit(msg string) {
	msg = strings.TrimSpace(msg)
	if strings.HasPrefix(msg, "Endpoint: ") {
		b.log.Debug(msg)
		return
	}
	b.log.Warn(msg)
}
