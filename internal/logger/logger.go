package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

// Log returns the process logger.
func Log() *zerolog.Logger {
	return &log
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	SetConsoleWriter()
}

func SetConsoleWriter() {
	log = zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
		w.FormatLevel = consoleFormatLevel(false)
		w.TimeFormat = "15:04:05.000"
	})).With().Timestamp().Logger()
}

func SetJsonWriter() {
	log = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func SetWriter(w io.Writer) {
	log = zerolog.New(w).With().Timestamp().Logger()
}

// Configure applies the LOG_FORMAT / LOG_LEVEL settings.
func Configure(format, level string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		SetConsoleWriter()
	case "json":
		SetJsonWriter()
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	if strings.TrimSpace(level) == "" {
		return nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Info logs msg with alternating key/value fields.
func Info(msg string, kv ...interface{}) {
	fields(log.Info(), kv).Msg(msg)
}

func Warn(msg string, kv ...interface{}) {
	fields(log.Warn(), kv).Msg(msg)
}

// Error logs err at error level. A nil err still logs msg.
func Error(err error, msg string, kv ...interface{}) {
	fields(log.Error().Err(err), kv).Msg(msg)
}

func fields(event *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		switch v := kv[i+1].(type) {
		case string:
			event.Str(key, v)
		case int:
			event.Int(key, v)
		case int64:
			event.Int64(key, v)
		case float64:
			event.Float64(key, v)
		case bool:
			event.Bool(key, v)
		case time.Duration:
			event.Str(key, v.String())
		case time.Time:
			event.Time(key, v)
		case error:
			event.AnErr(key, v)
		default:
			event.Interface(key, v)
		}
	}
	return event
}

func colorize(s interface{}, c int, disabled bool) string {
	if disabled {
		return fmt.Sprintf("%s", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorMagenta = 35
	colorBold    = 1
)

func consoleFormatLevel(noColor bool) zerolog.Formatter {
	return func(i interface{}) string {
		ll, ok := i.(string)
		if !ok {
			return colorize("???", colorBold, noColor)
		}
		switch strings.ToLower(ll) {
		case "trace":
			return colorize("TRC", colorMagenta, noColor)
		case "debug":
			return colorize("DBG", colorYellow, noColor)
		case "info":
			return colorize("INF", colorGreen, noColor)
		case "warn":
			return colorize("WRN", colorRed, noColor)
		case "error":
			return colorize(colorize("ERR", colorRed, noColor), colorBold, noColor)
		case "fatal":
			return colorize(colorize("FTL", colorRed, noColor), colorBold, noColor)
		case "panic":
			return colorize(colorize("PNC", colorRed, noColor), colorBold, noColor)
		default:
			return colorize("???", colorBold, noColor)
		}
	}
}
