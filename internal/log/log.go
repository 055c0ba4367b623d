package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	mu         sync.RWMutex
	logger     zerolog.Logger
	loggerOnce sync.Once
)

// initLogger installs a console logger on stderr unless Init already ran.
func initLogger() {
	loggerOnce.Do(func() {
		mu.Lock()
		logger = newLogger(consoleWriter(os.Stderr), nil)
		mu.Unlock()
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})
}

// Init configures the global logger: console output on stderr and, when
// file is non-empty, a rotating log file as a second sink.
func Init(verbose bool, file string) error {
	initLogger()

	var fileWriter io.Writer
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return err
		}
		fileWriter = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    16, // megabytes
			MaxBackups: 8,
			MaxAge:     90, // days
			Compress:   true,
		}
	}

	mu.Lock()
	logger = newLogger(consoleWriter(os.Stderr), fileWriter)
	mu.Unlock()

	if verbose {
		SetLevel(LevelDebug)
	} else {
		SetLevel(LevelInfo)
	}
	return nil
}

// SetOutput redirects all log output to w. Used by tests and tools that
// want plain JSON lines.
func SetOutput(w io.Writer) {
	initLogger()
	mu.Lock()
	logger = newLogger(w, nil)
	mu.Unlock()
}

func SetLevel(l Level) {
	initLogger()
	switch l {
	case LevelDebug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case LevelError:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func Debug(msg string, kv ...any) {
	initLogger()
	mu.RLock()
	ev := logger.Debug()
	mu.RUnlock()
	withKVs(ev, kv...).Msg(msg)
}

func Info(msg string, kv ...any) {
	initLogger()
	mu.RLock()
	ev := logger.Info()
	mu.RUnlock()
	withKVs(ev, kv...).Msg(msg)
}

func Error(msg string, err error, kv ...any) {
	initLogger()
	mu.RLock()
	ev := logger.Error()
	mu.RUnlock()
	withKVs(ev.Err(err), kv...).Msg(msg)
}

func newLogger(console io.Writer, file io.Writer) zerolog.Logger {
	var out io.Writer = console
	if file != nil {
		out = zerolog.MultiLevelWriter(console, file)
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func consoleWriter(f *os.File) io.Writer {
	isTerminal := isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	return zerolog.ConsoleWriter{
		Out:        f,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal,
	}
}

// withKVs appends key/value pairs. A trailing key without value is dropped.
func withKVs(ev *zerolog.Event, kv ...any) *zerolog.Event {
	if ev == nil {
		return ev
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	return ev
}
