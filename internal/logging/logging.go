// Package logging builds the zap logger shared by every solo-cook command.
//
// Output goes to stderr in zap's console encoding so that progress lines
// read naturally next to the chef-solo output streamed on stdout.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// LevelEnv overrides the level derived from -V when set (DEBUG, INFO, WARN, ERROR).
const LevelEnv = "SOLO_COOK_LOG_LEVEL"

// New returns a console logger writing to w. Verbosity 0 logs Info and
// above; any -V raises it to Debug.
func New(verbosity int, w io.Writer) *zap.Logger {
	level := zapcore.InfoLevel
	if verbosity > 0 {
		level = zapcore.DebugLevel
	}
	if env := os.Getenv(LevelEnv); env != "" {
		level = parseLevel(env, level)
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	cfg.CallerKey = ""
	cfg.NameKey = ""
	cfg.StacktraceKey = ""
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if isTerminal(w) {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), level)
	return zap.New(core)
}

func parseLevel(s string, fallback zapcore.Level) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE", "DEBUG":
		return zapcore.DebugLevel
	case "INFO":
		return zapcore.InfoLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return fallback
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
