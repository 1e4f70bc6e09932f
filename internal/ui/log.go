package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rivo/tview"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger  = zap.NewNop().Sugar()
	logFile *os.File
)

// InitLogging configures the process logger. The console core writes to
// stderr and is skipped while the TUI owns the terminal; debugLogFile, when
// set, receives every record at debug level as JSON.
func InitLogging(verbose, console bool, debugLogFile string) error {
	level := zapcore.InfoLevel
	if verbose || os.Getenv("DEBUG") != "" {
		level = zapcore.DebugLevel
	}

	var cores []zapcore.Core
	if console {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level))
	}
	if debugLogFile != "" {
		f, err := os.OpenFile(debugLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open debug log %s: %w", debugLogFile, err)
		}
		fileConfig := zap.NewProductionEncoderConfig()
		fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileConfig), zapcore.AddSync(f), zapcore.DebugLevel))
		logFile = f
	}
	if len(cores) == 0 {
		logger = zap.NewNop().Sugar()
		return nil
	}
	logger = zap.New(zapcore.NewTee(cores...)).Sugar()
	return nil
}

// CloseLogging flushes the logger and closes the debug log file
func CloseLogging() {
	_ = logger.Sync()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// toView mirrors a log line into the TUI log pane when it is running
func toView(color, level, msg string) {
	if LogView == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05")
	fmt.Fprintf(LogView, "[blue]%s[white] [%s]%s[white]: %s\n", timestamp, color, level, tview.Escape(msg))
}

// LogInfo logs an informational message
func LogInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Info(msg)
	toView("yellow", "INFO", msg)
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Warn(msg)
	toView("orange", "WARN", msg)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error(msg)
	toView("red", "ERROR", msg)
}

// LogSuccess logs a success message
func LogSuccess(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Infow(msg, "outcome", "success")
	toView("green", "SUCCESS", msg)
}

// LogDebug logs a debug message; it only reaches the TUI in verbose mode
func LogDebug(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Debug(msg)
	if logger.Desugar().Core().Enabled(zapcore.DebugLevel) {
		toView("gray", "DEBUG", msg)
	}
}

// LogShellCommand records a git invocation before it runs
func LogShellCommand(command string, args []string, dir string) {
	logger.Debugw("exec", "command", command+" "+strings.Join(args, " "), "dir", dir)
}
