// Package logging provides component-tagged file logging for inreach.
//
// Every component logger of one process writes to the same file,
// ~/.inreach/logs/<execution-id>-inreach.log, so a run can be reconstructed
// from a single file after the fact.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is a log severity. Entries below the logger's level are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the tag written into log entries.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel parses debug, info, warn or error (case-insensitive).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger writes structured lines tagged with timestamp, component and level.
type Logger struct {
	executionID string
	component   string
	file        *os.File
	logger      *log.Logger
	mu          sync.Mutex
	logPath     string
	closeOnce   sync.Once
	level       Level
}

var (
	// Execution ID shared by every logger of this process
	executionID     string
	executionIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	// initOnce ensures directory initialization happens once
	initOnce sync.Once

	// initErr stores any error from directory initialization
	initErr error

	defaultLevel = LevelInfo
	defaultMu    sync.Mutex
)

func getExecutionID() string {
	executionIDOnce.Do(func() {
		executionID = uuid.New().String()
	})
	return executionID
}

// SetDirectory overrides the log directory. It must be called before the first
// logger is created to take effect.
func SetDirectory(dir string) {
	initOnce.Do(func() {
		logDir = dir
		initErr = os.MkdirAll(dir, 0750)
	})
}

// SetDefaultLevel sets the level applied to loggers created afterwards.
func SetDefaultLevel(level Level) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLevel = level
}

func currentDefaultLevel() Level {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultLevel
}

func initLogDirectory() error {
	initOnce.Do(func() {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			initErr = fmt.Errorf("failed to get home directory: %w", err)
			return
		}

		logDir = filepath.Join(homeDir, ".inreach", "logs")
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

// NewLogger creates a logger for a component writing to the shared execution
// log file. If the file cannot be opened it returns a stderr logger together
// with the error, so callers can warn and carry on.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	execID := getExecutionID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-inreach.log", execID))

	// Append mode: several components share the file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		executionID: execID,
		component:   component,
		file:        file,
		logger:      log.New(file, "", 0),
		logPath:     logPath,
		level:       currentDefaultLevel(),
	}, nil
}

// NewLoggerWithWriter creates a logger that writes to w instead of the log file.
func NewLoggerWithWriter(component string, w io.Writer) *Logger {
	return &Logger{
		executionID: getExecutionID(),
		component:   component,
		logger:      log.New(w, "", 0),
		level:       currentDefaultLevel(),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewLoggerWithWriter("discard", io.Discard)
}

func newFallbackLogger(component string, err error) *Logger {
	logger := log.New(os.Stderr, "", 0)
	logger.Printf("WARNING: Failed to initialize file logging: %v", err)
	logger.Printf("Falling back to stderr logging")

	return &Logger{
		executionID: getExecutionID(),
		component:   component,
		logger:      logger,
		level:       currentDefaultLevel(),
	}
}

// With returns a logger for a sub-component sharing the same output.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		executionID: l.executionID,
		component:   l.component + "/" + component,
		logger:      l.logger,
		logPath:     l.logPath,
		level:       l.level,
	}
}

// SetLevel sets the minimum level written by this logger.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) write(level Level, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	message := fmt.Sprintf(format, v...)
	l.logger.Printf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.write(LevelDebug, format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.write(LevelInfo, format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.write(LevelWarn, format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.write(LevelError, format, v...)
}

// Writer returns the underlying destination, for handing to libraries that
// only accept an io.Writer.
func (l *Logger) Writer() io.Writer {
	return l.logger.Writer()
}

// LogPath returns the path to the log file, or "" when not file backed.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// ExecutionID returns the identifier shared by every logger of this process.
func ExecutionID() string {
	return getExecutionID()
}
