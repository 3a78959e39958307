// Package logger implements a leveled, line-capped file logger shared by the
// whole process through package-level functions.
package logger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MaxLogLines caps the log file size; once exceeded the file is trimmed back
// to half.
const MaxLogLines = 5000

// Level represents the logging level.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level name used in log lines.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes timestamped, leveled lines to a file and trims the file when
// it grows past MaxLogLines.
type Logger struct {
	file      *os.File
	level     Level
	lineCount int
	mu        sync.Mutex
}

var global atomic.Pointer[Logger]

// fallback is used before Init has been called.
var fallback = &Logger{file: os.Stderr, level: LevelInfo}

// Init opens (or creates) the log file at path and installs the global
// logger. An empty path logs to stderr.
func Init(path string, level Level) (*Logger, error) {
	file := os.Stderr
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
	}

	l := &Logger{file: file, level: level}
	l.countExistingLines()
	global.Store(l)
	return l, nil
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	if l.file == os.Stderr {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) shouldLog(level Level) bool {
	return level >= l.level
}

func (l *Logger) log(level Level, format string, v ...any) {
	if !l.shouldLog(level) {
		return
	}
	msg := fmt.Sprintf("%s [%s] %s\n", time.Now().Format("2006/01/02 15:04:05"), level, fmt.Sprintf(format, v...))
	l.write([]byte(msg))
}

func (l *Logger) write(p []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(p); err != nil {
		return
	}
	l.lineCount += strings.Count(string(p), "\n")
	if l.lineCount > MaxLogLines {
		l.trim()
	}
}

// countExistingLines seeds lineCount from the current file contents so the
// cap holds across restarts.
func (l *Logger) countExistingLines() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return
	}
	scanner := bufio.NewScanner(l.file)
	count := 0
	for scanner.Scan() {
		count++
	}
	l.lineCount = count
	l.file.Seek(0, io.SeekEnd)
}

// trim keeps only the newest MaxLogLines/2 lines. Called with mu held.
func (l *Logger) trim() {
	keep := MaxLogLines / 2

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return
	}
	data, err := io.ReadAll(l.file)
	if err != nil {
		return
	}

	lines := strings.Split(string(data), "\n")
	// Split leaves a trailing empty element when the file ends with \n.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}

	kept := strings.Join(lines, "\n") + "\n"
	if err := l.file.Truncate(0); err != nil {
		return
	}
	l.file.Seek(0, io.SeekStart)
	l.file.WriteString(kept)
	l.lineCount = len(lines)
}

func get() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	return fallback
}

// noop is reused by Trace to avoid allocating when tracing is off.
var noop = func() {}

// Trace returns a function that logs the elapsed time since the call when
// invoked. Usage: defer logger.Trace("operation")()
func Trace(name string) func() {
	l := get()
	if !l.shouldLog(LevelTrace) {
		return noop
	}
	start := time.Now()
	return func() {
		l.log(LevelTrace, "%s: %v", name, time.Since(start))
	}
}

// Package-level logging functions using the global logger.
func Debug(format string, v ...any) { get().log(LevelDebug, format, v...) }
func Info(format string, v ...any)  { get().log(LevelInfo, format, v...) }
func Warn(format string, v ...any)  { get().log(LevelWarn, format, v...) }
func Error(format string, v ...any) { get().log(LevelError, format, v...) }

// Fatal logs at ERROR and exits.
func Fatal(format string, v ...any) {
	get().log(LevelError, format, v...)
	os.Exit(1)
}
