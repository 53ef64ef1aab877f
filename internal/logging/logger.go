package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var (
	root     *Logger
	rootOnce sync.Once
)

// Logger writes leveled, component-tagged lines to voco-debug.log.
// Transport and parse noise goes here instead of the user's terminal; the
// console renderer owns everything user-visible.
type Logger struct {
	mu        sync.Mutex
	out       io.Writer
	level     Level
	component string
}

// Root returns the shared logger, creating voco-debug.log in the user's home
// directory on first use. Falls back to stderr when the file cannot be opened.
func Root() *Logger {
	rootOnce.Do(func() {
		root = &Logger{out: os.Stderr, level: INFO}
		home, err := os.UserHomeDir()
		if err != nil {
			log.Printf("logging: resolve home dir: %v", err)
			return
		}
		path := filepath.Join(home, "voco-debug.log")
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("logging: open %s: %v", path, err)
			return
		}
		root.out = file
	})
	return root
}

// ForComponent returns a logger that tags every line with the component name.
func ForComponent(component string) *Logger {
	r := Root()
	return &Logger{out: r.out, level: r.level, component: component}
}

// SetLevel sets the minimum level for this logger.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput redirects the logger, used by tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

func (l *Logger) write(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level || l.out == nil {
		return
	}

	component := l.component
	if component == "" {
		component = "voco"
	}
	line := fmt.Sprintf("%s [%s] [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05"),
		levelString(level),
		component,
		fmt.Sprintf(format, args...),
	)
	fmt.Fprint(l.out, Sanitize(line))
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(format string, args ...interface{}) { l.write(DEBUG, format, args...) }

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...interface{}) { l.write(INFO, format, args...) }

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...interface{}) { l.write(WARN, format, args...) }

// Error logs at ERROR level.
func (l *Logger) Error(format string, args ...interface{}) { l.write(ERROR, format, args...) }

func levelString(level Level) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

const placeholder = "[REDACTED]"

var (
	bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-\._~+/]+=*)`)
	keyValPattern = regexp.MustCompile(
		`(?i)((?:"|')?(?:api[_-]?key|access[_-]?token|token|secret|password)(?:"|')?\s*(?:=|:)\s*)(?:"|')?([^"'\s,;]+)`,
	)
)

// Sanitize strips bearer tokens and key/secret values from a log line.
// Capability payloads can carry whole config files; they must not leak
// credentials into voco-debug.log.
func Sanitize(line string) string {
	out := bearerPattern.ReplaceAllString(line, "${1}"+placeholder)
	out = keyValPattern.ReplaceAllString(out, "${1}"+placeholder)
	return out
}
