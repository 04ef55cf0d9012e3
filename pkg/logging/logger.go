package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/fatih/color"
)

// writer is an io.Writer that splits its input stream into lines and writes
// those lines to an underlying logger.
type writer struct {
	// callback is the logging callback.
	callback func(string)
	// buffer is any incomplete line fragment left over from a previous write.
	buffer []byte
}

// trimCarriageReturn trims any single trailing carriage return from the end of
// a byte slice.
func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

// Write implements io.Writer.Write.
func (w *writer) Write(buffer []byte) (int, error) {
	w.buffer = append(w.buffer, buffer...)

	var processed int
	remaining := w.buffer
	for {
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}

	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	return len(buffer), nil
}

// Logger is the main logger type. A nil *Logger is valid and simply discards
// everything written to it. Loggers are safe for concurrent use.
type Logger struct {
	// output is the destination for all log lines.
	output *log.Logger
	// level controls which severities are emitted.
	level Level
	// prefix is any sublogger prefix, applied in addition to the underlying
	// standard logger's own prefix.
	prefix string
	// levelLock guards level since it may be adjusted after construction (e.g.
	// by a signal handler toggling verbosity).
	levelLock sync.RWMutex
}

// NewLogger creates a new root logger that writes to the specified writer at
// the specified level.
func NewLogger(w io.Writer, level Level) *Logger {
	return &Logger{
		output: log.New(w, "", log.Ldate|log.Ltime),
		level:  level,
	}
}

// Sublogger creates a new sublogger with the specified name, inheriting the
// parent's output and level.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{
		output: l.output,
		level:  l.Level(),
		prefix: prefix,
	}
}

// Level returns the logger's current level.
func (l *Logger) Level() Level {
	if l == nil {
		return LevelDisabled
	}
	l.levelLock.RLock()
	defer l.levelLock.RUnlock()
	return l.level
}

// SetLevel adjusts the logger's level.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.levelLock.Lock()
	l.level = level
	l.levelLock.Unlock()
}

// enabled reports whether the given level should be emitted.
func (l *Logger) enabled(level Level) bool {
	return l != nil && l.Level() >= level
}

func (l *Logger) line(line string) string {
	if l.prefix != "" {
		return fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	return line
}

// Error logs error-level information.
func (l *Logger) Error(v ...any) {
	if l.enabled(LevelError) {
		l.output.Output(3, l.line(color.RedString(fmt.Sprint(v...))))
	}
}

// Errorf logs error-level information with formatting.
func (l *Logger) Errorf(format string, v ...any) {
	if l.enabled(LevelError) {
		l.output.Output(3, l.line(color.RedString(fmt.Sprintf(format, v...))))
	}
}

// Warn logs warning-level information.
func (l *Logger) Warn(v ...any) {
	if l.enabled(LevelWarn) {
		l.output.Output(3, l.line(color.YellowString(fmt.Sprint(v...))))
	}
}

// Warnf logs warning-level information with formatting.
func (l *Logger) Warnf(format string, v ...any) {
	if l.enabled(LevelWarn) {
		l.output.Output(3, l.line(color.YellowString(fmt.Sprintf(format, v...))))
	}
}

// Info logs informational output.
func (l *Logger) Info(v ...any) {
	if l.enabled(LevelInfo) {
		l.output.Output(3, l.line(fmt.Sprint(v...)))
	}
}

// Infof logs informational output with formatting.
func (l *Logger) Infof(format string, v ...any) {
	if l.enabled(LevelInfo) {
		l.output.Output(3, l.line(fmt.Sprintf(format, v...)))
	}
}

// Debug logs advanced execution information.
func (l *Logger) Debug(v ...any) {
	if l.enabled(LevelDebug) {
		l.output.Output(3, l.line(fmt.Sprint(v...)))
	}
}

// Debugf logs advanced execution information with formatting.
func (l *Logger) Debugf(format string, v ...any) {
	if l.enabled(LevelDebug) {
		l.output.Output(3, l.line(fmt.Sprintf(format, v...)))
	}
}

// Writer returns an io.Writer that writes lines to the logger at info level.
func (l *Logger) Writer() io.Writer {
	if l == nil {
		return io.Discard
	}
	return &writer{callback: func(s string) { l.Info(s) }}
}
