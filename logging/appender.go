package logging

import (
	"io"
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultTimeFormatStr is the time format used by every appender.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface, so
// zap cores (e.g. a zaptest observer) can be added to a logger directly.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed. E.g: at shutdown.
	Sync() error
}

// ConsoleAppender writes console encoded entries to a file, usually stdout.
type ConsoleAppender struct {
	*os.File
}

// NewStdoutAppender creates a new appender that writes to stdout.
func NewStdoutAppender() ConsoleAppender {
	return ConsoleAppender{os.Stdout}
}

// FileAppender writes console encoded entries to a size-rotated log file.
type FileAppender struct {
	*lumberjack.Logger
}

// NewFileAppender creates an appender that writes to the named file. The file is created on the
// first write and rotated once it reaches maxSizeMB megabytes, keeping two old copies.
func NewFileAppender(filename string, maxSizeMB int) FileAppender {
	return FileAppender{&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: 2,
		Compress:   true,
	}}
}

// Write outputs the entry with zap's console encoder.
func (appender FileAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return encodeTo(appender.Logger, entry, fields)
}

// Sync is a no-op; lumberjack does not buffer.
func (appender FileAppender) Sync() error {
	return nil
}

// Write outputs the entry with zap's console encoder.
func (appender ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return encodeTo(appender.File, entry, fields)
}

func encodeTo(w io.Writer, entry zapcore.Entry, fields []zapcore.Field) error {
	encoder := zapcore.NewConsoleEncoder(NewZapLoggerConfig().EncoderConfig)
	buf, err := encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	_, err = w.Write(buf.Bytes())
	return err
}

// Sync flushes the underlying file. Syncing stdout is not supported on every platform, so
// errors from it are dropped.
func (appender ConsoleAppender) Sync() error {
	if appender.File == os.Stdout || appender.File == os.Stderr {
		//nolint:errcheck
		appender.File.Sync()
		return nil
	}
	return appender.File.Sync()
}

// callerToString returns "dir/file.go:line"; TrimmedPath already carries the line.
func callerToString(caller *zapcore.EntryCaller) string {
	return caller.TrimmedPath()
}
