// Package auditlog appends one line per anonymization request to a local
// file. The file is opened in append mode and never truncated. It is only
// rotated when WithRotation is given.
//
// Writes are best effort: Record never fails the caller. A line that cannot
// be written is counted (see Dropped) and reported on the process logger.
package auditlog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dativo-io/veil/internal/metrics"
	veilotel "github.com/dativo-io/veil/internal/otel"
)

// Supported line formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// DefaultPath is where the audit log lives unless configured otherwise.
const DefaultPath = "logs/anonymization.log"

const textTimeLayout = "2006-01-02 15:04:05,000"

// Entry is one anonymization event.
type Entry struct {
	Method     string
	Language   string
	Original   string
	Anonymized string
}

// Log is an append-only audit log. It is safe for concurrent use.
type Log struct {
	path    string
	format  string
	sink    io.WriteCloser
	logger  zerolog.Logger
	dropped atomic.Int64
	closed  atomic.Bool
	once    sync.Once

	now func() time.Time
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	maxSizeMB  int
	maxBackups int
}

// WithRotation rotates the file once it reaches maxSizeMB, keeping at most
// maxBackups old files (0 keeps all). maxSizeMB <= 0 disables rotation.
func WithRotation(maxSizeMB, maxBackups int) Option {
	return func(o *openOptions) {
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
	}
}

// Open creates path (and its parent directories) if needed and opens it for
// appending. format is FormatText or FormatJSON; empty means text.
func Open(path, format string, opts ...Option) (*Log, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	if path == "" {
		path = DefaultPath
	}
	if format == "" {
		format = FormatText
	}
	if format != FormatText && format != FormatJSON {
		return nil, fmt.Errorf("unknown audit log format %q (want %s or %s)", format, FormatText, FormatJSON)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	var sink io.WriteCloser = f
	if o.maxSizeMB > 0 {
		// lumberjack opens the file lazily; the handle above only proves it is writable.
		_ = f.Close()
		sink = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    o.maxSizeMB,
			MaxBackups: o.maxBackups,
			LocalTime:  true,
		}
	}

	l := &Log{path: path, format: format, sink: sink, now: time.Now}
	out := zerolog.SyncWriter(&dropWriter{w: sink, log: l})
	if format == FormatText {
		out = textWriter(out)
	}
	l.logger = zerolog.New(out).Level(zerolog.InfoLevel)
	return l, nil
}

// textWriter renders events as "<time> - INFO - <message>". ConsoleWriter
// emits each event with a single Write on out.
func textWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:             out,
		NoColor:         true,
		PartsOrder:      []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FormatTimestamp: func(i interface{}) string { return fmt.Sprint(i) },
		FormatLevel: func(i interface{}) string {
			return "- " + strings.ToUpper(fmt.Sprint(i)) + " -"
		},
	}
}

var lineEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

// Record appends e. It never returns an error.
func (l *Log) Record(ctx context.Context, e Entry) {
	if l.closed.Load() {
		l.drop(fmt.Errorf("audit log closed"))
		return
	}
	now := l.now()
	if l.format == FormatJSON {
		l.logger.Info().
			Str(zerolog.TimestampFieldName, now.Format(time.RFC3339Nano)).
			Str("id", uuid.NewString()).
			Str("method", e.Method).
			Str("language", e.Language).
			Str("original", e.Original).
			Str("anonymized", e.Anonymized).
			Func(veilotel.LogTraceFields(ctx)).
			Msg("Request Anonymized")
		return
	}
	l.logger.Info().
		Str(zerolog.TimestampFieldName, now.Format(textTimeLayout)).
		Msgf("Request Anonymized | Method: %s | Language: %s | Original: '%s' | Anonymized: '%s'",
			lineEscaper.Replace(e.Method),
			lineEscaper.Replace(e.Language),
			lineEscaper.Replace(e.Original),
			lineEscaper.Replace(e.Anonymized))
}

// Dropped reports how many entries could not be written.
func (l *Log) Dropped() int64 {
	return l.dropped.Load()
}

// Path returns the file the log appends to.
func (l *Log) Path() string {
	return l.path
}

// Close syncs and closes the file. Calling it more than once is harmless.
func (l *Log) Close() error {
	var err error
	l.once.Do(func() {
		l.closed.Store(true)
		if f, ok := l.sink.(*os.File); ok {
			if serr := f.Sync(); serr != nil {
				err = fmt.Errorf("syncing audit log: %w", serr)
			}
		}
		if cerr := l.sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing audit log: %w", cerr)
		}
	})
	return err
}

func (l *Log) drop(err error) {
	n := l.dropped.Add(1)
	metrics.AuditDropped.Inc()
	log.Warn().Err(err).Str("path", l.path).Int64("dropped_total", n).Msg("audit_log_write_failed")
}

// dropWriter swallows write errors after counting them, so zerolog never
// reports them on stderr and callers never see them.
type dropWriter struct {
	w   io.Writer
	log *Log
}

func (d *dropWriter) Write(p []byte) (int, error) {
	if _, err := d.w.Write(p); err != nil {
		d.log.drop(err)
	}
	return len(p), nil
}
