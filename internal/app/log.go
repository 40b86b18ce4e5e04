package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"kaloriq-go/internal/kq"
)

// LogFileName is the log file written inside log_dir.
const LogFileName = "kq.log"

// kqHandler is a slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
type kqHandler struct {
	w     io.Writer
	opID  string
	attrs []slog.Attr
}

func (h *kqHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *kqHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\t%s\t%s\t%s", r.Time.UTC().Format("2006-01-02T15:04:05Z"), r.Level, h.opID, r.Message)

	write := func(a slog.Attr) bool {
		fmt.Fprintf(&b, "\t%s=%v", a.Key, redactValue(a.Key, a.Value.Any()))
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)
	b.WriteByte('\n')

	// Each record is a single Write on h.w.
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *kqHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &kqHandler{
		w:     h.w,
		opID:  h.opID,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *kqHandler) WithGroup(string) slog.Handler { return h }

// newLogger opens log_dir/kq.log and returns a logger writing to it and to
// stderr. format is "tsv" (default) or "json". The returned closer flushes
// and closes the log file.
func newLogger(logDir, opID, format string) (kq.Logger, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	logPath := filepath.Join(logDir, LogFileName)

	switch format {
	case "", "tsv":
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		handler := &kqHandler{w: io.MultiWriter(f, os.Stderr), opID: opID}
		return &slogAdapter{l: slog.New(handler)}, f, nil

	case "json":
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.OutputPaths = []string{logPath, "stderr"}
		cfg.InitialFields = map[string]any{"op": opID}
		z, err := cfg.Build()
		if err != nil {
			return nil, nil, fmt.Errorf("building json logger: %w", err)
		}
		a := &zapAdapter{s: z.Sugar()}
		return a, a, nil

	default:
		return nil, nil, fmt.Errorf("unknown log format: %q", format)
	}
}

// slogAdapter wraps *slog.Logger to satisfy kq.Logger.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

// zapAdapter wraps a sugared zap logger to satisfy kq.Logger.
type zapAdapter struct {
	s *zap.SugaredLogger
}

func (a *zapAdapter) Debug(msg string, args ...any) { a.s.Debugw(msg, redactKVs(args)...) }
func (a *zapAdapter) Info(msg string, args ...any)  { a.s.Infow(msg, redactKVs(args)...) }
func (a *zapAdapter) Warn(msg string, args ...any)  { a.s.Warnw(msg, redactKVs(args)...) }
func (a *zapAdapter) Error(msg string, args ...any) { a.s.Errorw(msg, redactKVs(args)...) }

// Close flushes buffered entries. Sync on stderr fails on some platforms and
// is ignored.
func (a *zapAdapter) Close() error {
	_ = a.s.Sync()
	return nil
}

func redactKVs(kv []any) []any {
	out := make([]any, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		if key, ok := out[i].(string); ok {
			out[i+1] = redactValue(key, out[i+1])
		}
	}
	return out
}

// redactValue hides values logged under secret-looking keys.
func redactValue(key string, v any) any {
	k := strings.ToLower(key)
	for _, s := range []string{"passphrase", "password", "secret", "token"} {
		if strings.Contains(k, s) {
			return "[REDACTED]"
		}
	}
	return v
}

var (
	_ kq.Logger = (*slogAdapter)(nil)
	_ kq.Logger = (*zapAdapter)(nil)
)
