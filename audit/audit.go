// Package audit appends audit records to one JSON lines file per event type.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

const unknownIP = "unknown"

type ipKey struct{}

// WithClientIP stores the originating client address for records made with ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

// ClientIPFrom returns the address stored by WithClientIP, or "unknown".
func ClientIPFrom(ctx context.Context) string {
	if ip, ok := ctx.Value(ipKey{}).(string); ok && ip != "" {
		return ip
	}
	return unknownIP
}

// ClientIP resolves the client address of a request: the Cloudflare edge
// header first, then the first hop of X-Forwarded-For, then the peer address.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if r.RemoteAddr == "" {
		return unknownIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

var eventName = regexp.MustCompile(`^[a-z0-9_]+$`)

// Log writes records to <dir>/<event>.log. Files are opened lazily and kept
// open until Close.
type Log struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	streams map[string]*slog.Logger
	files   []*os.File
}

// Open creates the directory if needed. logger receives write failures.
func Open(dir string, logger *slog.Logger) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		dir:     dir,
		logger:  logger,
		streams: make(map[string]*slog.Logger),
	}, nil
}

// replaceAttr turns slog's record layout into {"timestamp", "ip", "details"}.
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		return slog.String("timestamp", a.Value.Time().UTC().Format(time.RFC3339Nano))
	case slog.LevelKey, slog.MessageKey:
		return slog.Attr{}
	}
	return a
}

func (l *Log) stream(event string) (*slog.Logger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.streams[event]; ok {
		return s, nil
	}

	f, err := os.OpenFile(filepath.Join(l.dir, event+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	s := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{ReplaceAttr: replaceAttr}))
	l.streams[event] = s
	l.files = append(l.files, f)
	return s, nil
}

// Record appends one record to the event's file. Failures are logged, not returned.
func (l *Log) Record(ctx context.Context, event string, details map[string]any) {
	if !eventName.MatchString(event) {
		l.logger.Error("refusing audit record with bad event name", "event", event)
		return
	}

	s, err := l.stream(event)
	if err != nil {
		l.logger.Error("failed to open audit log", "event", event, "error", err)
		return
	}

	s.LogAttrs(ctx, slog.LevelInfo, "",
		slog.String("ip", ClientIPFrom(ctx)),
		slog.Any("details", details),
	)
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	l.files = nil
	l.streams = make(map[string]*slog.Logger)
	return errors.Join(errs...)
}
