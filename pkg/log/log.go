package log

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
)

var (
	defaultLogLevel slog.LevelVar
	// stdout is reserved for command output so logs go to stderr
	defaultLogger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     &defaultLogLevel,
	}))
)

func init() {
	defaultLogLevel.Set(slog.LevelInfo)
}

type contextKey struct{}

var loggerKey = contextKey{}

// Ctx returns the logger from the context. If no logger is found, it returns the default logger.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a new context with the given logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

func SetDefaultLogLevel(level slog.Level) {
	defaultLogLevel.Set(level)
}

const redacted = "***"

var sensitiveHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

var sensitiveFields = map[string]bool{
	"client_secret": true,
	"token":         true,
	"access_token":  true,
}

// Header returns an attribute group with one entry per header. Credentials
// are masked.
func Header(key string, h http.Header) slog.Attr {
	attrs := make([]any, 0, len(h))
	for name, values := range h {
		v := strings.Join(values, ", ")
		if sensitiveHeaders[http.CanonicalHeaderKey(name)] {
			v = redacted
		}
		attrs = append(attrs, slog.String(name, v))
	}
	return slog.Group(key, attrs...)
}

// Form returns the encoded form values with secret fields masked.
func Form(key string, v url.Values) slog.Attr {
	if len(v) == 0 {
		return slog.String(key, "")
	}
	masked := make(url.Values, len(v))
	for field, values := range v {
		if sensitiveFields[field] {
			masked[field] = []string{redacted}
			continue
		}
		masked[field] = values
	}
	return slog.String(key, masked.Encode())
}

// Cookies returns the cookie names sent back by a server. Values are never
// logged.
func Cookies(key string, cookies []*http.Cookie) slog.Attr {
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	return slog.Any(key, names)
}

// Body returns a response body. Token fields of a JSON object body are
// masked, anything else is logged verbatim.
func Body(key string, body []byte) slog.Attr {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return slog.String(key, string(body))
	}
	var masked bool
	for field := range obj {
		if sensitiveFields[field] {
			obj[field] = redacted
			masked = true
		}
	}
	if !masked {
		return slog.String(key, string(body))
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return slog.String(key, redacted)
	}
	return slog.String(key, string(b))
}
