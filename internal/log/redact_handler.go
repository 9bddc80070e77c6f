package log

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// sensitiveKeys lists attribute keys whose values are always masked.
// Keys are compared case-insensitively after trimming separators.
var sensitiveKeys = map[string]bool{
	// Credentials
	"password":         true,
	"passwd":           true,
	"encrypted_passwd": true,
	"credential":       true,

	// Tokens issued by the service
	"token":          true,
	"master_token":   true,
	"refresh_token":  true,
	"bearer_token":   true,
	"auth":           true,
	"download_token": true,

	// HTTP surfaces that carry the above
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
}

// sensitivePatterns matches values that look like credentials regardless of
// the attribute key they travel under.
var sensitivePatterns = []*regexp.Regexp{
	// "GoogleLogin auth=..." style authorization values
	regexp.MustCompile(`(?i)^[a-z]+login\s+auth=.+`),

	// Bearer tokens
	regexp.MustCompile(`(?i)^bearer\s+.+`),

	// Long opaque token strings (auth tokens are 100+ chars of base64url)
	regexp.MustCompile(`^[A-Za-z0-9_-]{64,}$`),
}

// MaskValue replaces sensitive attribute values in log output.
const MaskValue = "***REDACTED***"

// RedactHandler wraps an slog.Handler and masks credential-bearing
// attributes before delegating. It works with any underlying handler and
// composes with slog's WithAttrs/WithGroup as usual.
type RedactHandler struct {
	handler slog.Handler
}

// NewRedactHandler creates a RedactHandler wrapping the given handler.
// If handler is nil, slog.Default().Handler() is used.
func NewRedactHandler(handler slog.Handler) *RedactHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &RedactHandler{handler: handler}
}

// Enabled delegates to the underlying handler.
func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle masks the record's attributes and passes it on.
func (h *RedactHandler) Handle(ctx context.Context, r slog.Record) error {
	masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(h.maskAttr(a))
		return true
	})
	return h.handler.Handle(ctx, masked)
}

// WithAttrs returns a new handler with the given attributes added, masked.
func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	maskedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		maskedAttrs[i] = h.maskAttr(a)
	}
	return &RedactHandler{handler: h.handler.WithAttrs(maskedAttrs)}
}

// WithGroup returns a new handler with the given group name.
func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{handler: h.handler.WithGroup(name)}
}

// maskAttr masks a single attribute, recursing into groups.
func (h *RedactHandler) maskAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		maskedAttrs := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			maskedAttrs[i] = h.maskAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(maskedAttrs...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}

	if a.Value.Kind() == slog.KindString && isSensitiveValue(a.Value.String()) {
		return slog.String(a.Key, MaskValue)
	}

	return a
}

// isSensitiveKey reports whether the key names a credential-bearing field.
func isSensitiveKey(key string) bool {
	normalized := strings.ToLower(key)
	if sensitiveKeys[normalized] {
		return true
	}
	// Also match dotted/dashed variants like "http.request.authorization".
	if idx := strings.LastIndexAny(normalized, ".-/"); idx >= 0 && idx < len(normalized)-1 {
		return sensitiveKeys[normalized[idx+1:]]
	}
	return false
}

// isSensitiveValue reports whether the value looks like a credential.
func isSensitiveValue(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
