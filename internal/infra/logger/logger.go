package logger

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// New returns a singleton zap.Logger configured for structured logging.
func New(env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		lg, err = cfg.Build()
	})

	return lg, err
}

// WithContext attaches request scoped fields to the logger.
func WithContext(ctx context.Context) *zap.Logger {
	if lg == nil {
		lz, _ := zap.NewDevelopment()
		return lz
	}

	if ctx == nil {
		return lg
	}

	return lg.With(zap.String("request_id", requestIDFromContext(ctx)))
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(RequestIDKey{}).(string); ok {
		return val
	}
	return ""
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

// MaskPhone masks phone numbers, showing the country code and last two
// digits. Contact handles are PII and never logged in full.
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}
	if len(phone) > 6 && strings.HasPrefix(phone, "+") {
		return phone[:3] + "***" + phone[len(phone)-2:]
	}
	if len(phone) > 4 {
		return "***" + phone[len(phone)-2:]
	}
	return "***"
}

// MaskIP masks the host portion of an IP address, keeping the first octet.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}
	if idx := strings.Index(ip, "."); idx > 0 {
		return ip[:idx] + ".***"
	}
	if idx := strings.Index(ip, ":"); idx > 0 {
		return ip[:idx] + ":***"
	}
	return "***"
}

// MaskString masks arbitrary sensitive strings, keeping the first and last
// two characters.
func MaskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "***"
	}
	return s[:2] + "***" + s[len(s)-2:]
}
