package observability

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/noah-isme/attendly-api/pkg/config"
)

// InitSentry initialises the error reporter. The returned flush func is safe
// to call even when the DSN is empty and reporting is disabled.
func InitSentry(cfg config.SentryConfig, env string) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: env,
		Release:     cfg.Release,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureErr forwards non-nil errors to the reporter.
func CaptureErr(err error) {
	if err != nil {
		sentry.CaptureException(err)
	}
}
