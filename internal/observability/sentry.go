package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

const sentryFlushTimeout = 2 * time.Second

// InitSentry is a no-op without a DSN so local development needs no Sentry
// project.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
		SampleRate:       1.0,
	})
}

// FlushSentry drains buffered events before shutdown. Serverless runtimes
// freeze the process right after the response, so this runs on every Close.
func FlushSentry() {
	sentry.Flush(sentryFlushTimeout)
}
