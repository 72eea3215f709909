package observability

import (
	"go.uber.org/zap"
)

// NewLogger returns a production JSON logger, or a human-friendly
// development logger otherwise.
func NewLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
