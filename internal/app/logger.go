package app

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process-wide zap logger. Production output is
// JSON; anything else gets the human-readable development encoder.
func NewLogger(env string) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	switch env {
	case "production":
		logger, err = zap.NewProduction()
	default:
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}
