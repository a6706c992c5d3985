// Package logging builds the zap loggers used across chunklite.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New constructs a SugaredLogger. Debug mode enables the verbose development
// encoder; otherwise the JSON production encoder writes to stderr so command
// output on stdout stays machine-parseable.
func New(debug bool) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error

	if debug {
		z := zap.NewDevelopmentConfig()
		z.OutputPaths = []string{"stderr"}
		logger, err = z.Build()
	} else {
		z := zap.NewProductionConfig()
		z.OutputPaths = []string{"stderr"}
		logger, err = z.Build()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	zap.ReplaceGlobals(logger)
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything. Used by tests and by
// callers that have not configured logging yet.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
