// Package logger holds the process-wide zap sugared logger.
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	sugar *zap.SugaredLogger
	once  sync.Once
)

// Init builds the shared logger once. "production" selects the JSON
// encoder; anything else gets the console encoder for local reading.
func Init(env string) {
	once.Do(func() {
		var base *zap.Logger
		var err error

		if env == "production" {
			base, err = zap.NewProduction()
		} else {
			base, err = zap.NewDevelopment()
		}

		if err != nil {
			// A process without logging still has to run.
			base = zap.NewNop()
		}

		sugar = base.Sugar()
	})
}

// Get returns the shared sugared logger, initializing a development
// one when Init was never called (tests mostly).
func Get() *zap.SugaredLogger {
	if sugar == nil {
		Init("development")
	}
	return sugar
}

// Sync flushes buffered entries. Deferred from main.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}
