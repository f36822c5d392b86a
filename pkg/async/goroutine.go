package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// Go runs fn in a goroutine with panic recovery. Errors and panics are logged under
// taskName. The returned channel is closed once fn has returned.
//
// Example:
//
//	async.Go(ctx, logger, "registry watcher", func(ctx context.Context) error {
//	    return config.WatchRegistry(ctx, path, registry, base, logger)
//	})
func Go(ctx context.Context, logger logrus.FieldLogger, taskName string, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx, logger, taskName, fn)
	}()
	return done
}

// Every runs fn once per interval until ctx is done. A run that fails or panics
// is logged and does not stop later runs.
func Every(ctx context.Context, logger logrus.FieldLogger, interval time.Duration, taskName string, fn func(context.Context) error) <-chan struct{} {
	return Go(ctx, logger, taskName, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				run(ctx, logger, taskName, fn)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

func run(ctx context.Context, logger logrus.FieldLogger, taskName string, fn func(context.Context) error) {
	log := logger.WithField("task", taskName)

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("background task panicked")
		}
	}()

	if err := fn(ctx); err != nil {
		log.WithError(err).Error("background task failed")
	}
}
