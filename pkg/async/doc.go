// Package async runs background tasks with panic recovery.
//
// Go starts a one-off task and Every a periodic one. Both log failures and panics
// with the task name instead of crashing the process, and both return a channel
// closed when the task stops:
//
//	async.Every(ctx, logger, 30*time.Second, "token cleanup", func(ctx context.Context) error {
//		tokens.CleanupExpiredTokens()
//		return nil
//	})
package async
