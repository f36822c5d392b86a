package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
	}
}

func TestGo_Success(t *testing.T) {
	logger, hook := test.NewNullLogger()
	executed := atomic.Bool{}

	wait(t, Go(context.Background(), logger, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	}))

	if !executed.Load() {
		t.Error("Go did not execute function")
	}
	if len(hook.AllEntries()) != 0 {
		t.Errorf("unexpected log entries: %d", len(hook.AllEntries()))
	}
}

func TestGo_WithError(t *testing.T) {
	logger, hook := test.NewNullLogger()

	wait(t, Go(context.Background(), logger, "test task", func(ctx context.Context) error {
		return errors.New("test error")
	}))

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("error was not logged")
	}
	if entry.Level != logrus.ErrorLevel || entry.Data["task"] != "test task" {
		t.Errorf("logged %v %v, want an error for the task", entry.Level, entry.Data)
	}
	if err, _ := entry.Data[logrus.ErrorKey].(error); err == nil || err.Error() != "test error" {
		t.Errorf("logged error = %v, want test error", entry.Data[logrus.ErrorKey])
	}
}

func TestGo_PanicRecovery(t *testing.T) {
	logger, hook := test.NewNullLogger()

	wait(t, Go(context.Background(), logger, "test task", func(ctx context.Context) error {
		panic("test panic")
	}))

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "background task panicked" {
		t.Fatalf("panic was not logged: %v", entry)
	}
	if entry.Data["panic"] != "test panic" {
		t.Errorf("panic value = %v, want test panic", entry.Data["panic"])
	}
}

func TestGo_ContextCancellation(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())

	done := Go(ctx, logger, "test task", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	cancel()
	wait(t, done)
}

func TestEvery(t *testing.T) {
	logger, hook := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	runs := atomic.Int32{}

	done := Every(ctx, logger, 5*time.Millisecond, "ticker", func(ctx context.Context) error {
		n := runs.Add(1)
		switch n {
		case 1:
			return errors.New("first run fails")
		case 2:
			panic("second run panics")
		}
		return nil
	})

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	wait(t, done)

	if runs.Load() < 4 {
		t.Fatalf("runs = %d, want at least 4", runs.Load())
	}
	if len(hook.AllEntries()) != 2 {
		t.Errorf("log entries = %d, want 2", len(hook.AllEntries()))
	}
}
