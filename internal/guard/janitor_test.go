package guard

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestJanitorSweepsExpiredKeys(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	store := NewWindowStore(RateLimitWindow)
	store.Reserve("stale", base, 10)
	store.Reserve("live", base.Add(55*time.Second), 10)

	j := NewJanitor(store, time.Millisecond, nil, zap.NewNop())
	j.now = func() time.Time { return base.Add(70 * time.Second) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	// Ждем, пока таймер уборки отработает хотя бы раз
	deadline := time.After(2 * time.Second)
	for store.Has("stale") {
		select {
		case <-deadline:
			t.Fatal("janitor did not sweep the stale key in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !store.Has("live") {
		t.Error("live key must survive the sweep")
	}

	// Отмена контекста останавливает цикл
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop on context cancel")
	}
}
