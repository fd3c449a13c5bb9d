package guard

import (
	"testing"
	"time"
)

func TestBurstProtectorPreAppendWindow(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	store := NewWindowStore(RateLimitWindow)
	bp := NewBurstProtector(store, 2)

	// Burst смотрит на окно ДО записи текущего запроса
	v := bp.Check("k", base)
	if v.Outcome != OutcomeAllow || v.Metadata.RequestsInWindow != 0 {
		t.Fatalf("empty window: got %s/%d", v.Outcome, v.Metadata.RequestsInWindow)
	}

	store.Reserve("k", base, 100)
	store.Reserve("k", base.Add(time.Second), 100)

	v = bp.Check("k", base.Add(2*time.Second))
	if v.Outcome != OutcomeDeny {
		t.Fatalf("outcome = %s, want deny at burst limit", v.Outcome)
	}
	if v.Reason != ReasonBurstExceeded {
		t.Errorf("reason = %s, want %s", v.Reason, ReasonBurstExceeded)
	}
	if v.Metadata.RequestsInWindow != 2 {
		t.Errorf("requests in window = %d, want 2", v.Metadata.RequestsInWindow)
	}
}

func TestBurstProtectorShortHorizon(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	store := NewWindowStore(RateLimitWindow)
	bp := NewBurstProtector(store, 2)

	store.Reserve("k", base, 100)
	store.Reserve("k", base.Add(time.Second), 100)

	// Через 11 секунд обе метки еще живы для 60с лимитера,
	// но уже вне 10с горизонта burst-защиты
	v := bp.Check("k", base.Add(11*time.Second))
	if v.Outcome != OutcomeAllow {
		t.Fatalf("outcome = %s, want allow outside burst horizon", v.Outcome)
	}
	if got := store.CountSince("k", base.Add(-time.Second)); got != 2 {
		t.Errorf("long window count = %d, want 2", got)
	}
}

func TestBurstProtectorDisabled(t *testing.T) {
	t.Parallel()

	store := NewWindowStore(RateLimitWindow)
	bp := NewBurstProtector(store, 0)

	v := bp.Check("k", time.Now())
	if v.Outcome != OutcomeAllow || v.Reason != ReasonLimiterDisabled {
		t.Errorf("verdict = %s/%s, want allow/%s", v.Outcome, v.Reason, ReasonLimiterDisabled)
	}
}
