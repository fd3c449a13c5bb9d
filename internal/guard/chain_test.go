package guard

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestChain(t *testing.T, shadow bool, rateLimit, burstLimit int, whitelist []string) (*Chain, *WindowStore, func(time.Time)) {
	t.Helper()

	wl, err := NewWhitelist(whitelist)
	if err != nil {
		t.Fatalf("NewWhitelist: %v", err)
	}

	store := NewWindowStore(RateLimitWindow)
	c := NewChain(wl, shadow, nil, zap.NewNop(),
		NewBurstProtector(store, burstLimit),
		NewRateLimiter(store, rateLimit),
	)

	clock := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	return c, store, func(ts time.Time) { clock = ts }
}

// Секундный трафик с одного IP при пороге 3/60с и burst 2/10с:
// четвертый запрос упирается в оба порога, причиной становится burst.
func TestChainBurstBeforeRateLimit(t *testing.T) {
	t.Parallel()

	c, _, setClock := newTestChain(t, false, 3, 2, nil)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	steps := []struct {
		at        time.Duration
		outcome   Outcome
		guardrail string
		reason    string
		inWindow  int
	}{
		{0, OutcomeAllow, GuardrailRateLimit, ReasonWithinLimit, 1},
		{1 * time.Second, OutcomeAllow, GuardrailRateLimit, ReasonWithinLimit, 2},
		{2 * time.Second, OutcomeDeny, GuardrailBurst, ReasonBurstExceeded, 3},
		{3 * time.Second, OutcomeDeny, GuardrailBurst, ReasonBurstExceeded, 3},
	}

	for i, step := range steps {
		setClock(base.Add(step.at))
		d := c.Evaluate("198.51.100.1", "trace-1")

		if d.Outcome != step.outcome {
			t.Fatalf("step %d: outcome = %s, want %s", i, d.Outcome, step.outcome)
		}
		if d.Outcome == OutcomeDeny && d.Guardrail != step.guardrail {
			t.Errorf("step %d: guardrail = %s, want %s", i, d.Guardrail, step.guardrail)
		}
		if d.Outcome == OutcomeDeny && d.Reason != step.reason {
			t.Errorf("step %d: reason = %s, want %s", i, d.Reason, step.reason)
		}
		if d.Rate.RequestsInWindow != step.inWindow {
			t.Errorf("step %d: requests in window = %d, want %d", i, d.Rate.RequestsInWindow, step.inWindow)
		}
		// Оба вердикта всегда присутствуют в записи
		if len(d.Verdicts) != 2 {
			t.Errorf("step %d: verdicts = %d, want 2", i, len(d.Verdicts))
		}
		if d.Enforced != d.Outcome {
			t.Errorf("step %d: enforcement mode must apply the verdict as-is", i)
		}
	}
}

// Shadow-режим меняет только применяемый исход: вычисленные вердикты,
// причины и состояние окон идентичны enforcement-режиму.
func TestChainShadowMode(t *testing.T) {
	t.Parallel()

	shadowChain, shadowStore, setShadow := newTestChain(t, true, 2, 0, nil)
	enforceChain, enforceStore, setEnforce := newTestChain(t, false, 2, 0, nil)
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		setShadow(ts)
		setEnforce(ts)

		sd := shadowChain.Evaluate("198.51.100.2", "t")
		ed := enforceChain.Evaluate("198.51.100.2", "t")

		if sd.Outcome != ed.Outcome || sd.Reason != ed.Reason {
			t.Fatalf("request %d: shadow verdict %s/%s diverged from enforce %s/%s",
				i, sd.Outcome, sd.Reason, ed.Outcome, ed.Reason)
		}

		// Shadow никогда не блокирует; расхождение фиксируется флагом
		if sd.Enforced != OutcomeAllow {
			t.Errorf("request %d: shadow enforced = %s, want allow", i, sd.Enforced)
		}
		if sd.ShadowViolation != (sd.Outcome != OutcomeAllow) {
			t.Errorf("request %d: ShadowViolation = %v for outcome %s", i, sd.ShadowViolation, sd.Outcome)
		}
	}

	// Симметрия состояния: shadow ведет окна так же, как enforcement
	cutoff := base.Add(-time.Minute)
	if s, e := shadowStore.CountSince("198.51.100.2", cutoff), enforceStore.CountSince("198.51.100.2", cutoff); s != e {
		t.Errorf("window state diverged: shadow %d, enforce %d", s, e)
	}
}

func TestChainWhitelistShortCircuit(t *testing.T) {
	t.Parallel()

	c, store, _ := newTestChain(t, false, 1, 1, []string{"172.16.0.0/12"})

	for i := 0; i < 1000; i++ {
		d := c.Evaluate("172.16.5.5", "t")
		if d.Outcome != OutcomeAllow || !d.Whitelisted {
			t.Fatalf("request %d: whitelisted client must always pass", i)
		}
		if d.Guardrail != GuardrailWhitelist || d.Reason != ReasonPassThrough {
			t.Fatalf("request %d: got %s/%s", i, d.Guardrail, d.Reason)
		}
		if len(d.Verdicts) != 1 {
			t.Fatalf("request %d: short circuit must leave a single verdict", i)
		}
	}

	// Белый трафик не оставляет следов в окнах
	if store.Has("172.16.5.5") {
		t.Error("whitelisted client must not accumulate window state")
	}
}

func TestChainEmptyGuards(t *testing.T) {
	t.Parallel()

	wl, _ := NewWhitelist(nil)
	c := NewChain(wl, false, nil, zap.NewNop())

	d := c.Evaluate("8.8.8.8", "t")
	if d.Outcome != OutcomeAllow || d.Enforced != OutcomeAllow {
		t.Errorf("empty chain must allow, got %s/%s", d.Outcome, d.Enforced)
	}
}

func TestChainDecisionIdentity(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestChain(t, true, 100, 100, nil)

	d1 := c.Evaluate("9.9.9.9", "trace-a")
	d2 := c.Evaluate("9.9.9.9", "trace-a")

	if d1.ID == "" || d1.ID == d2.ID {
		t.Error("each decision must carry its own unique ID")
	}
	if d1.TraceID != "trace-a" || d1.ClientKey != "9.9.9.9" {
		t.Errorf("decision identity lost: %+v", d1)
	}
}
