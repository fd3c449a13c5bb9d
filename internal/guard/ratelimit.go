package guard

import "time"

// RateLimitWindow — горизонт скользящего окна лимитера.
const RateLimitWindow = 60 * time.Second

// RateLimiter — скользящее окно по таймстемпам: лимит запросов на ключ за 60с.
type RateLimiter struct {
	store  *WindowStore
	limit  int
	window time.Duration
}

func NewRateLimiter(store *WindowStore, limit int) *RateLimiter {
	return &RateLimiter{
		store:  store,
		limit:  limit,
		window: RateLimitWindow,
	}
}

func (g *RateLimiter) Name() string { return GuardrailRateLimit }

func (g *RateLimiter) Check(key string, now time.Time) Verdict {
	// Порог 0 — лимитер выключен. Состояние не трогаем вовсе:
	// иначе выключенный лимитер копил бы окна по каждому IP без ограничений.
	if g.limit == 0 {
		return Verdict{
			Guardrail: GuardrailRateLimit,
			Outcome:   OutcomeAllow,
			Reason:    ReasonLimiterDisabled,
		}
	}

	count, oldest, ok := g.store.Reserve(key, now, g.limit)
	reset := oldest.Add(g.window)

	if !ok {
		// Порог достигнут. Запись НЕ произошла — отклоненный запрос
		// не отъедает будущее окно.
		return Verdict{
			Guardrail: GuardrailRateLimit,
			Outcome:   OutcomeDeny,
			Reason:    ReasonRateLimitExceeded,
			Metadata: VerdictMeta{
				Limit:            g.limit,
				Remaining:        0,
				RequestsInWindow: count,
				Reset:            reset,
			},
		}
	}

	return Verdict{
		Guardrail: GuardrailRateLimit,
		Outcome:   OutcomeAllow,
		Reason:    ReasonWithinLimit,
		Metadata: VerdictMeta{
			Limit:            g.limit,
			Remaining:        g.limit - count,
			RequestsInWindow: count,
			Reset:            reset,
		},
	}
}
