package guard

import "time"

// BurstWindow — короткий горизонт burst-защиты.
const BurstWindow = 10 * time.Second

// BurstProtector ловит шквальные паттерны: счетчик за последние 10с
// поверх того же хранилища меток, что у rate-лимитера. Свое состояние
// не ведет — одна запись, два независимых чтения.
//
// В цепочке стоит ДО rate-лимитера и смотрит на окно без метки текущего
// запроса: запрос, упершийся одновременно в оба порога, получает причину
// burst_limit_exceeded.
type BurstProtector struct {
	store  *WindowStore
	limit  int
	window time.Duration
}

func NewBurstProtector(store *WindowStore, limit int) *BurstProtector {
	return &BurstProtector{
		store:  store,
		limit:  limit,
		window: BurstWindow,
	}
}

func (g *BurstProtector) Name() string { return GuardrailBurst }

func (g *BurstProtector) Check(key string, now time.Time) Verdict {
	if g.limit == 0 {
		return Verdict{
			Guardrail: GuardrailBurst,
			Outcome:   OutcomeAllow,
			Reason:    ReasonLimiterDisabled,
		}
	}

	count := g.store.CountSince(key, now.Add(-g.window))
	if count >= g.limit {
		return Verdict{
			Guardrail: GuardrailBurst,
			Outcome:   OutcomeDeny,
			Reason:    ReasonBurstExceeded,
			Metadata: VerdictMeta{
				Limit:            g.limit,
				RequestsInWindow: count,
			},
		}
	}

	return Verdict{
		Guardrail: GuardrailBurst,
		Outcome:   OutcomeAllow,
		Reason:    ReasonWithinBurst,
		Metadata: VerdictMeta{
			Limit:            g.limit,
			RequestsInWindow: count,
		},
	}
}
