package guard

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Chain — упорядоченный прогон guardrail'ов и агрегация вердиктов.
//
// Порядок: whitelist (короткое замыкание) -> burst -> rate limit.
// Все вердикты считаются всегда, даже в shadow-режиме — shadow меняет
// исключительно применяемый исход, не вычисления. Срезать вычисления
// "раз все равно пропустим" нельзя: сломается аудит.
type Chain struct {
	whitelist *Whitelist
	guards    []Guardrail
	shadow    bool
	metrics   *Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewChain(wl *Whitelist, shadow bool, metrics *Metrics, logger *zap.Logger, guards ...Guardrail) *Chain {
	return &Chain{
		whitelist: wl,
		guards:    guards,
		shadow:    shadow,
		metrics:   metrics,
		logger:    logger.With(zap.String("mod", "guard-chain")),
		now:       time.Now,
	}
}

// Evaluate выносит решение по одному запросу. Синхронно, только память,
// без I/O — завершается за микросекунды.
func (c *Chain) Evaluate(clientKey, traceID string) Decision {
	start := c.now()

	d := Decision{
		ID:         uuid.New().String(),
		TraceID:    traceID,
		ClientKey:  clientKey,
		Timestamp:  start,
		ShadowMode: c.shadow,
	}

	// 1. Whitelist первым: совпадение коротит цепочку, окна не трогаются
	if c.whitelist != nil && c.whitelist.Match(clientKey) {
		v := Verdict{Guardrail: GuardrailWhitelist, Outcome: OutcomeAllow, Reason: ReasonPassThrough}
		d.Verdicts = []Verdict{v}
		d.Outcome = OutcomeAllow
		d.Enforced = OutcomeAllow
		d.Guardrail = GuardrailWhitelist
		d.Reason = ReasonPassThrough
		d.Whitelisted = true

		c.observe(d, start)
		return d
	}

	// 2. Остальные guardrail'ы — каждый дает свой вердикт, все сохраняются
	d.Verdicts = make([]Verdict, 0, len(c.guards))
	for _, g := range c.guards {
		v := g.Check(clientKey, start)
		d.Verdicts = append(d.Verdicts, v)
		if v.Guardrail == GuardrailRateLimit {
			d.Rate = v.Metadata
		}
	}

	if len(d.Verdicts) == 0 {
		// Пустая цепочка — пропускаем (кроме whitelist ничего не сконфигурировано)
		d.Outcome = OutcomeAllow
		d.Enforced = OutcomeAllow
		c.observe(d, start)
		return d
	}

	// 3. Агрегация: побеждает ПЕРВЫЙ вердикт с наивысшим приоритетом
	// (deny > degrade > allow), остальные остаются в записи для аудита
	win := d.Verdicts[0]
	for _, v := range d.Verdicts[1:] {
		if v.Outcome.weight() > win.Outcome.weight() {
			win = v
		}
	}
	d.Outcome = win.Outcome
	d.Guardrail = win.Guardrail
	d.Reason = win.Reason

	// 4. Shadow-политика: внешний исход всегда allow, факт расхождения
	// фиксируем флагом. Запись решения выше не трогаем.
	d.Enforced = d.Outcome
	if c.shadow && d.Outcome != OutcomeAllow {
		d.Enforced = OutcomeAllow
		d.ShadowViolation = true
	}

	c.observe(d, start)
	return d
}

func (c *Chain) observe(d Decision, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.Observe(d, c.now().Sub(start))
}
