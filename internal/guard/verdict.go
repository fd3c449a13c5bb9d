package guard

import "time"

// Outcome — исход отдельной проверки или агрегированного решения.
type Outcome string

const (
	OutcomeAllow   Outcome = "allow"
	OutcomeDegrade Outcome = "degrade"
	OutcomeDeny    Outcome = "deny"
)

// weight задает приоритет агрегации: deny > degrade > allow.
func (o Outcome) weight() int {
	switch o {
	case OutcomeDeny:
		return 2
	case OutcomeDegrade:
		return 1
	default:
		return 0
	}
}

// Final переводит внутренний исход в терминологию evidence-записи.
func (o Outcome) Final() string {
	switch o {
	case OutcomeDeny:
		return "denied"
	case OutcomeDegrade:
		return "degraded"
	default:
		return "allowed"
	}
}

// Имена guardrail'ов и коды причин. Фиксированные строки: по ним строятся
// метрики и ищутся evidence-записи, менять без миграции нельзя.
const (
	GuardrailWhitelist = "whitelist"
	GuardrailBurst     = "burst_protector"
	GuardrailRateLimit = "rate_limit"

	ReasonPassThrough       = "pass_through"
	ReasonWithinLimit       = "within_limit"
	ReasonWithinBurst       = "within_burst"
	ReasonLimiterDisabled   = "limiter_disabled"
	ReasonRateLimitExceeded = "rate_limit_exceeded"
	ReasonBurstExceeded     = "burst_limit_exceeded"
)

// VerdictMeta — численный контекст вердикта (для заголовков и evidence).
type VerdictMeta struct {
	Limit            int
	Remaining        int
	RequestsInWindow int
	Reset            time.Time
}

// Verdict — неизменяемый результат одной проверки. Создается ровно один раз
// за запрос на guardrail и дальше не мутируется.
type Verdict struct {
	Guardrail string
	Outcome   Outcome
	Reason    string
	Metadata  VerdictMeta
}

// Decision — агрегат всех вердиктов одного запроса.
//
// Центральный инвариант: Outcome/Reason/Verdicts — это то, что РЕШЕНО,
// Enforced — то, что ПРИМЕНЕНО к HTTP-ответу. Shadow-режим меняет только
// Enforced (и ставит ShadowViolation), запись решения остается нетронутой.
type Decision struct {
	ID        string
	TraceID   string
	ClientKey string
	Timestamp time.Time

	Outcome   Outcome // внутренний агрегированный вердикт
	Enforced  Outcome // внешне наблюдаемый исход
	Guardrail string  // чей вердикт "победил"
	Reason    string

	ShadowMode      bool
	ShadowViolation bool // true, если в shadow-режиме внутренний вердикт был deny/degrade
	Whitelisted     bool

	Verdicts []Verdict
	Rate     VerdictMeta // срез метаданных rate-лимитера для заголовков ответа
}

// Guardrail — независимая проверка запроса. Check обязан быть быстрым,
// только in-memory, без сети и диска: он стоит на hot path каждого запроса.
type Guardrail interface {
	Name() string
	Check(key string, now time.Time) Verdict
}
