package domain

import (
	"errors"
	"time"
)

// ErrNotFound возвращается репозиторием, когда записи нет.
var ErrNotFound = errors.New("not found")

// EvidenceRow — плоская проекция evidence-бандла для консоли аудита.
type EvidenceRow struct {
	EvidenceID         string    `json:"evidence_id"`
	Timestamp          time.Time `json:"timestamp"`
	DecisionID         string    `json:"decision_id"`
	Decision           string    `json:"decision"` // allowed|denied|degraded
	Guardrail          string    `json:"guardrail"`
	Reason             string    `json:"reason"`
	TraceID            string    `json:"trace_id"`
	ShadowMode         bool      `json:"shadow_mode"`
	ClientIP           string    `json:"client_ip"`
	RequestsInWindow   int       `json:"requests_in_window"`
	Limit              int       `json:"limit"`
	ContentHash        string    `json:"content_hash"`
	Signature          *string   `json:"signature"`
	LogUUID            *string   `json:"log_uuid,omitempty"`
	LogIndex           *int64    `json:"log_index,omitempty"`
	VerificationStatus string    `json:"verification_status"`
}
