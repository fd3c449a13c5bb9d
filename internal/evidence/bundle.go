package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xela07ax/integrity-gate/internal/guard"
)

// Статусы верификации. "failed" — полноценное терминальное состояние,
// а не ошибка: бандл все равно персистится и доступен для запросов.
const (
	StatusSigned = "signed"
	StatusFailed = "failed"
)

// TransparencyLogEntry — координаты записи во внешнем transparency log.
type TransparencyLogEntry struct {
	UUID  string `json:"uuid"`
	Index int64  `json:"index"`
}

// Metadata — контекст решения в evidence-записи.
type Metadata struct {
	ClientIP         string `json:"client_ip"`
	RequestsInWindow int    `json:"requests_in_window"`
	Limit            int    `json:"limit"`
}

// DecisionRecord — каноническая форма решения для хеширования и подписи.
// Порядок полей фиксирован структурой: encoding/json сериализует поля
// в порядке объявления, это и есть наша каноническая байтовая форма.
type DecisionRecord struct {
	DecisionID string   `json:"decision_id"`
	Decision   string   `json:"decision"` // allowed|denied|degraded
	Guardrail  string   `json:"guardrail"`
	Reason     string   `json:"reason"`
	TraceID    string   `json:"trace_id"`
	ShadowMode bool     `json:"shadow_mode"`
	Metadata   Metadata `json:"metadata"`
}

// Bundle — долговечный артефакт: одно решение, один бандл, одна запись.
// После создания не мутируется.
type Bundle struct {
	EvidenceID           string                `json:"evidence_id"`
	Timestamp            time.Time             `json:"timestamp"`
	Decision             DecisionRecord        `json:"decision"`
	ContentHash          string                `json:"content_hash"`
	Signature            *string               `json:"signature"` // null, если подпись не состоялась
	TransparencyLogEntry *TransparencyLogEntry `json:"transparency_log_entry,omitempty"`
	VerificationStatus   string                `json:"verification_status"`
}

// NewRecord снимает evidence-проекцию с решения. Внутренний вердикт
// переносится как есть: в shadow-режиме сюда попадает denied/degraded,
// даже если HTTP-ответ был 200.
func NewRecord(d guard.Decision) DecisionRecord {
	return DecisionRecord{
		DecisionID: d.ID,
		Decision:   d.Outcome.Final(),
		Guardrail:  d.Guardrail,
		Reason:     d.Reason,
		TraceID:    d.TraceID,
		ShadowMode: d.ShadowMode,
		Metadata: Metadata{
			ClientIP:         d.ClientKey,
			RequestsInWindow: d.Rate.RequestsInWindow,
			Limit:            d.Rate.Limit,
		},
	}
}

// Canonical возвращает каноническую байтовую форму записи.
func (r DecisionRecord) Canonical() ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("canonicalize decision record: %w", err)
	}
	return raw, nil
}

// ContentHash считает адрес содержимого в формате "sha256:<hex>".
func ContentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(sum[:])
}
