package evidence

import (
	"strings"
	"testing"
	"time"

	"github.com/xela07ax/integrity-gate/internal/guard"
)

func sampleDecision() guard.Decision {
	return guard.Decision{
		ID:         "dec-1",
		TraceID:    "trace-1",
		ClientKey:  "198.51.100.1",
		Timestamp:  time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		Outcome:    guard.OutcomeDeny,
		Enforced:   guard.OutcomeAllow,
		Guardrail:  guard.GuardrailRateLimit,
		Reason:     guard.ReasonRateLimitExceeded,
		ShadowMode: true,
		Rate: guard.VerdictMeta{
			Limit:            100,
			RequestsInWindow: 100,
		},
	}
}

func TestNewRecordCarriesInnerVerdict(t *testing.T) {
	t.Parallel()

	rec := NewRecord(sampleDecision())

	// В evidence уходит внутренний вердикт, а не примененный:
	// в shadow-режиме здесь denied при HTTP-ответе 200
	if rec.Decision != "denied" {
		t.Errorf("decision = %q, want denied", rec.Decision)
	}
	if !rec.ShadowMode {
		t.Error("shadow flag lost")
	}
	if rec.Metadata.ClientIP != "198.51.100.1" || rec.Metadata.RequestsInWindow != 100 || rec.Metadata.Limit != 100 {
		t.Errorf("metadata = %+v", rec.Metadata)
	}
}

func TestContentHashStable(t *testing.T) {
	t.Parallel()

	rec := NewRecord(sampleDecision())

	raw1, err := rec.Canonical()
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	raw2, _ := rec.Canonical()

	// Одна запись — одна каноническая форма, один адрес
	if string(raw1) != string(raw2) {
		t.Fatal("canonical form is not deterministic")
	}
	if h1, h2 := ContentHash(raw1), ContentHash(raw2); h1 != h2 {
		t.Errorf("hash diverged: %s vs %s", h1, h2)
	}

	h := ContentHash(raw1)
	if !strings.HasPrefix(h, "sha256:") || len(h) != len("sha256:")+64 {
		t.Errorf("malformed content hash %q", h)
	}
}

func TestContentHashSensitivity(t *testing.T) {
	t.Parallel()

	recA := NewRecord(sampleDecision())

	d := sampleDecision()
	d.Reason = guard.ReasonBurstExceeded
	recB := NewRecord(d)

	rawA, _ := recA.Canonical()
	rawB, _ := recB.Canonical()
	if ContentHash(rawA) == ContentHash(rawB) {
		t.Error("different records must not share a content hash")
	}
}
