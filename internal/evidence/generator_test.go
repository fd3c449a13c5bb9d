package evidence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/integrity-gate/internal/guard"
)

// memStore копит бандлы в памяти, заменяя реальные хранилища в тестах.
type memStore struct {
	mu      sync.Mutex
	bundles []Bundle
	failAll bool
}

func (s *memStore) WriteBatch(ctx context.Context, bundles []Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("store is down")
	}
	s.bundles = append(s.bundles, bundles...)
	return nil
}

func (s *memStore) all() []Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Bundle, len(s.bundles))
	copy(out, s.bundles)
	return out
}

type stubSigner struct {
	err error
}

func (s *stubSigner) Sign(ctx context.Context, contentHash string) (*SignResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &SignResult{
		Signature: "sig-" + contentHash[:15],
		Entry:     TransparencyLogEntry{UUID: "entry-1", Index: 42},
	}, nil
}

func decisionN(n int) guard.Decision {
	return guard.Decision{
		ID:        fmt.Sprintf("dec-%d", n),
		TraceID:   fmt.Sprintf("trace-%d", n),
		ClientKey: "198.51.100.1",
		Timestamp: time.Now(),
		Outcome:   guard.OutcomeAllow,
		Enforced:  guard.OutcomeAllow,
		Guardrail: guard.GuardrailRateLimit,
		Reason:    guard.ReasonWithinLimit,
	}
}

func TestGeneratorDrainsOnStop(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	g := NewGenerator(Config{BufferSize: 100, BatchSize: 10, FlushInterval: time.Hour}, nil, []Store{store}, nil, zap.NewNop())
	g.Start()

	const total = 25
	for i := 0; i < total; i++ {
		g.Record(decisionN(i))
	}
	g.Stop()

	got := store.all()
	if len(got) != total {
		t.Fatalf("persisted %d bundles, want %d", len(got), total)
	}

	// Один Decision — один Bundle, без дублей
	seen := make(map[string]bool, total)
	for _, b := range got {
		id := b.Decision.DecisionID
		if seen[id] {
			t.Errorf("decision %s persisted twice", id)
		}
		seen[id] = true

		// Без подписанта бандл полноценно персистится со статусом failed
		if b.VerificationStatus != StatusFailed {
			t.Errorf("bundle %s: status = %s, want %s", b.EvidenceID, b.VerificationStatus, StatusFailed)
		}
		if b.Signature != nil {
			t.Errorf("bundle %s: signature must be null without a signer", b.EvidenceID)
		}
		if b.ContentHash == "" || b.EvidenceID == "" {
			t.Errorf("bundle incomplete: %+v", b)
		}
	}
}

func TestGeneratorSignedBundles(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	g := NewGenerator(Config{BatchSize: 5, FlushInterval: time.Hour}, &stubSigner{}, []Store{store}, nil, zap.NewNop())
	g.Start()

	g.Record(decisionN(1))
	g.Stop()

	got := store.all()
	if len(got) != 1 {
		t.Fatalf("persisted %d bundles, want 1", len(got))
	}
	b := got[0]
	if b.VerificationStatus != StatusSigned {
		t.Fatalf("status = %s, want %s", b.VerificationStatus, StatusSigned)
	}
	if b.Signature == nil || *b.Signature == "" {
		t.Error("signed bundle must carry a signature")
	}
	if b.TransparencyLogEntry == nil || b.TransparencyLogEntry.Index != 42 {
		t.Errorf("transparency log entry lost: %+v", b.TransparencyLogEntry)
	}
}

// Неудача подписи — терминальный статус failed, не потеря бандла.
func TestGeneratorSignerFailure(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	g := NewGenerator(Config{BatchSize: 5, FlushInterval: time.Hour}, &stubSigner{err: errors.New("signer down")}, []Store{store}, nil, zap.NewNop())
	g.Start()

	for i := 0; i < 3; i++ {
		g.Record(decisionN(i))
	}
	g.Stop()

	got := store.all()
	if len(got) != 3 {
		t.Fatalf("persisted %d bundles, want 3", len(got))
	}
	for _, b := range got {
		if b.VerificationStatus != StatusFailed || b.Signature != nil {
			t.Errorf("bundle %s: status %s, signature %v", b.EvidenceID, b.VerificationStatus, b.Signature)
		}
	}
}

func TestGeneratorRecordAfterStop(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	g := NewGenerator(Config{}, nil, []Store{store}, nil, zap.NewNop())
	g.Start()
	g.Stop()

	// После Stop вход заперт: Record не паникует и не пишет
	g.Record(decisionN(99))
	if len(store.all()) != 0 {
		t.Error("record after stop must be dropped")
	}
}

func TestGeneratorLoadShedding(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	// Воркер не стартуем: буфер на 2 решения переполняется сразу
	g := NewGenerator(Config{BufferSize: 2}, nil, []Store{store}, nil, zap.NewNop())

	for i := 0; i < 10; i++ {
		g.Record(decisionN(i)) // не должен блокироваться
	}
	if got := len(g.ch); got != 2 {
		t.Errorf("buffered = %d, want 2 (rest shed)", got)
	}
}

// Ошибка одного хранилища не мешает записи в остальные.
func TestGeneratorStoreFailureIsolated(t *testing.T) {
	t.Parallel()

	bad := &memStore{failAll: true}
	good := &memStore{}
	g := NewGenerator(Config{BatchSize: 5, FlushInterval: time.Hour}, nil, []Store{bad, good}, nil, zap.NewNop())
	g.Start()

	g.Record(decisionN(1))
	g.Stop()

	if len(good.all()) != 1 {
		t.Errorf("healthy store got %d bundles, want 1", len(good.all()))
	}
}
