package service

import (
	"context"
	"testing"

	"github.com/xela07ax/integrity-gate/internal/domain"
)

type fakeProvider struct {
	gotLimit int
}

func (p *fakeProvider) Recent(ctx context.Context, limit int) ([]domain.EvidenceRow, error) {
	p.gotLimit = limit
	return nil, nil
}

func (p *fakeProvider) ByID(ctx context.Context, id string) (*domain.EvidenceRow, error) {
	if id == "missing" {
		return nil, domain.ErrNotFound
	}
	return &domain.EvidenceRow{EvidenceID: id}, nil
}

func (p *fakeProvider) ByTraceID(ctx context.Context, traceID string) ([]domain.EvidenceRow, error) {
	return []domain.EvidenceRow{{TraceID: traceID}}, nil
}

func TestEvidenceServiceLimitClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, 100},
		{"negative", -5, 100},
		{"in range", 42, 42},
		{"clamped", 9000, 500},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := &fakeProvider{}
			svc := NewEvidenceService(p)
			if _, err := svc.FetchRecent(context.Background(), tc.limit); err != nil {
				t.Fatalf("FetchRecent: %v", err)
			}
			if p.gotLimit != tc.want {
				t.Errorf("repo limit = %d, want %d", p.gotLimit, tc.want)
			}
		})
	}
}

func TestEvidenceServiceNotFoundPassthrough(t *testing.T) {
	t.Parallel()

	svc := NewEvidenceService(&fakeProvider{})

	// ErrNotFound должен дойти до хендлера нетронутым (там он станет 404)
	if _, err := svc.FetchByID(context.Background(), "missing"); err != domain.ErrNotFound {
		t.Errorf("err = %v, want domain.ErrNotFound", err)
	}

	row, err := svc.FetchByID(context.Background(), "ev-1")
	if err != nil || row.EvidenceID != "ev-1" {
		t.Errorf("row = %+v, err = %v", row, err)
	}
}
