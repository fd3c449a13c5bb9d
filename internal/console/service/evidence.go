package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/integrity-gate/internal/domain"
)

// Лимиты выборки: консоль — инструмент оператора, не экспорт данных.
const (
	defaultFetchLimit = 100
	maxFetchLimit     = 500
)

// EvidenceProvider описывает контракт чтения evidence-индекса.
type EvidenceProvider interface {
	Recent(ctx context.Context, limit int) ([]domain.EvidenceRow, error)
	ByID(ctx context.Context, evidenceID string) (*domain.EvidenceRow, error)
	ByTraceID(ctx context.Context, traceID string) ([]domain.EvidenceRow, error)
}

type EvidenceService struct {
	repo EvidenceProvider
}

func NewEvidenceService(repo EvidenceProvider) *EvidenceService {
	return &EvidenceService{repo: repo}
}

// FetchRecent возвращает последние записи, зажимая limit в разумные рамки.
func (s *EvidenceService) FetchRecent(ctx context.Context, limit int) ([]domain.EvidenceRow, error) {
	if limit <= 0 {
		limit = defaultFetchLimit
	}
	if limit > maxFetchLimit {
		limit = maxFetchLimit
	}

	rows, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("evidence_service: failed to fetch recent: %w", err)
	}
	return rows, nil
}

func (s *EvidenceService) FetchByID(ctx context.Context, evidenceID string) (*domain.EvidenceRow, error) {
	row, err := s.repo.ByID(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// FetchByTrace возвращает всю цепочку решений одного запроса.
func (s *EvidenceService) FetchByTrace(ctx context.Context, traceID string) ([]domain.EvidenceRow, error) {
	rows, err := s.repo.ByTraceID(ctx, traceID)
	if err != nil {
		return nil, fmt.Errorf("evidence_service: failed to fetch by trace: %w", err)
	}
	return rows, nil
}
