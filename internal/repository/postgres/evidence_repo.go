package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"

	"github.com/xela07ax/integrity-gate/internal/domain"
	"github.com/xela07ax/integrity-gate/internal/evidence"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

// EvidenceRepo — Postgres-индекс evidence-бандлов: синк для конвейера
// (пакетная вставка) и источник данных для консоли аудита.
type EvidenceRepo struct {
	db *sql.DB
}

func NewEvidenceRepo(connString string, maxConns int) (*EvidenceRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 25
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &EvidenceRepo{db: db}, nil
}

// WaitReady ждет готовности базы на старте. Единственное место с ретраями:
// request path и подпись не ретраятся никогда, а вот стартовать раньше
// Postgres в оркестраторе — обычное дело.
func (r *EvidenceRepo) WaitReady(ctx context.Context) error {
	rt := retry.New(
		retry.Context(ctx),
		retry.Attempts(5),
	)
	return rt.Do(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return r.db.PingContext(pingCtx)
	})
}

// WriteBatch реализует evidence.Store: пакетная вставка одной командой.
func (r *EvidenceRepo) WriteBatch(ctx context.Context, bundles []evidence.Bundle) error {
	if len(bundles) == 0 {
		return nil
	}

	// Количество колонок в таблице evidence_bundles
	numFields := 16
	placeholderStr := ""
	vals := make([]interface{}, 0, len(bundles)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, b := range bundles {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11, p+12, p+13, p+14, p+15, p+16)

		var logUUID interface{}
		var logIndex interface{}
		if b.TransparencyLogEntry != nil {
			logUUID = b.TransparencyLogEntry.UUID
			logIndex = b.TransparencyLogEntry.Index
		}

		d := b.Decision
		vals = append(vals,
			b.EvidenceID, b.Timestamp, d.DecisionID, d.Decision, d.Guardrail, d.Reason,
			d.TraceID, d.ShadowMode, d.Metadata.ClientIP, d.Metadata.RequestsInWindow,
			d.Metadata.Limit, b.ContentHash, b.Signature, logUUID, logIndex,
			b.VerificationStatus,
		)
	}

	// Бандлы неизменяемы: конфликт по evidence_id означает повторную
	// доставку той же пачки — молча пропускаем
	query := fmt.Sprintf(
		`INSERT INTO evidence_bundles
		(evidence_id, created_at, decision_id, decision, guardrail, reason,
		 trace_id, shadow_mode, client_ip, requests_in_window,
		 limit_value, content_hash, signature, log_uuid, log_index,
		 verification_status)
		VALUES %s ON CONFLICT (evidence_id) DO NOTHING`,
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

const selectColumns = `evidence_id, created_at, decision_id, decision, guardrail, reason,
	trace_id, shadow_mode, client_ip, requests_in_window, limit_value,
	content_hash, signature, log_uuid, log_index, verification_status`

// Recent возвращает последние записи (консоль аудита).
func (r *EvidenceRepo) Recent(ctx context.Context, limit int) ([]domain.EvidenceRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM evidence_bundles ORDER BY created_at DESC LIMIT $1`, selectColumns)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// ByID достает одну запись по evidence_id.
func (r *EvidenceRepo) ByID(ctx context.Context, evidenceID string) (*domain.EvidenceRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM evidence_bundles WHERE evidence_id = $1`, selectColumns)
	rows, err := r.db.QueryContext(ctx, query, evidenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parsed, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(parsed) == 0 {
		return nil, domain.ErrNotFound
	}
	return &parsed[0], nil
}

// ByTraceID возвращает полную цепочку решений одного запроса.
func (r *EvidenceRepo) ByTraceID(ctx context.Context, traceID string) ([]domain.EvidenceRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM evidence_bundles WHERE trace_id = $1 ORDER BY created_at`, selectColumns)
	rows, err := r.db.QueryContext(ctx, query, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]domain.EvidenceRow, error) {
	var out []domain.EvidenceRow
	for rows.Next() {
		var row domain.EvidenceRow
		var signature sql.NullString
		var logUUID sql.NullString
		var logIndex sql.NullInt64

		if err := rows.Scan(
			&row.EvidenceID, &row.Timestamp, &row.DecisionID, &row.Decision,
			&row.Guardrail, &row.Reason, &row.TraceID, &row.ShadowMode,
			&row.ClientIP, &row.RequestsInWindow, &row.Limit,
			&row.ContentHash, &signature, &logUUID, &logIndex,
			&row.VerificationStatus,
		); err != nil {
			return nil, fmt.Errorf("scan evidence row: %w", err)
		}

		if signature.Valid {
			row.Signature = &signature.String
		}
		if logUUID.Valid {
			row.LogUUID = &logUUID.String
		}
		if logIndex.Valid {
			row.LogIndex = &logIndex.Int64
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}

// Ping — проверка соединения (healthcheck консоли).
func (r *EvidenceRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
