package evidence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/integrity-gate/internal/infra"
)

// recentKeep — сколько последних evidence_id держим в Redis-индексе.
const recentKeep = 1000

// Announcer транслирует факт персистентности бандла внешним подписчикам:
// Pub/Sub сигнал "evidence_id:status" плюс ограниченный список последних ID.
// Это не хранилище записи (durable — FS/Postgres), поэтому его ошибки
// только логируются конвейером и ни на что не влияют.
type Announcer struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewAnnouncer(rdb *redis.Client, logger *zap.Logger) *Announcer {
	return &Announcer{rdb: rdb, logger: logger.With(zap.String("mod", "evidence-announcer"))}
}

// WriteBatch реализует Store: один pipeline на пачку.
func (a *Announcer) WriteBatch(ctx context.Context, bundles []Bundle) error {
	if len(bundles) == 0 {
		return nil
	}

	pipe := a.rdb.Pipeline()
	for _, b := range bundles {
		signal := b.EvidenceID + ":" + b.VerificationStatus
		pipe.Publish(ctx, infra.RedisChanEvidenceSignal, signal)
		pipe.LPush(ctx, infra.RedisKeyEvidenceRecent, b.EvidenceID)
	}
	pipe.LTrim(ctx, infra.RedisKeyEvidenceRecent, 0, recentKeep-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("announce evidence batch: %w", err)
	}
	return nil
}
