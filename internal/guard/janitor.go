package guard

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor — фоновая уборка состояния окон по фиксированному таймеру,
// независимо от трафика. Без него каждый когда-либо виденный IP
// навсегда оставлял бы за собой (пусть и пустую) запись.
//
// Ходит по тем же шардовым мьютексам, что и обработчики запросов:
// удаление ключа не может проскочить между чтением и записью запроса.
type Janitor struct {
	store    *WindowStore
	interval time.Duration
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewJanitor(store *WindowStore, interval time.Duration, metrics *Metrics, logger *zap.Logger) *Janitor {
	return &Janitor{
		store:    store,
		interval: interval,
		metrics:  metrics,
		logger:   logger.With(zap.String("mod", "janitor")),
		now:      time.Now,
	}
}

// Run крутит цикл уборки до отмены контекста. Запускается в своей горутине.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopped")
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	removed := j.store.Sweep(j.now())
	tracked := j.store.Keys()

	if j.metrics != nil {
		j.metrics.TrackedKeys.Set(float64(tracked))
	}
	if removed > 0 {
		j.logger.Debug("window state swept",
			zap.Int("removed_keys", removed),
			zap.Int("tracked_keys", tracked),
		)
	}
}
