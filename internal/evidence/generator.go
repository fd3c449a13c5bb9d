package evidence

/*
Файл generator.go реализует конвейер evidence-бандлов — асинхронную
досборку, подпись и персистентность решений guardrail-цепочки.

Ключевые особенности архитектуры:
- Non-blocking Recording: решения передаются через неблокирующий канал
  из Hot Path шлюза. Подпись и запись на диск никогда не влияют на
  Response Time и на сам исход запроса (он финализирован до Record).
- Batching & Efficiency: бандлы копятся в памяти и уходят в хранилища
  пакетами по таймеру или при достижении лимита.
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается
  полностью (close канала + sync.WaitGroup), финальный flush гарантирован.
- Exactly-once: один Decision — один Bundle — одна запись в каждое
  хранилище; повторная запись того же контент-хеша — no-op.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/integrity-gate/internal/guard"
)

// Store определяет, куда физически будут сохраняться бандлы
type Store interface {
	// WriteBatch сохраняет пачку бандлов за один раз
	WriteBatch(ctx context.Context, bundles []Bundle) error
}

// Config — настройки конвейера (нулевые значения заменяются дефолтами).
type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	SignTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 500 * time.Millisecond
	}
	if c.SignTimeout <= 0 {
		c.SignTimeout = 2 * time.Second
	}
	return c
}

type Generator struct {
	ch      chan guard.Decision
	stores  []Store
	signer  Signer // nil — подпись выключена, все бандлы идут как failed
	cfg     Config
	metrics *guard.Metrics
	logger  *zap.Logger
	wg      sync.WaitGroup
	now     func() time.Time

	// Атомарный флаг (0 - открыт, 1 - закрыт): защита от Record после Stop
	isClosed int32
}

func NewGenerator(cfg Config, signer Signer, stores []Store, metrics *guard.Metrics, logger *zap.Logger) *Generator {
	cfg = cfg.withDefaults()
	return &Generator{
		ch:      make(chan guard.Decision, cfg.BufferSize),
		stores:  stores,
		signer:  signer,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With(zap.String("mod", "evidence")),
		now:     time.Now,
	}
}

func (g *Generator) Start() {
	g.wg.Add(1)
	go g.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (g *Generator) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&g.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Record успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Drain Pattern: завершение воркера — исключительно через закрытие канала
	g.logger.Info("stopping evidence pipeline: closing channel and flushing buffer...")
	close(g.ch)
	g.wg.Wait()
	g.logger.Info("evidence pipeline stopped gracefully")
}

// Record реализует guard.Recorder. Неблокирующий: при переполнении буфера
// решение теряется с ошибкой в логе (Load Shedding), но запрос не ждет.
func (g *Generator) Record(d guard.Decision) {
	if atomic.LoadInt32(&g.isClosed) == 1 {
		g.logger.Warn("evidence dropped: pipeline is stopping", zap.String("decision_id", d.ID))
		return
	}

	select {
	case g.ch <- d:
		if g.metrics != nil {
			g.metrics.EvidenceBufferFill.Set(float64(len(g.ch)))
		}
	default:
		// Канал переполнен (Backpressure) — фиксируем потерю в логе,
		// чтобы не потерять след молча
		g.logger.Error("evidence_buffer_overflow",
			zap.String("decision_id", d.ID),
			zap.String("trace_id", d.TraceID),
		)
	}
}

func (g *Generator) worker() {
	defer g.wg.Done()

	batch := make([]Bundle, 0, g.cfg.BatchSize)
	ticker := time.NewTicker(g.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к этому моменту может быть закрыт
		for _, store := range g.stores {
			if err := store.WriteBatch(context.Background(), batch); err != nil {
				// Ошибка записи логируется с полным контекстом и НЕ
				// откатывает запрос: решение давно финализировано
				g.logger.Error("evidence flush failed",
					zap.Int("batch_size", len(batch)),
					zap.Error(err),
				)
			}
		}
		if g.metrics != nil {
			for _, b := range batch {
				g.metrics.EvidencePersisted.WithLabelValues(b.VerificationStatus).Inc()
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case d, ok := <-g.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитали остатки — финальный flush и выход
				flush()
				g.logger.Info("evidence worker finished")
				return
			}
			batch = append(batch, g.seal(d))
			if g.metrics != nil {
				g.metrics.EvidenceBufferFill.Set(float64(len(g.ch)))
			}
			if len(batch) >= g.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// seal собирает бандл: каноническая форма -> контент-хеш -> подпись.
// Неудача подписи (таймаут, сеть, 5xx, выключенный signer) — это
// статус failed, не ошибка: бандл персистится в любом случае.
func (g *Generator) seal(d guard.Decision) Bundle {
	rec := NewRecord(d)

	raw, err := rec.Canonical()
	if err != nil {
		// Практически недостижимо (структура всегда сериализуема),
		// но след оставляем
		g.logger.Error("failed to canonicalize decision", zap.String("decision_id", d.ID), zap.Error(err))
	}
	hash := ContentHash(raw)

	b := Bundle{
		EvidenceID:         uuid.New().String(),
		Timestamp:          g.now().UTC(),
		Decision:           rec,
		ContentHash:        hash,
		VerificationStatus: StatusFailed,
	}

	if g.signer == nil {
		return b
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.SignTimeout)
	defer cancel()

	res, err := g.signer.Sign(ctx, hash)
	if err != nil {
		g.logger.Warn("evidence signing failed",
			zap.String("evidence_id", b.EvidenceID),
			zap.String("content_hash", hash),
			zap.Error(err),
		)
		return b
	}

	sig := res.Signature
	entry := res.Entry
	b.Signature = &sig
	b.TransparencyLogEntry = &entry
	b.VerificationStatus = StatusSigned
	return b
}
