package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/integrity-gate/internal/guard"
)

// SignResult — ответ сервиса подписи.
type SignResult struct {
	Signature string
	Entry     TransparencyLogEntry
}

// Signer — внешний коллаборатор подписи. Недоступность или ошибка —
// штатная ситуация: бандл уходит в статус failed, запрос не страдает.
// Ретраев нет: неудача подписи терминальна для конкретного бандла.
type Signer interface {
	Sign(ctx context.Context, contentHash string) (*SignResult, error)
}

// HTTPSigner — клиент Rekor-подобного сервиса подписи/transparency log.
// Каждый вызов ограничен таймаутом; поверх — исходящий троттлинг и
// Circuit Breaker, чтобы при лежащем сервисе не жечь таймаут на каждом
// бандле, а быстро сваливаться в failed.
type HTTPSigner struct {
	url     string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

type signRequest struct {
	ContentHash string `json:"content_hash"`
}

type signResponse struct {
	Signature            string               `json:"signature"`
	TransparencyLogEntry TransparencyLogEntry `json:"transparency_log_entry"`
}

func NewHTTPSigner(url string, timeout time.Duration, ratePerSec float64, burst int, metrics *guard.Metrics, logger *zap.Logger) *HTTPSigner {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "igw-signer",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (перестаем ходить к сервису)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if metrics == nil {
				return
			}
			if to == gobreaker.StateOpen {
				metrics.SignerBreakerOpen.Set(1)
			} else {
				metrics.SignerBreakerOpen.Set(0)
			}
		},
	})

	return &HTTPSigner{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		logger:  logger.With(zap.String("mod", "signer")),
	}
}

// Sign запрашивает подпись контент-хеша. ctx обязан нести таймаут вызова —
// это единственный внешний таймаут во всем ядре.
func (s *HTTPSigner) Sign(ctx context.Context, contentHash string) (*SignResult, error) {
	// 1. Исходящий троттлинг (ограничен тем же ctx-таймаутом)
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("signer throttled: %w", err)
	}

	// 2. Circuit Breaker
	result, err := s.cb.Execute(func() (interface{}, error) {
		return s.call(ctx, contentHash)
	})
	if err != nil {
		return nil, err
	}

	return result.(*SignResult), nil
}

func (s *HTTPSigner) call(ctx context.Context, contentHash string) (*SignResult, error) {
	body, err := json.Marshal(signRequest{ContentHash: contentHash})
	if err != nil {
		return nil, fmt.Errorf("marshal sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sign call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		// Вычитываем тело, чтобы соединение вернулось в пул
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("signer returned status %d", resp.StatusCode)
	}

	var parsed signResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode sign response: %w", err)
	}
	if parsed.Signature == "" {
		return nil, fmt.Errorf("signer returned empty signature")
	}

	return &SignResult{Signature: parsed.Signature, Entry: parsed.TransparencyLogEntry}, nil
}
