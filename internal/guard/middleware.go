package guard

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnknownClientKey — sentinel для нечитаемого адреса источника.
// Такой трафик НЕ освобождается от проверок: все "unknown" делят одно окно.
const UnknownClientKey = "unknown"

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const traceIDKey ctxKey = "trace_id"

// TracingMiddleware инициализирует Trace-ID для каждого запроса
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Пытаемся достать ID из заголовка (если пришел от прокси/клиента)
		traceID := r.Header.Get("X-Trace-ID")

		// 2. Если его нет — генерируем новый
		if traceID == "" {
			traceID = uuid.New().String()
		}

		// 3. Кладем в контекст
		ctx := context.WithValue(r.Context(), traceIDKey, traceID)

		// 4. Добавляем в ответ, чтобы клиент тоже знал ID своего запроса
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TraceIDFromContext помогает безопасно достать ID в любом месте кода
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return "00000000-0000-0000-0000-000000000000" // Fallback
}

// Recorder принимает готовое решение на запись evidence. Реализуется
// конвейером evidence; вызов не блокирует и не влияет на ответ.
type Recorder interface {
	Record(d Decision)
}

// Middleware ставит цепочку guardrail'ов перед защищаемым обработчиком:
// извлекает клиентский ключ, выносит решение, вешает rate-limit заголовки
// и (в enforcement-режиме) отбивает 429.
type Middleware struct {
	chain       *Chain
	recorder    Recorder
	trustProxy  bool
	proxyHeader string
	logger      *zap.Logger
}

func NewMiddleware(chain *Chain, recorder Recorder, trustProxy bool, proxyHeader string, logger *zap.Logger) *Middleware {
	return &Middleware{
		chain:       chain,
		recorder:    recorder,
		trustProxy:  trustProxy,
		proxyHeader: proxyHeader,
		logger:      logger.With(zap.String("mod", "guard-middleware")),
	}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.clientKey(r)

		// Решение считается синхронно и ДО любых сайд-эффектов:
		// ни evidence, ни хранилище на него повлиять не могут
		d := m.chain.Evaluate(key, TraceIDFromContext(r.Context()))

		if !d.Whitelisted {
			m.writeRateHeaders(w, d)
		}

		// Передаем решение конвейеру evidence (асинхронно, не блокирует)
		if m.recorder != nil {
			m.recorder.Record(d)
		}

		if d.Enforced == OutcomeDeny {
			m.logger.Debug("request denied",
				zap.String("client_key", d.ClientKey),
				zap.String("guardrail", d.Guardrail),
				zap.String("reason", d.Reason),
				zap.String("trace_id", d.TraceID),
			)

			retryAfter := 1
			if !d.Rate.Reset.IsZero() {
				if secs := int(d.Rate.Reset.Sub(d.Timestamp) / time.Second); secs > retryAfter {
					retryAfter = secs
				}
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"detail": "rate_limit_exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) writeRateHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Rate.Limit))

	remaining := d.Rate.Remaining
	if d.ShadowViolation {
		// Shadow-режим: ответ проходит, но отрицательный Remaining сигналит
		// "был бы отклонен" — дешевый способ увидеть будущие блокировки
		remaining = -1
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

	if !d.Rate.Reset.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Rate.Reset.Unix(), 10))
	}
}

// clientKey извлекает идентичность клиента. Никогда не фейлится:
// все нечитаемое сваливается в sentinel "unknown" и идет под проверки.
func (m *Middleware) clientKey(r *http.Request) string {
	candidate := ""

	// Заголовку прокси верим только если это явно включено в конфиге
	if m.trustProxy && m.proxyHeader != "" {
		if hv := r.Header.Get(m.proxyHeader); hv != "" {
			// Берем первый адрес из цепочки X-Forwarded-For
			candidate = strings.TrimSpace(strings.SplitN(hv, ",", 2)[0])
		}
	}

	if candidate == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		candidate = host
	}

	addr, err := netip.ParseAddr(candidate)
	if err != nil {
		return UnknownClientKey
	}
	// Нормализация (убирает зону и альтернативные записи IPv6)
	return addr.String()
}
