package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"

	"github.com/xela07ax/enrollgate/internal/infra"
	"github.com/xela07ax/enrollgate/internal/metrics"
)

const defaultRetryAfter = 5 * time.Second

// ThrottleError — Sheets API ответил 429; RetryAfter берем из заголовка
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// ReliableAPI оборачивает вызовы Sheets API в rate limiter, circuit breaker
// и ретраи. Повторяются ТОЛЬКО транзиентные сбои транспорта (429/5xx/сеть) —
// конфликты решений наверху никогда не ретраятся, это ответственность
// оператора.
type ReliableAPI struct {
	next    API
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	retries uint
	m       *metrics.Metrics
}

func NewReliableAPI(next API, cfg infra.SheetsConfig, m *metrics.Metrics) *ReliableAPI {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sheets-api",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (перестаем дергать API)
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if m == nil {
				return
			}
			if to == gobreaker.StateOpen {
				m.CircuitBreakerState.Set(1)
			} else {
				m.CircuitBreakerState.Set(0)
			}
		},
	})

	// Лимитер под квоту Sheets API (примерно 60 чтений в минуту)
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)

	return &ReliableAPI{
		next:    next,
		cb:      cb,
		limiter: limiter,
		retries: cfg.RetryAttempts,
		m:       m,
	}
}

func (w *ReliableAPI) Get(ctx context.Context, rangeA1 string) ([][]interface{}, error) {
	var out [][]interface{}
	err := w.call(ctx, "values.get", func(ctx context.Context) error {
		var err error
		out, err = w.next.Get(ctx, rangeA1)
		return err
	})
	return out, err
}

func (w *ReliableAPI) BatchUpdate(ctx context.Context, updates []ValueUpdate) error {
	return w.call(ctx, "values.batchUpdate", func(ctx context.Context) error {
		return w.next.BatchUpdate(ctx, updates)
	})
}

func (w *ReliableAPI) Append(ctx context.Context, rangeA1 string, rows [][]interface{}) error {
	return w.call(ctx, "values.append", func(ctx context.Context) error {
		return w.next.Append(ctx, rangeA1, rows)
	})
}

func (w *ReliableAPI) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	start := time.Now()

	// 2. Circuit Breaker
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.retries),
			retry.RetryIf(isTransient),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если API вернул 429 — уважаем Retry-After
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, 500-ка) — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			return classify(fn(tCtx))
		})

		return nil, retryErr
	})

	w.observe(op, time.Since(start), err)
	return err
}

func (w *ReliableAPI) observe(op string, d time.Duration, err error) {
	if w.m == nil {
		return
	}
	outcome := "ok"
	var tErr *ThrottleError
	switch {
	case err == nil:
	case errors.As(err, &tErr):
		outcome = "throttled"
	default:
		outcome = "error"
	}
	w.m.SheetsCallDuration.WithLabelValues(op).Observe(d.Seconds())
	w.m.SheetsCallsTotal.WithLabelValues(op, outcome).Inc()
}

// classify переупаковывает 429 в ThrottleError, остальное пропускает как есть
func classify(err error) error {
	if err == nil {
		return nil
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests {
		return &ThrottleError{RetryAfter: retryAfter(gErr.Header), Cause: err}
	}
	return err
}

// isTransient решает, имеет ли смысл повтор.
// 4xx кроме 429 — ошибка запроса, повтор бессмысленен.
func isTransient(err error) bool {
	var tErr *ThrottleError
	if errors.As(err, &tErr) {
		return true
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusTooManyRequests || gErr.Code >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Ошибки без HTTP-статуса считаем сетевыми
	return true
}

func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return defaultRetryAfter
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}
