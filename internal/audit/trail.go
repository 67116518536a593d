package audit

/*
Файл trail.go реализует журнал решений (Audit Trail) поверх отдельного
листа той же таблицы.

Ключевые особенности:
- Non-blocking Logging: события уходят в буферизованный канал, задержки
  Sheets API не влияют на время ответа операторского интерфейса.
- Batching: события копятся в памяти и пишутся пачкой по таймеру или при
  достижении лимита — один values.append вместо десятков.
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается до
  конца, финальный flush гарантирует отсутствие потерь при перезапуске.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	bufferSize    = 1000
	batchLimit    = 50
	flushInterval = 2 * time.Second
)

// Storage определяет, куда физически будут сохраняться события
type Storage interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

// BufferGauge — метрика заполненности буфера (backpressure)
type BufferGauge interface {
	Set(float64)
}

type Trail struct {
	ch     chan Event
	repo   Storage
	logger *zap.Logger
	gauge  BufferGauge
	wg     sync.WaitGroup
	// Защита от Log после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

func NewTrail(repo Storage, logger *zap.Logger, gauge BufferGauge) *Trail {
	return &Trail{
		ch:     make(chan Event, bufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "audit")),
		gauge:  gauge,
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&t.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Drain Pattern: завершение воркера происходит исключительно
	// через закрытие входного канала
	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

func (t *Trail) Log(event Event) {
	// Убеждаемся, что таймстемп всегда проставлен
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Атомарно проверяем, не закрыт ли канал
	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: переполненный буфер не должен блокировать решение
	select {
	case t.ch <- event:
		if t.gauge != nil {
			t.gauge.Set(float64(len(t.ch)))
		}
	default:
		// Событие теряется для таблицы, но остается в логах процесса
		t.logger.Error("audit_buffer_overflow",
			zap.String("request_id", event.RequestID),
			zap.String("action", event.Action),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Event, 0, batchLimit)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст на shutdown-е уже может быть закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): воркер сначала вычитал остатки,
				// теперь финальный flush и выход
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if t.gauge != nil {
				t.gauge.Set(float64(len(t.ch)))
			}
			if len(batch) >= batchLimit {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
