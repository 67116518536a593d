package sheets

/*
Файл request_repo.go — единственный компонент, который трогает таблицу.

У Sheets API нет транзакций и условных записей, поэтому смена статуса
реализована как оптимистичный compare-and-swap: под локальным мьютексом
записи заново читаем текущий статус строки и пишем только если заявка
всё ещё PENDING. Первый писатель побеждает, второй получает
domain.ErrAlreadyDecided наверх без каких-либо повторов.

Мьютекс сериализует писателей только этого процесса; гонку с другим
процессом закрывает повторное чтение непосредственно перед записью —
окно остается, но оно сведено к одному RTT записи.
*/

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/enrollgate/internal/audit"
	"github.com/xela07ax/enrollgate/internal/domain"
)

type RequestRepo struct {
	api       API
	worksheet string
	auditWS   string
	logger    *zap.Logger
	now       func() time.Time

	// Сериализация писателей в пределах процесса
	writeMu sync.Mutex

	// Кэш Telegram_ID -> номер строки. Содержимое строки всегда
	// перечитывается из таблицы, кэшируется только позиция.
	cache *lookupCache
}

func NewRequestRepo(api API, worksheet, auditWorksheet string, cacheSize int, logger *zap.Logger) *RequestRepo {
	return &RequestRepo{
		api:       api,
		worksheet: worksheet,
		auditWS:   auditWorksheet,
		logger:    logger.With(zap.String("mod", "sheets-repo")),
		now:       time.Now,
		cache:     newLookupCache(cacheSize),
	}
}

// readAll вычитывает все заявки листа одним values.get
func (r *RequestRepo) readAll(ctx context.Context) ([]*domain.Request, error) {
	rows, err := r.api.Get(ctx, dataRange(r.worksheet))
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to read requests: %w", err)
	}

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.Request, 0, len(rows))
	for i, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		results = append(results, rowToRequest(row, i+2)) // +2: заголовок и 1-based
	}
	return results, nil
}

// getRow перечитывает одну строку по номеру
func (r *RequestRepo) getRow(ctx context.Context, row int) (*domain.Request, error) {
	rows, err := r.api.Get(ctx, rowRange(r.worksheet, row))
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to read row %d: %w", row, err)
	}
	if len(rows) == 0 || isEmptyRow(rows[0]) {
		return nil, domain.ErrNotFound
	}
	return rowToRequest(rows[0], row), nil
}

// Create добавляет заявку новой строкой. Строки никогда не удаляются,
// поэтому однажды увиденный номер строки остается валидным хэндлом.
func (r *RequestRepo) Create(ctx context.Context, req *domain.Request) error {
	if err := r.api.Append(ctx, dataRange(r.worksheet), [][]interface{}{requestToRow(req)}); err != nil {
		return fmt.Errorf("sheets: failed to create request: %w", err)
	}
	return nil
}

// GetByID ищет заявку по Submission_ID
func (r *RequestRepo) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrNotFound
	}

	all, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, req := range all {
		if req.ID == id {
			return req, nil
		}
	}
	return nil, domain.ErrNotFound
}

// FindByTelegramID ищет заявку по привязанному Telegram-аккаунту.
// Попадание в кэш экономит полное сканирование: перечитываем только
// одну строку и проверяем, что привязка не изменилась.
func (r *RequestRepo) FindByTelegramID(ctx context.Context, telegramID string) (*domain.Request, error) {
	telegramID = strings.TrimSpace(telegramID)
	if telegramID == "" {
		return nil, domain.ErrNotFound
	}

	if row, ok := r.cache.Get(telegramID); ok {
		req, err := r.getRow(ctx, row)
		if err == nil && req.TelegramID == telegramID {
			return req, nil
		}
		// Строка переехала или привязка сменилась — кэш врет, сбрасываем
		r.cache.Drop(telegramID)
	}

	all, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, req := range all {
		if req.TelegramID == telegramID {
			r.cache.Put(telegramID, req.Row)
			return req, nil
		}
	}
	return nil, domain.ErrNotFound
}

// FindByUsername ищет по Telegram-нику (без учета регистра и @)
func (r *RequestRepo) FindByUsername(ctx context.Context, username string) (*domain.Request, error) {
	search := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
	if search == "" {
		return nil, domain.ErrNotFound
	}

	all, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, req := range all {
		if strings.ToLower(req.Username) == search {
			return req, nil
		}
	}
	return nil, domain.ErrNotFound
}

// FindByStatus — выборка для Decision Queue операторов
func (r *RequestRepo) FindByStatus(ctx context.Context, status domain.Status) ([]*domain.Request, error) {
	all, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*domain.Request, 0, len(all))
	for _, req := range all {
		if req.Status == status {
			results = append(results, req)
		}
	}
	return results, nil
}

// CountByStatus — сводка для /stats
func (r *RequestRepo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	all, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.Status]int, 3)
	for _, req := range all {
		counts[req.Status]++
	}
	return counts, nil
}

// UpdateStatus атомарно (насколько позволяет таблица) переводит заявку
// в терминальный статус. Перед записью статус перечитывается: если
// заявка уже решена — возвращаем domain.ErrAlreadyDecided, запись не
// выполняется. Статус, автор и время меняются одним batchUpdate.
func (r *RequestRepo) UpdateStatus(ctx context.Context, id string, next domain.Status, actor, groupLink string) (*domain.Request, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	// Свежее чтение непосредственно перед записью — ядро оптимистичной
	// конкуренции. Кэш здесь не участвует.
	req, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.CanTransitionTo(next); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	updates := []ValueUpdate{
		{Range: cellRange(r.worksheet, colStatus, req.Row), Values: [][]interface{}{{statusCell(next)}}},
		{Range: cellRange(r.worksheet, colUpdatedBy, req.Row), Values: [][]interface{}{{actor}}},
		{Range: cellRange(r.worksheet, colUpdatedAt, req.Row), Values: [][]interface{}{{now.Format(timeLayout)}}},
	}
	if groupLink != "" {
		updates = append(updates, ValueUpdate{
			Range:  cellRange(r.worksheet, colGroupLink, req.Row),
			Values: [][]interface{}{{groupLink}},
		})
	}

	if err := r.api.BatchUpdate(ctx, updates); err != nil {
		return nil, fmt.Errorf("sheets: failed to update status of %s: %w", id, err)
	}

	updated := *req
	updated.Status = next
	updated.UpdatedBy = actor
	updated.UpdatedAt = now
	if groupLink != "" {
		updated.GroupLink = groupLink
	}
	return &updated, nil
}

// BindTelegramID записывает Telegram ID в строку, найденную по нику
func (r *RequestRepo) BindTelegramID(ctx context.Context, req *domain.Request, telegramID string) (*domain.Request, error) {
	update := ValueUpdate{
		Range:  cellRange(r.worksheet, colTelegramID, req.Row),
		Values: [][]interface{}{{telegramID}},
	}
	if err := r.api.BatchUpdate(ctx, []ValueUpdate{update}); err != nil {
		return nil, fmt.Errorf("sheets: failed to bind telegram id: %w", err)
	}

	updated := *req
	updated.TelegramID = telegramID
	r.cache.Put(telegramID, req.Row)
	return &updated, nil
}

// SetLoggedIn проставляет флаг входа заявителя
func (r *RequestRepo) SetLoggedIn(ctx context.Context, req *domain.Request, loggedIn bool) (*domain.Request, error) {
	update := ValueUpdate{
		Range:  cellRange(r.worksheet, colLoggedIn, req.Row),
		Values: [][]interface{}{{loggedInCell(loggedIn)}},
	}
	if err := r.api.BatchUpdate(ctx, []ValueUpdate{update}); err != nil {
		return nil, fmt.Errorf("sheets: failed to set login flag: %w", err)
	}

	updated := *req
	updated.LoggedIn = loggedIn
	return &updated, nil
}

// WriteBatch реализует audit.Storage: пачка событий уходит одним
// values.append в отдельный лист журнала.
func (r *RequestRepo) WriteBatch(ctx context.Context, events []audit.Event) error {
	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		rows = append(rows, []interface{}{
			e.ID,
			e.Timestamp.UTC().Format(timeLayout),
			e.RequestID,
			e.Actor,
			e.Action,
			e.FromStatus,
			e.ToStatus,
			e.Note,
		})
	}

	auditRange := fmt.Sprintf("'%s'!A:H", r.auditWS)
	if err := r.api.Append(ctx, auditRange, rows); err != nil {
		return fmt.Errorf("sheets: failed to append audit events: %w", err)
	}
	return nil
}
