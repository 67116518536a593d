package workflow

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/enrollgate/internal/audit"
	"github.com/xela07ax/enrollgate/internal/domain"
	"github.com/xela07ax/enrollgate/internal/metrics"
)

// Decision — решение оператора по заявке
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// RecordStore — всё, что workflow нужно от хранилища заявок
type RecordStore interface {
	Create(ctx context.Context, req *domain.Request) error
	GetByID(ctx context.Context, id string) (*domain.Request, error)
	FindByTelegramID(ctx context.Context, telegramID string) (*domain.Request, error)
	FindByUsername(ctx context.Context, username string) (*domain.Request, error)
	FindByStatus(ctx context.Context, status domain.Status) ([]*domain.Request, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
	UpdateStatus(ctx context.Context, id string, next domain.Status, actor, groupLink string) (*domain.Request, error)
	BindTelegramID(ctx context.Context, req *domain.Request, telegramID string) (*domain.Request, error)
	SetLoggedIn(ctx context.Context, req *domain.Request, loggedIn bool) (*domain.Request, error)
}

// Auditor принимает события журнала, не блокируя вызывающего
type Auditor interface {
	Log(event audit.Event)
}

// Notifier доставляет заявителю результат решения (best effort)
type Notifier interface {
	NotifyDecision(ctx context.Context, req *domain.Request) error
}

// Submission — входные данные клиентского гейтвея
type Submission struct {
	TelegramID string
	Username   string
	Payload    domain.Payload
}

// DecisionResult — решение плюс судьба уведомления, оператор видит обе части
type DecisionResult struct {
	Request  *domain.Request
	Notified bool
}

// Service — конечный автомат заявки: PENDING -> APPROVED | REJECTED.
// Терминальные статусы неизменяемы, конфликт отдается вызывающему как
// domain.ErrAlreadyDecided и никогда не ретраится автоматически.
type Service struct {
	store    RecordStore
	auditor  Auditor
	notifier Notifier // nil у клиентского бота
	links    map[string]string
	logger   *zap.Logger
	m        *metrics.Metrics

	now   func() time.Time
	newID func() string
}

func NewService(store RecordStore, auditor Auditor, notifier Notifier, links map[string]string, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		auditor:  auditor,
		notifier: notifier,
		links:    links,
		logger:   logger.With(zap.String("mod", "workflow")),
		m:        m,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Submit валидирует и создает заявку. Пустая заявка не пишется вообще.
func (s *Service) Submit(ctx context.Context, sub Submission) (*domain.Request, error) {
	if sub.Payload.IsEmpty() {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrValidation)
	}
	if strings.TrimSpace(sub.TelegramID) == "" {
		return nil, fmt.Errorf("%w: requester is required", domain.ErrValidation)
	}

	req := &domain.Request{
		ID:          s.newID(),
		Status:      domain.StatusPending,
		TelegramID:  strings.TrimSpace(sub.TelegramID),
		Username:    strings.TrimPrefix(strings.TrimSpace(sub.Username), "@"),
		Payload:     sub.Payload,
		SubmittedAt: s.now().UTC(),
	}

	if err := s.store.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("workflow: failed to create request: %w", err)
	}

	s.audit(audit.Event{
		RequestID: req.ID,
		Actor:     req.TelegramID,
		Action:    audit.ActionSubmitted,
		ToStatus:  string(domain.StatusPending),
	})

	s.logger.Info("request submitted",
		zap.String("request_id", req.ID),
		zap.String("committee", req.Payload.Committee),
	)
	return req, nil
}

// CheckStatus возвращает заявку только её владельцу.
// Чужая заявка неотличима от несуществующей — и то и другое NotFound.
func (s *Service) CheckStatus(ctx context.Context, requesterID, id string) (*domain.Request, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.BelongsTo(requesterID) {
		return nil, domain.ErrNotFound
	}
	return req, nil
}

// StatusByTelegramID — путь клиентского бота: заявка ищется по аккаунту
func (s *Service) StatusByTelegramID(ctx context.Context, telegramID string) (*domain.Request, error) {
	return s.store.FindByTelegramID(ctx, telegramID)
}

// ResolveApplicant находит заявку по Telegram ID, при промахе — по нику.
// Совпадение по нику фиксируется: ID дописывается в строку, дальше
// заявитель находится без сканирования.
func (s *Service) ResolveApplicant(ctx context.Context, telegramID, username string) (*domain.Request, error) {
	req, err := s.store.FindByTelegramID(ctx, telegramID)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, domain.ErrNotFound) || username == "" {
		return nil, err
	}

	req, err = s.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.store.BindTelegramID(ctx, req, strings.TrimSpace(telegramID))
}

// Login сверяет пароль заявителя и проставляет флаг входа.
// В ячейке может лежать bcrypt-хэш (новые строки) или значение в открытом
// виде (строки из старой формы) — во втором случае сравниваем дайджесты
// за константное время.
func (s *Service) Login(ctx context.Context, req *domain.Request, password string) (*domain.Request, error) {
	if !verifyPassword(req.Password, password) {
		return nil, fmt.Errorf("%w: wrong password", domain.ErrValidation)
	}

	updated, err := s.store.SetLoggedIn(ctx, req, true)
	if err != nil {
		return nil, fmt.Errorf("workflow: failed to mark login: %w", err)
	}

	s.audit(audit.Event{
		RequestID: req.ID,
		Actor:     req.TelegramID,
		Action:    audit.ActionLogin,
	})
	return updated, nil
}

// ListPending — очередь на решение
func (s *Service) ListPending(ctx context.Context) ([]*domain.Request, error) {
	return s.store.FindByStatus(ctx, domain.StatusPending)
}

// List — выборка по произвольному статусу (консоль операторов)
func (s *Service) List(ctx context.Context, status domain.Status) ([]*domain.Request, error) {
	return s.store.FindByStatus(ctx, status)
}

// Get отдает заявку по ID без проверки владельца (для операторов)
func (s *Service) Get(ctx context.Context, id string) (*domain.Request, error) {
	return s.store.GetByID(ctx, id)
}

// Decide переводит заявку в терминальный статус от имени оператора.
// Конфликт (заявка уже решена) отдается наверх, повторов нет — оператор
// перечитывает очередь и видит актуальное состояние.
func (s *Service) Decide(ctx context.Context, id, actor string, decision Decision) (*DecisionResult, error) {
	var next domain.Status
	switch decision {
	case DecisionApprove:
		next = domain.StatusApproved
	case DecisionReject:
		next = domain.StatusRejected
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", domain.ErrValidation, decision)
	}
	if strings.TrimSpace(actor) == "" {
		return nil, fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}

	// Ссылку на группу комитета выдаем только при одобрении
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	groupLink := ""
	if next == domain.StatusApproved {
		groupLink = s.links[current.Payload.Committee]
	}

	updated, err := s.store.UpdateStatus(ctx, id, next, actor, groupLink)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyDecided) && s.m != nil {
			s.m.ConflictsTotal.Inc()
		}
		return nil, err
	}

	s.audit(audit.Event{
		RequestID:  id,
		Actor:      actor,
		Action:     decisionAction(next),
		FromStatus: string(domain.StatusPending),
		ToStatus:   string(next),
	})
	if s.m != nil {
		s.m.DecisionsTotal.WithLabelValues(string(decision)).Inc()
	}

	s.logger.Info("request decided",
		zap.String("request_id", id),
		zap.String("actor", actor),
		zap.String("status", string(next)),
	)

	return &DecisionResult{
		Request:  updated,
		Notified: s.notify(ctx, updated),
	}, nil
}

// Stats — сводка по всем заявкам
func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.NewStats(counts), nil
}

// notify доставляет результат заявителю. Неудача не отменяет решение:
// не вошедший в бота заявитель увидит результат при следующем /start.
func (s *Service) notify(ctx context.Context, req *domain.Request) bool {
	outcome := "skipped"
	defer func() {
		if s.m != nil {
			s.m.NotificationsTotal.WithLabelValues(outcome).Inc()
		}
	}()

	if s.notifier == nil || req.TelegramID == "" || !req.LoggedIn {
		return false
	}

	if err := s.notifier.NotifyDecision(ctx, req); err != nil {
		outcome = "failed"
		s.logger.Warn("failed to notify applicant",
			zap.String("request_id", req.ID),
			zap.Error(err),
		)
		return false
	}
	outcome = "sent"
	return true
}

func (s *Service) audit(event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.ID = s.newID()
	event.Timestamp = s.now().UTC()
	s.auditor.Log(event)
}

func decisionAction(next domain.Status) string {
	if next == domain.StatusApproved {
		return audit.ActionApproved
	}
	return audit.ActionRejected
}

func verifyPassword(stored, input string) bool {
	stored = strings.TrimSpace(stored)
	if stored == "" {
		return false
	}
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
	}
	a := sha256.Sum256([]byte(stored))
	b := sha256.Sum256([]byte(input))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
