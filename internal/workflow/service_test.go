package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/enrollgate/internal/audit"
	"github.com/xela07ax/enrollgate/internal/domain"
	"github.com/xela07ax/enrollgate/internal/metrics"
	"github.com/xela07ax/enrollgate/internal/workflow"
)

// fakeStore повторяет семантику хранилища в памяти: первый писатель
// побеждает, терминальные статусы неизменяемы
type fakeStore struct {
	requests map[string]*domain.Request

	updateErr error
	createErr error
}

func newFakeStore(reqs ...*domain.Request) *fakeStore {
	s := &fakeStore{requests: make(map[string]*domain.Request)}
	for _, r := range reqs {
		s.requests[r.ID] = r
	}
	return s
}

func (s *fakeStore) Create(ctx context.Context, req *domain.Request) error {
	if s.createErr != nil {
		return s.createErr
	}
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	req, ok := s.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *fakeStore) FindByTelegramID(ctx context.Context, telegramID string) (*domain.Request, error) {
	for _, req := range s.requests {
		if req.TelegramID == telegramID {
			cp := *req
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) FindByUsername(ctx context.Context, username string) (*domain.Request, error) {
	for _, req := range s.requests {
		if req.Username == username {
			cp := *req
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) FindByStatus(ctx context.Context, status domain.Status) ([]*domain.Request, error) {
	var out []*domain.Request
	for _, req := range s.requests {
		if req.Status == status {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	counts := make(map[domain.Status]int)
	for _, req := range s.requests {
		counts[req.Status]++
	}
	return counts, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, id string, next domain.Status, actor, groupLink string) (*domain.Request, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	req, ok := s.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := req.CanTransitionTo(next); err != nil {
		return nil, err
	}
	req.Status = next
	req.UpdatedBy = actor
	if groupLink != "" {
		req.GroupLink = groupLink
	}
	cp := *req
	return &cp, nil
}

func (s *fakeStore) BindTelegramID(ctx context.Context, req *domain.Request, telegramID string) (*domain.Request, error) {
	stored := s.requests[req.ID]
	stored.TelegramID = telegramID
	cp := *stored
	return &cp, nil
}

func (s *fakeStore) SetLoggedIn(ctx context.Context, req *domain.Request, loggedIn bool) (*domain.Request, error) {
	stored := s.requests[req.ID]
	stored.LoggedIn = loggedIn
	cp := *stored
	return &cp, nil
}

type fakeAuditor struct {
	events []audit.Event
}

func (a *fakeAuditor) Log(event audit.Event) {
	a.events = append(a.events, event)
}

type fakeNotifier struct {
	notified []*domain.Request
	err      error
}

func (n *fakeNotifier) NotifyDecision(ctx context.Context, req *domain.Request) error {
	if n.err != nil {
		return n.err
	}
	n.notified = append(n.notified, req)
	return nil
}

var testLinks = map[string]string{
	"Media":     "https://t.me/+media",
	"Logistics": "https://t.me/+logistics",
}

func newTestService(store workflow.RecordStore, auditor workflow.Auditor, notifier workflow.Notifier) *workflow.Service {
	return workflow.NewService(store, auditor, notifier, testLinks, metrics.NewMetrics(nil), zap.NewNop())
}

func pendingRequest(id, telegramID string) *domain.Request {
	return &domain.Request{
		ID:         id,
		TelegramID: telegramID,
		Status:     domain.StatusPending,
		LoggedIn:   true,
		Payload: domain.Payload{
			Name:      "Аня",
			Committee: "Media",
		},
	}
}

func TestService_Submit(t *testing.T) {
	store := newFakeStore()
	auditor := &fakeAuditor{}
	svc := newTestService(store, auditor, nil)
	ctx := context.Background()

	req, err := svc.Submit(ctx, workflow.Submission{
		TelegramID: "100",
		Username:   "@anya_tg",
		Payload:    domain.Payload{Name: "Аня", Committee: "Media"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, domain.StatusPending, req.Status)
	assert.Equal(t, "anya_tg", req.Username)
	assert.False(t, req.SubmittedAt.IsZero())

	require.Len(t, auditor.events, 1)
	assert.Equal(t, audit.ActionSubmitted, auditor.events[0].Action)
	assert.Equal(t, req.ID, auditor.events[0].RequestID)
}

func TestService_Submit_EmptyPayload(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)

	_, err := svc.Submit(context.Background(), workflow.Submission{
		TelegramID: "100",
		Payload:    domain.Payload{Name: "   "},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, store.requests) // в хранилище ничего не попало
}

func TestService_CheckStatus_OwnershipMasked(t *testing.T) {
	store := newFakeStore(pendingRequest("req-1", "100"))
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	got, err := svc.CheckStatus(ctx, "100", "req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.ID)

	// Чужая заявка выглядит как несуществующая
	_, err = svc.CheckStatus(ctx, "666", "req-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.CheckStatus(ctx, "100", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_Decide_Approve(t *testing.T) {
	store := newFakeStore(pendingRequest("req-1", "100"))
	auditor := &fakeAuditor{}
	notifier := &fakeNotifier{}
	svc := newTestService(store, auditor, notifier)

	result, err := svc.Decide(context.Background(), "req-1", "operator", workflow.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, result.Request.Status)
	assert.Equal(t, "operator", result.Request.UpdatedBy)
	assert.Equal(t, testLinks["Media"], result.Request.GroupLink)

	// Вошедший заявитель получает уведомление
	assert.True(t, result.Notified)
	require.Len(t, notifier.notified, 1)

	require.Len(t, auditor.events, 1)
	assert.Equal(t, audit.ActionApproved, auditor.events[0].Action)
	assert.Equal(t, "operator", auditor.events[0].Actor)
}

func TestService_Decide_RejectHasNoGroupLink(t *testing.T) {
	store := newFakeStore(pendingRequest("req-1", "100"))
	svc := newTestService(store, nil, nil)

	result, err := svc.Decide(context.Background(), "req-1", "operator", workflow.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, result.Request.Status)
	assert.Empty(t, result.Request.GroupLink)
}

func TestService_Decide_Conflict(t *testing.T) {
	req := pendingRequest("req-1", "100")
	req.Status = domain.StatusApproved
	store := newFakeStore(req)
	auditor := &fakeAuditor{}
	svc := newTestService(store, auditor, nil)

	_, err := svc.Decide(context.Background(), "req-1", "operator", workflow.DecisionReject)
	assert.ErrorIs(t, err, domain.ErrAlreadyDecided)
	assert.Empty(t, auditor.events) // конфликт не попадает в журнал решений
}

func TestService_Decide_Validation(t *testing.T) {
	store := newFakeStore(pendingRequest("req-1", "100"))
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.Decide(ctx, "req-1", "operator", workflow.Decision("maybe"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Decide(ctx, "req-1", "  ", workflow.DecisionApprove)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Decide(ctx, "missing", "operator", workflow.DecisionApprove)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_Decide_NotificationSkippedForLoggedOut(t *testing.T) {
	req := pendingRequest("req-1", "100")
	req.LoggedIn = false
	store := newFakeStore(req)
	notifier := &fakeNotifier{}
	svc := newTestService(store, nil, notifier)

	result, err := svc.Decide(context.Background(), "req-1", "operator", workflow.DecisionApprove)
	require.NoError(t, err)
	assert.False(t, result.Notified)
	assert.Empty(t, notifier.notified)
}

func TestService_Decide_NotificationFailureDoesNotUndoDecision(t *testing.T) {
	store := newFakeStore(pendingRequest("req-1", "100"))
	notifier := &fakeNotifier{err: errors.New("telegram is down")}
	svc := newTestService(store, nil, notifier)

	result, err := svc.Decide(context.Background(), "req-1", "operator", workflow.DecisionApprove)
	require.NoError(t, err)
	assert.False(t, result.Notified)
	assert.Equal(t, domain.StatusApproved, result.Request.Status)
}

func TestService_ResolveApplicant_BindsByUsername(t *testing.T) {
	req := pendingRequest("req-1", "")
	req.Username = "anya_tg"
	store := newFakeStore(req)
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	got, err := svc.ResolveApplicant(ctx, "100500", "anya_tg")
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.ID)
	assert.Equal(t, "100500", got.TelegramID)

	// Привязка сохранилась: следующий вход находит по ID
	got, err = svc.ResolveApplicant(ctx, "100500", "")
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.ID)
}

func TestService_ResolveApplicant_Unknown(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)

	_, err := svc.ResolveApplicant(context.Background(), "100500", "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("bcrypt hash", func(t *testing.T) {
		req := pendingRequest("req-1", "100")
		req.LoggedIn = false
		req.Password = string(hash)
		store := newFakeStore(req)
		auditor := &fakeAuditor{}
		svc := newTestService(store, auditor, nil)

		updated, err := svc.Login(context.Background(), req, "s3cret")
		require.NoError(t, err)
		assert.True(t, updated.LoggedIn)
		require.Len(t, auditor.events, 1)
		assert.Equal(t, audit.ActionLogin, auditor.events[0].Action)
	})

	t.Run("plaintext cell from legacy rows", func(t *testing.T) {
		req := pendingRequest("req-1", "100")
		req.LoggedIn = false
		req.Password = "s3cret"
		store := newFakeStore(req)
		svc := newTestService(store, nil, nil)

		updated, err := svc.Login(context.Background(), req, "s3cret")
		require.NoError(t, err)
		assert.True(t, updated.LoggedIn)
	})

	t.Run("wrong password", func(t *testing.T) {
		req := pendingRequest("req-1", "100")
		req.Password = string(hash)
		store := newFakeStore(req)
		svc := newTestService(store, nil, nil)

		_, err := svc.Login(context.Background(), req, "wrong")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("empty stored password never matches", func(t *testing.T) {
		req := pendingRequest("req-1", "100")
		req.Password = ""
		store := newFakeStore(req)
		svc := newTestService(store, nil, nil)

		_, err := svc.Login(context.Background(), req, "")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestService_Stats(t *testing.T) {
	approved := pendingRequest("req-2", "200")
	approved.Status = domain.StatusApproved
	store := newFakeStore(pendingRequest("req-1", "100"), approved)
	svc := newTestService(store, nil, nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Approved)
}
