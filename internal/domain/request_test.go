package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/enrollgate/internal/domain"
)

func TestRequest_CanTransitionTo(t *testing.T) {
	t.Run("pending to approved", func(t *testing.T) {
		req := &domain.Request{Status: domain.StatusPending}
		require.NoError(t, req.CanTransitionTo(domain.StatusApproved))
	})

	t.Run("pending to rejected", func(t *testing.T) {
		req := &domain.Request{Status: domain.StatusPending}
		require.NoError(t, req.CanTransitionTo(domain.StatusRejected))
	})

	t.Run("approved is immutable", func(t *testing.T) {
		req := &domain.Request{Status: domain.StatusApproved}
		assert.ErrorIs(t, req.CanTransitionTo(domain.StatusRejected), domain.ErrAlreadyDecided)
		assert.ErrorIs(t, req.CanTransitionTo(domain.StatusApproved), domain.ErrAlreadyDecided)
	})

	t.Run("rejected is immutable", func(t *testing.T) {
		req := &domain.Request{Status: domain.StatusRejected}
		assert.ErrorIs(t, req.CanTransitionTo(domain.StatusApproved), domain.ErrAlreadyDecided)
	})

	t.Run("pending to pending is not a decision", func(t *testing.T) {
		req := &domain.Request{Status: domain.StatusPending}
		assert.ErrorIs(t, req.CanTransitionTo(domain.StatusPending), domain.ErrInvalidTransition)
	})

	t.Run("unknown status is frozen", func(t *testing.T) {
		// Строка с рукописным статусом из таблицы: решения по ней не принимаются
		req := &domain.Request{Status: domain.Status("WAITLIST")}
		assert.ErrorIs(t, req.CanTransitionTo(domain.StatusApproved), domain.ErrAlreadyDecided)
	})
}

func TestRequest_IsTerminal(t *testing.T) {
	assert.False(t, (&domain.Request{Status: domain.StatusPending}).IsTerminal())
	assert.True(t, (&domain.Request{Status: domain.StatusApproved}).IsTerminal())
	assert.True(t, (&domain.Request{Status: domain.StatusRejected}).IsTerminal())
	assert.False(t, (&domain.Request{Status: domain.Status("WAITLIST")}).IsTerminal())
}

func TestRequest_BelongsTo(t *testing.T) {
	req := &domain.Request{TelegramID: "123456"}

	assert.True(t, req.BelongsTo("123456"))
	assert.True(t, req.BelongsTo(" 123456 "))
	assert.False(t, req.BelongsTo("654321"))

	// Непривязанная заявка не принадлежит никому, даже "пустому" запросу
	unbound := &domain.Request{}
	assert.False(t, unbound.BelongsTo(""))
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want domain.Status
		ok   bool
	}{
		{"", domain.StatusPending, true},
		{"Pending", domain.StatusPending, true},
		{"  pending ", domain.StatusPending, true},
		{"Approved", domain.StatusApproved, true},
		{"APPROVED", domain.StatusApproved, true},
		{"Accepted", domain.StatusApproved, true}, // историческое значение
		{"Rejected", domain.StatusRejected, true},
		{"Waitlist", "", false},
		{"да", "", false},
	}

	for _, tc := range cases {
		got, ok := domain.ParseStatus(tc.raw)
		assert.Equal(t, tc.ok, ok, "raw=%q", tc.raw)
		assert.Equal(t, tc.want, got, "raw=%q", tc.raw)
	}
}

func TestPayload_IsEmpty(t *testing.T) {
	assert.True(t, domain.Payload{}.IsEmpty())
	assert.True(t, domain.Payload{Name: "   "}.IsEmpty())
	assert.False(t, domain.Payload{Info: "хочу в медиа"}.IsEmpty())
}

func TestNewStats(t *testing.T) {
	stats := domain.NewStats(map[domain.Status]int{
		domain.StatusPending:  2,
		domain.StatusApproved: 3,
		domain.StatusRejected: 5,
	})

	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 3, stats.Approved)
	assert.Equal(t, 5, stats.Rejected)
	assert.InDelta(t, 0.3, stats.ApprovalRate, 1e-9)

	empty := domain.NewStats(nil)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.ApprovalRate)
}
