package manager

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/enrollgate/internal/domain"
	"github.com/xela07ax/enrollgate/internal/workflow"
)

type sentMessage struct {
	chatID int64
	text   string
	markup interface{}
}

type fakeTgAPI struct {
	sent      []sentMessage
	callbacks []string
	edits     []string
}

func (f *fakeTgAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.sent = append(f.sent, sentMessage{chatID: m.ChatID, text: m.Text, markup: m.ReplyMarkup})
	case tgbotapi.EditMessageTextConfig:
		f.edits = append(f.edits, m.Text)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeTgAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.callbacks = append(f.callbacks, cb.Text)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTgAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	ch := make(chan tgbotapi.Update)
	close(ch)
	return ch
}

type fakeWorkflow struct {
	pending []*domain.Request
	stats   domain.Stats

	decidedID string
	decision  workflow.Decision
	decideErr error
}

func (f *fakeWorkflow) ListPending(ctx context.Context) ([]*domain.Request, error) {
	return f.pending, nil
}

func (f *fakeWorkflow) Decide(ctx context.Context, id, actor string, decision workflow.Decision) (*workflow.DecisionResult, error) {
	if f.decideErr != nil {
		return nil, f.decideErr
	}
	f.decidedID, f.decision = id, decision
	req := &domain.Request{ID: id, Status: domain.StatusApproved, Payload: domain.Payload{Name: "Аня"}, SubmittedAt: time.Now()}
	return &workflow.DecisionResult{Request: req, Notified: true}, nil
}

func (f *fakeWorkflow) Stats(ctx context.Context) (domain.Stats, error) {
	return f.stats, nil
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, UserName: "operator"},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len(text)},
		},
	}}
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: userID, UserName: "operator"},
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: 7,
			Chat:      &tgbotapi.Chat{ID: userID},
		},
	}}
}

func TestBot_NonAdminIgnored(t *testing.T) {
	api := &fakeTgAPI{}
	bot := NewBot(api, &fakeWorkflow{}, []int64{1}, zap.NewNop())

	bot.HandleUpdate(context.Background(), commandUpdate(999, "/check"))
	bot.HandleUpdate(context.Background(), callbackUpdate(999, cbApprove+"req-1"))

	// Постороннему не отвечаем вообще
	assert.Empty(t, api.sent)
	assert.Empty(t, api.callbacks)
}

func TestBot_CheckSendsCardsWithButtons(t *testing.T) {
	api := &fakeTgAPI{}
	wf := &fakeWorkflow{pending: []*domain.Request{
		{ID: "req-1", Status: domain.StatusPending, Payload: domain.Payload{Name: "Аня", Committee: "Media"}},
		{ID: "req-2", Status: domain.StatusPending, Payload: domain.Payload{Name: "Борис", Committee: "Logistics"}},
	}}
	bot := NewBot(api, wf, []int64{1}, zap.NewNop())

	bot.HandleUpdate(context.Background(), commandUpdate(1, "/check"))

	require.Len(t, api.sent, 2)
	assert.Contains(t, api.sent[0].text, "req-1")
	assert.Contains(t, api.sent[0].text, "Аня")

	markup, ok := api.sent[0].markup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	require.Len(t, markup.InlineKeyboard[0], 2)
	assert.Equal(t, cbApprove+"req-1", *markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, cbReject+"req-1", *markup.InlineKeyboard[0][1].CallbackData)
}

func TestBot_CheckEmptyQueue(t *testing.T) {
	api := &fakeTgAPI{}
	bot := NewBot(api, &fakeWorkflow{}, []int64{1}, zap.NewNop())

	bot.HandleUpdate(context.Background(), commandUpdate(1, "/check"))

	require.Len(t, api.sent, 1)
	assert.Contains(t, api.sent[0].text, "пуста")
}

func TestBot_CallbackDecides(t *testing.T) {
	api := &fakeTgAPI{}
	wf := &fakeWorkflow{}
	bot := NewBot(api, wf, []int64{1}, zap.NewNop())

	bot.HandleUpdate(context.Background(), callbackUpdate(1, cbApprove+"req-1"))

	assert.Equal(t, "req-1", wf.decidedID)
	assert.Equal(t, workflow.DecisionApprove, wf.decision)

	// Карточка переписана, кнопки больше не показываются
	require.Len(t, api.edits, 1)
	assert.Contains(t, api.edits[0], "одобрена")
	require.Len(t, api.callbacks, 1)
}

func TestBot_CallbackConflictShowsAlert(t *testing.T) {
	api := &fakeTgAPI{}
	wf := &fakeWorkflow{decideErr: domain.ErrAlreadyDecided}
	bot := NewBot(api, wf, []int64{1}, zap.NewNop())

	bot.HandleUpdate(context.Background(), callbackUpdate(1, cbReject+"req-1"))

	require.Len(t, api.callbacks, 1)
	assert.Contains(t, api.callbacks[0], "уже рассмотрел")
	require.Len(t, api.edits, 1)
	assert.Contains(t, api.edits[0], "req-1")
}

func TestBot_Stats(t *testing.T) {
	api := &fakeTgAPI{}
	wf := &fakeWorkflow{stats: domain.Stats{Total: 4, Pending: 1, Approved: 2, Rejected: 1, ApprovalRate: 0.5}}
	bot := NewBot(api, wf, []int64{1}, zap.NewNop())

	bot.HandleUpdate(context.Background(), commandUpdate(1, "/stats"))

	require.Len(t, api.sent, 1)
	assert.Contains(t, api.sent[0].text, "Всего заявок: 4")
	assert.Contains(t, api.sent[0].text, "50.0%")
}
