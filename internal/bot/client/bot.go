package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/enrollgate/internal/domain"
	"github.com/xela07ax/enrollgate/internal/workflow"
)

// API — срез Bot API, которым бот реально пользуется
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
}

// Workflow — операции заявителя
type Workflow interface {
	ResolveApplicant(ctx context.Context, telegramID, username string) (*domain.Request, error)
	Login(ctx context.Context, req *domain.Request, password string) (*domain.Request, error)
	Submit(ctx context.Context, sub workflow.Submission) (*domain.Request, error)
	StatusByTelegramID(ctx context.Context, telegramID string) (*domain.Request, error)
	CheckStatus(ctx context.Context, requesterID, id string) (*domain.Request, error)
}

// Этапы диалога. Бот помнит, какого сообщения ждет от собеседника.
const (
	stepNone     = ""
	stepPassword = "password"
	stepApply    = "apply"
)

type dialog struct {
	step    string
	pending *domain.Request // чья заявка, если ждем пароль
}

// Bot — клиентский гейтвей: подача заявки, вход и проверка статуса.
// Решения здесь принять нельзя, только посмотреть результат.
type Bot struct {
	api     API
	svc     Workflow
	limiter *Limiter
	logger  *zap.Logger

	mu      sync.Mutex
	dialogs map[int64]*dialog
}

func NewBot(api API, svc Workflow, limiter *Limiter, logger *zap.Logger) *Bot {
	return &Bot{
		api:     api,
		svc:     svc,
		limiter: limiter,
		logger:  logger.With(zap.String("mod", "client_bot")),
		dialogs: make(map[int64]*dialog),
	}
}

// Run крутит long polling до отмены контекста
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	b.logger.Info("client bot started")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("client bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate обрабатывает одно входящее сообщение
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message
	userID := msg.From.ID

	if !b.limiter.Allow(userID) {
		// Молчим: ответ забаненному сам по себе трафик
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	default:
		b.handleText(ctx, msg)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "status":
		b.handleStatus(ctx, msg)
	case "apply":
		b.setDialog(msg.Chat.ID, &dialog{step: stepApply})
		b.reply(msg.Chat.ID,
			"Пришли данные заявки одним сообщением, поля через точку с запятой:\n"+
				"Имя; Номер студента; Направление; Email; Комитет; О себе")
	case "cancel":
		b.setDialog(msg.Chat.ID, nil)
		b.reply(msg.Chat.ID, "Ок, отменил.")
	default:
		b.reply(msg.Chat.ID, "Команды: /start /status /apply /cancel")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	req, err := b.svc.ResolveApplicant(ctx, strconv.FormatInt(userID, 10), msg.From.UserName)
	if errors.Is(err, domain.ErrNotFound) {
		if b.limiter.Strike(userID) {
			b.logger.Warn("unknown user banned", zap.Int64("user_id", userID))
			return
		}
		b.reply(msg.Chat.ID, "Не нашел тебя в списке заявок. Подай заявку командой /apply.")
		return
	}
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}

	b.limiter.Forgive(userID)
	if req.LoggedIn {
		b.reply(msg.Chat.ID, statusText(req))
		return
	}
	b.setDialog(msg.Chat.ID, &dialog{step: stepPassword, pending: req})
	b.reply(msg.Chat.ID, fmt.Sprintf("Привет, %s! Введи пароль из письма с подтверждением.", req.Payload.Name))
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	requesterID := strconv.FormatInt(msg.From.ID, 10)

	var req *domain.Request
	var err error
	// "/status <id>" проверяет конкретную заявку; чужой ID выглядит
	// как несуществующий
	if id := strings.TrimSpace(msg.CommandArguments()); id != "" {
		req, err = b.svc.CheckStatus(ctx, requesterID, id)
	} else {
		req, err = b.svc.StatusByTelegramID(ctx, requesterID)
	}
	if errors.Is(err, domain.ErrNotFound) {
		b.reply(msg.Chat.ID, "Заявка не найдена. Начни со /start.")
		return
	}
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	if !req.LoggedIn {
		b.reply(msg.Chat.ID, "Сначала войди через /start.")
		return
	}
	b.reply(msg.Chat.ID, statusText(req))
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	d := b.getDialog(msg.Chat.ID)
	if d == nil {
		b.reply(msg.Chat.ID, "Не понял. Команды: /start /status /apply")
		return
	}

	switch d.step {
	case stepPassword:
		b.handlePassword(ctx, msg, d.pending)
	case stepApply:
		b.handleApply(ctx, msg)
	}
}

func (b *Bot) handlePassword(ctx context.Context, msg *tgbotapi.Message, req *domain.Request) {
	updated, err := b.svc.Login(ctx, req, strings.TrimSpace(msg.Text))
	if errors.Is(err, domain.ErrValidation) {
		if b.limiter.Strike(msg.From.ID) {
			b.setDialog(msg.Chat.ID, nil)
			b.logger.Warn("too many wrong passwords", zap.Int64("user_id", msg.From.ID))
			return
		}
		b.reply(msg.Chat.ID, "Пароль не подошел, попробуй еще раз.")
		return
	}
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}

	b.setDialog(msg.Chat.ID, nil)
	b.limiter.Forgive(msg.From.ID)
	b.reply(msg.Chat.ID, "Готово, ты вошел.\n\n"+statusText(updated))
}

func (b *Bot) handleApply(ctx context.Context, msg *tgbotapi.Message) {
	payload, err := parsePayload(msg.Text)
	if err != nil {
		b.reply(msg.Chat.ID, "Не разобрал заявку: "+err.Error())
		return
	}

	req, err := b.svc.Submit(ctx, workflow.Submission{
		TelegramID: strconv.FormatInt(msg.From.ID, 10),
		Username:   msg.From.UserName,
		Payload:    payload,
	})
	if errors.Is(err, domain.ErrValidation) {
		b.reply(msg.Chat.ID, "Заявка не может быть пустой.")
		return
	}
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}

	b.setDialog(msg.Chat.ID, nil)
	b.reply(msg.Chat.ID, fmt.Sprintf("Заявка принята, номер %s. Статус смотри через /status.", req.ID))
}

// parsePayload разбирает "Имя; Номер; Направление; Email; Комитет; О себе".
// Хвостовые поля можно опустить.
func parsePayload(text string) (domain.Payload, error) {
	parts := strings.Split(text, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 5 {
		return domain.Payload{}, errors.New("нужно минимум 5 полей через точку с запятой")
	}
	p := domain.Payload{
		Name:          parts[0],
		StudentNumber: parts[1],
		Major:         parts[2],
		Email:         parts[3],
		Committee:     parts[4],
	}
	if len(parts) > 5 {
		p.Info = strings.Join(parts[5:], "; ")
	}
	if p.IsEmpty() {
		return domain.Payload{}, errors.New("все поля пустые")
	}
	return p, nil
}

func statusText(req *domain.Request) string {
	switch req.Status {
	case domain.StatusApproved:
		text := fmt.Sprintf("Заявка в комитет %q одобрена!", req.Payload.Committee)
		if req.GroupLink != "" {
			text += "\nГруппа комитета: " + req.GroupLink
		}
		return text
	case domain.StatusRejected:
		return fmt.Sprintf("Заявка в комитет %q отклонена.", req.Payload.Committee)
	case domain.StatusPending:
		return fmt.Sprintf("Заявка в комитет %q на рассмотрении, загляни позже.", req.Payload.Committee)
	default:
		return fmt.Sprintf("Статус заявки: %s. Если это выглядит странно, напиши организаторам.", req.Status)
	}
}

func (b *Bot) getDialog(chatID int64) *dialog {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dialogs[chatID]
}

func (b *Bot) setDialog(chatID int64, d *dialog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d == nil {
		delete(b.dialogs, chatID)
		return
	}
	b.dialogs[chatID] = d
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) replyError(chatID int64, err error) {
	b.logger.Error("handler failed", zap.Int64("chat_id", chatID), zap.Error(err))
	b.reply(chatID, "Что-то пошло не так, попробуй позже.")
}
