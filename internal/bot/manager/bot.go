package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/enrollgate/internal/domain"
	"github.com/xela07ax/enrollgate/internal/workflow"
)

// API — срез Bot API, которым бот реально пользуется
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
}

// Workflow — операции оператора
type Workflow interface {
	ListPending(ctx context.Context) ([]*domain.Request, error)
	Decide(ctx context.Context, id, actor string, decision workflow.Decision) (*workflow.DecisionResult, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

// Префиксы callback-данных инлайн-кнопок
const (
	cbApprove = "approve_"
	cbReject  = "reject_"
)

// Bot — гейтвей операторов. Доступ только по allowlist,
// посторонние не получают даже отказа.
type Bot struct {
	api    API
	svc    Workflow
	admins map[int64]bool
	logger *zap.Logger
}

func NewBot(api API, svc Workflow, adminIDs []int64, logger *zap.Logger) *Bot {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Bot{
		api:    api,
		svc:    svc,
		admins: admins,
		logger: logger.With(zap.String("mod", "manager_bot")),
	}
}

// Run крутит long polling до отмены контекста
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	b.logger.Info("manager bot started")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("manager bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate обрабатывает сообщение или нажатие кнопки
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if !b.isAdmin(update.CallbackQuery.From.ID) {
			return
		}
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		if !b.isAdmin(update.Message.From.ID) {
			b.logger.Warn("non-admin message ignored", zap.Int64("user_id", update.Message.From.ID))
			return
		}
		b.handleCommand(ctx, update.Message)
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.admins[userID]
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.reply(msg.Chat.ID, "Команды:\n/check — заявки в очереди\n/stats — сводка")
	case "check":
		b.handleCheck(ctx, msg.Chat.ID)
	case "stats":
		b.handleStats(ctx, msg.Chat.ID)
	default:
		b.reply(msg.Chat.ID, "Не понял. /check или /stats")
	}
}

// handleCheck шлет каждую ожидающую заявку отдельным сообщением
// с кнопками решения под ней
func (b *Bot) handleCheck(ctx context.Context, chatID int64) {
	pending, err := b.svc.ListPending(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if len(pending) == 0 {
		b.reply(chatID, "Очередь пуста, все заявки рассмотрены.")
		return
	}

	for _, req := range pending {
		msg := tgbotapi.NewMessage(chatID, requestCard(req))
		msg.ReplyMarkup = decisionKeyboard(req.ID)
		if _, err := b.api.Send(msg); err != nil {
			b.logger.Warn("failed to send card", zap.String("request_id", req.ID), zap.Error(err))
		}
	}
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	stats, err := b.svc.Stats(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf(
		"Всего заявок: %d\nВ очереди: %d\nОдобрено: %d\nОтклонено: %d\nДоля одобрений: %.1f%%",
		stats.Total, stats.Pending, stats.Approved, stats.Rejected, stats.ApprovalRate*100,
	))
}

// handleCallback выполняет решение и переписывает карточку заявки.
// Если коллега успел раньше, показываем алерт и не трогаем данные.
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	var decision workflow.Decision
	var id string
	switch {
	case strings.HasPrefix(cb.Data, cbApprove):
		decision, id = workflow.DecisionApprove, strings.TrimPrefix(cb.Data, cbApprove)
	case strings.HasPrefix(cb.Data, cbReject):
		decision, id = workflow.DecisionReject, strings.TrimPrefix(cb.Data, cbReject)
	default:
		b.answerCallback(cb.ID, "Неизвестное действие")
		return
	}

	actor := cb.From.UserName
	if actor == "" {
		actor = fmt.Sprintf("admin:%d", cb.From.ID)
	}

	result, err := b.svc.Decide(ctx, id, actor, decision)
	switch {
	case errors.Is(err, domain.ErrAlreadyDecided):
		b.answerCallback(cb.ID, "Заявку уже рассмотрел другой оператор")
		b.editCard(cb, fmt.Sprintf("Заявка %s уже рассмотрена, обнови очередь через /check.", id))
		return
	case errors.Is(err, domain.ErrNotFound):
		b.answerCallback(cb.ID, "Заявка не найдена")
		return
	case err != nil:
		b.answerCallback(cb.ID, "Ошибка, попробуй позже")
		b.logger.Error("decide failed", zap.String("request_id", id), zap.Error(err))
		return
	}

	verdict := "отклонена"
	if result.Request.Status == domain.StatusApproved {
		verdict = "одобрена"
	}
	delivered := "заявитель уведомлен"
	if !result.Notified {
		delivered = "заявитель узнает при следующем входе"
	}

	b.answerCallback(cb.ID, "Готово")
	b.editCard(cb, fmt.Sprintf("%s\n\nЗаявка %s (%s), %s.",
		requestCard(result.Request), verdict, actor, delivered))
}

// editCard убирает кнопки и заменяет текст карточки
func (b *Bot) editCard(cb *tgbotapi.CallbackQuery, text string) {
	if cb.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, text)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warn("failed to edit card", zap.Error(err))
	}
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

func (b *Bot) answerCallback(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Warn("failed to answer callback", zap.Error(err))
	}
}

func requestCard(req *domain.Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Заявка %s\n", req.ID)
	fmt.Fprintf(&sb, "Имя: %s\n", req.Payload.Name)
	fmt.Fprintf(&sb, "Номер студента: %s\n", req.Payload.StudentNumber)
	fmt.Fprintf(&sb, "Направление: %s\n", req.Payload.Major)
	fmt.Fprintf(&sb, "Email: %s\n", req.Payload.Email)
	fmt.Fprintf(&sb, "Комитет: %s\n", req.Payload.Committee)
	if req.Payload.Info != "" {
		fmt.Fprintf(&sb, "О себе: %s\n", req.Payload.Info)
	}
	if req.Username != "" {
		fmt.Fprintf(&sb, "Telegram: @%s\n", req.Username)
	}
	fmt.Fprintf(&sb, "Подана: %s", req.SubmittedAt.Format("2006-01-02 15:04"))
	return sb.String()
}

func decisionKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Одобрить", cbApprove+id),
			tgbotapi.NewInlineKeyboardButtonData("Отклонить", cbReject+id),
		),
	)
}
