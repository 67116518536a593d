package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/enrollgate/internal/domain"
)

// Sender — минимум, который нужен от Bot API (в тестах подменяется)
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier шлет заявителю итог рассмотрения через бота,
// в которого он уже входил. Сообщение одно, без повторов.
type TelegramNotifier struct {
	bot      Sender
	teamLink string
	logger   *zap.Logger
}

func NewTelegramNotifier(bot Sender, teamLink string, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:      bot,
		teamLink: teamLink,
		logger:   logger.With(zap.String("mod", "notify")),
	}
}

func (n *TelegramNotifier) NotifyDecision(ctx context.Context, req *domain.Request) error {
	chatID, err := strconv.ParseInt(req.TelegramID, 10, 64)
	if err != nil {
		return fmt.Errorf("notify: bad telegram id %q: %w", req.TelegramID, err)
	}

	msg := tgbotapi.NewMessage(chatID, decisionText(req, n.teamLink))
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("notify: send failed: %w", err)
	}

	n.logger.Info("decision delivered",
		zap.String("request_id", req.ID),
		zap.String("status", string(req.Status)),
	)
	return nil
}

func decisionText(req *domain.Request, teamLink string) string {
	switch req.Status {
	case domain.StatusApproved:
		text := fmt.Sprintf("Привет, %s! Твоя заявка в комитет %q одобрена.",
			req.Payload.Name, req.Payload.Committee)
		if req.GroupLink != "" {
			text += "\nГруппа комитета: " + req.GroupLink
		}
		if teamLink != "" {
			text += "\nОбщая группа команды: " + teamLink
		}
		return text
	case domain.StatusRejected:
		return fmt.Sprintf("Привет, %s. К сожалению, заявка в комитет %q отклонена. Можно подать новую в следующем наборе.",
			req.Payload.Name, req.Payload.Committee)
	default:
		return fmt.Sprintf("Привет, %s! Твоя заявка ещё на рассмотрении.", req.Payload.Name)
	}
}
