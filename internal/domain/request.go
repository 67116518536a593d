package domain

import (
	"errors"
	"strings"
	"time"
)

// Статусы State Machine заявки
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

var (
	ErrInvalidTransition = errors.New("invalid request status transition")
	ErrAlreadyDecided    = errors.New("request already decided")
	ErrNotFound          = errors.New("request not found")
	ErrValidation        = errors.New("invalid submission")
)

// Payload — содержательная часть заявки. Для workflow это непрозрачные
// данные: он проверяет только их наличие, интерпретацией занимаются люди.
type Payload struct {
	Name          string `json:"name"`
	StudentNumber string `json:"student_number"`
	Major         string `json:"major"`
	Email         string `json:"email"`
	Committee     string `json:"committee"`
	Info          string `json:"info"`
}

// IsEmpty — пустая заявка не должна попасть в хранилище.
func (p Payload) IsEmpty() bool {
	return strings.TrimSpace(p.Name) == "" &&
		strings.TrimSpace(p.StudentNumber) == "" &&
		strings.TrimSpace(p.Major) == "" &&
		strings.TrimSpace(p.Email) == "" &&
		strings.TrimSpace(p.Committee) == "" &&
		strings.TrimSpace(p.Info) == ""
}

// Request — одна строка в таблице. Row — внутренний хэндл строки,
// наружу (в боты и консоль) отдается только ID.
type Request struct {
	ID           string  `json:"id"`
	RespondentID string  `json:"respondent_id,omitempty"`
	Payload      Payload `json:"payload"`
	Status       Status  `json:"status"`

	// Привязка к Telegram-аккаунту заявителя
	TelegramID string `json:"telegram_id,omitempty"`
	Username   string `json:"username,omitempty"`

	// Служебные поля (не отдаем наружу)
	Password     string `json:"-"`
	SignatureURL string `json:"-"`
	LoggedIn     bool   `json:"-"`

	GroupLink string `json:"group_link,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedBy   string    `json:"updated_by,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`

	Row int `json:"-"`
}

// CanTransitionTo проверяет правила конечного автомата.
// PENDING — единственное нетерминальное состояние.
func (r *Request) CanTransitionTo(next Status) error {
	if r.Status != StatusPending {
		return ErrAlreadyDecided
	}
	if next != StatusApproved && next != StatusRejected {
		return ErrInvalidTransition
	}
	return nil
}

// IsTerminal — по терминальной заявке решений больше не принимается.
func (r *Request) IsTerminal() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}

// BelongsTo проверяет, что заявку запрашивает её владелец.
// Чужой ID неотличим от несуществующего (возвращаем NotFound выше).
func (r *Request) BelongsTo(telegramID string) bool {
	return r.TelegramID != "" && r.TelegramID == strings.TrimSpace(telegramID)
}

// ParseStatus разбирает значение ячейки Status. Пустая ячейка означает
// PENDING (строки, созданные внешней формой, статус не заполняют).
// Историческое значение "Accepted" читаем как APPROVED.
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pending":
		return StatusPending, true
	case "approved", "accepted":
		return StatusApproved, true
	case "rejected":
		return StatusRejected, true
	default:
		return "", false
	}
}
