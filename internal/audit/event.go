package audit

import "time"

// Действия, попадающие в журнал
const (
	ActionSubmitted = "SUBMITTED"
	ActionApproved  = "APPROVED"
	ActionRejected  = "REJECTED"
	ActionLogin     = "LOGIN"
)

// Event — одна строка append-only журнала решений.
// Заявки из основного листа никогда не удаляются, журнал дополняет их
// историей: кто, когда и что сделал.
type Event struct {
	ID         string    `json:"id"`         // UUID события
	RequestID  string    `json:"request_id"` // По какой заявке
	Actor      string    `json:"actor"`      // Кто действовал (оператор или заявитель)
	Action     string    `json:"action"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Note       string    `json:"note,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
