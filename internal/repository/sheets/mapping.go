package sheets

import (
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/enrollgate/internal/domain"
)

// Раскладка колонок листа заявок (1-based). Первые шестнадцать колонок
// заполняет внешняя форма регистрации, Updated_By/Updated_At дописывает
// workflow при смене статуса.
const (
	colSubmissionID = iota + 1
	colRespondentID
	colSubmittedAt
	colName
	colStudentNumber
	colMajor
	colEmail
	colInfo
	colCommittee
	colGroupLink
	colUsername
	colTelegramID
	colPassword
	colSignature
	colStatus
	colLoggedIn
	colUpdatedBy
	colUpdatedAt

	lastCol = colUpdatedAt
)

// Времена пишем в RFC3339; чужие строки парсим best-effort
const timeLayout = time.RFC3339

// colLetter работает для колонок A..Z, дальше раскладка не растет
func colLetter(col int) string {
	return string(rune('A' + col - 1))
}

// dataRange — диапазон всех данных листа без строки заголовков
func dataRange(worksheet string) string {
	return fmt.Sprintf("'%s'!A2:%s", worksheet, colLetter(lastCol))
}

func rowRange(worksheet string, row int) string {
	return fmt.Sprintf("'%s'!A%d:%s%d", worksheet, row, colLetter(lastCol), row)
}

func cellRange(worksheet string, col, row int) string {
	return fmt.Sprintf("'%s'!%s%d:%s%d", worksheet, colLetter(col), row, colLetter(col), row)
}

func cellString(row []interface{}, col int) string {
	if col-1 >= len(row) || row[col-1] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[col-1]))
}

func cellBool(row []interface{}, col int) bool {
	switch strings.ToLower(cellString(row, col)) {
	case "yes", "y", "true", "1":
		return true
	default:
		return false
	}
}

func cellTime(row []interface{}, col int) time.Time {
	raw := cellString(row, col)
	if raw == "" {
		return time.Time{}
	}
	// Строки из внешней формы могут быть в произвольном формате —
	// тогда оставляем нулевое время, содержимое не трогаем
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// rowToRequest разбирает строку листа в доменную заявку.
// Неизвестное значение статуса сохраняется как есть: такая заявка
// не PENDING и не терминальная, решения по ней не принимаются.
func rowToRequest(row []interface{}, rowNum int) *domain.Request {
	status, ok := domain.ParseStatus(cellString(row, colStatus))
	if !ok {
		status = domain.Status(strings.ToUpper(cellString(row, colStatus)))
	}

	return &domain.Request{
		ID:           cellString(row, colSubmissionID),
		RespondentID: cellString(row, colRespondentID),
		SubmittedAt:  cellTime(row, colSubmittedAt),
		Payload: domain.Payload{
			Name:          cellString(row, colName),
			StudentNumber: cellString(row, colStudentNumber),
			Major:         cellString(row, colMajor),
			Email:         cellString(row, colEmail),
			Info:          cellString(row, colInfo),
			Committee:     cellString(row, colCommittee),
		},
		GroupLink:    cellString(row, colGroupLink),
		Username:     strings.TrimPrefix(cellString(row, colUsername), "@"),
		TelegramID:   cellString(row, colTelegramID),
		Password:     cellString(row, colPassword),
		SignatureURL: cellString(row, colSignature),
		Status:       status,
		LoggedIn:     cellBool(row, colLoggedIn),
		UpdatedBy:    cellString(row, colUpdatedBy),
		UpdatedAt:    cellTime(row, colUpdatedAt),
		Row:          rowNum,
	}
}

// requestToRow собирает строку для values.append при создании заявки
func requestToRow(req *domain.Request) []interface{} {
	row := make([]interface{}, lastCol)
	for i := range row {
		row[i] = ""
	}
	row[colSubmissionID-1] = req.ID
	row[colRespondentID-1] = req.RespondentID
	if !req.SubmittedAt.IsZero() {
		row[colSubmittedAt-1] = req.SubmittedAt.Format(timeLayout)
	}
	row[colName-1] = req.Payload.Name
	row[colStudentNumber-1] = req.Payload.StudentNumber
	row[colMajor-1] = req.Payload.Major
	row[colEmail-1] = req.Payload.Email
	row[colInfo-1] = req.Payload.Info
	row[colCommittee-1] = req.Payload.Committee
	row[colGroupLink-1] = req.GroupLink
	row[colUsername-1] = req.Username
	row[colTelegramID-1] = req.TelegramID
	row[colPassword-1] = req.Password
	row[colSignature-1] = req.SignatureURL
	row[colStatus-1] = statusCell(req.Status)
	row[colLoggedIn-1] = loggedInCell(req.LoggedIn)
	return row
}

// statusCell — человекочитаемое значение для ячейки Status
func statusCell(s domain.Status) string {
	switch s {
	case domain.StatusPending:
		return "Pending"
	case domain.StatusApproved:
		return "Approved"
	case domain.StatusRejected:
		return "Rejected"
	default:
		return string(s)
	}
}

func loggedInCell(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// isEmptyRow — хвостовые пустые строки листа пропускаем целиком
func isEmptyRow(row []interface{}) bool {
	for _, v := range row {
		if strings.TrimSpace(fmt.Sprint(v)) != "" {
			return false
		}
	}
	return true
}
