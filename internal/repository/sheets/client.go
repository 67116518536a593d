package sheets

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"github.com/xela07ax/enrollgate/internal/infra"
)

// ValueUpdate — одна ячейка/диапазон для batchUpdate.
// Свой тип вместо sheetsv4.ValueRange, чтобы фейки в тестах не тянули SDK.
type ValueUpdate struct {
	Range  string
	Values [][]interface{}
}

// API — низкоуровневые операции над таблицей. Реализуется Client-ом
// и ReliableAPI (надежность), в тестах подменяется фейком.
type API interface {
	Get(ctx context.Context, rangeA1 string) ([][]interface{}, error)
	BatchUpdate(ctx context.Context, updates []ValueUpdate) error
	Append(ctx context.Context, rangeA1 string, rows [][]interface{}) error
}

// Client — тонкая обертка над Sheets API v4, аутентифицированная
// сервис-аккаунтом. Креды инжектируются через конфиг, глобального
// состояния авторизации нет.
type Client struct {
	svc           *sheetsv4.Service
	spreadsheetID string
}

func NewClient(ctx context.Context, cfg infra.SheetsConfig) (*Client, error) {
	if len(cfg.Credentials) == 0 {
		return nil, fmt.Errorf("sheets: service account credentials are required")
	}
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet_id is required")
	}

	jwtCfg, err := google.JWTConfigFromJSON(cfg.Credentials, sheetsv4.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to parse service account credentials: %w", err)
	}

	svc, err := sheetsv4.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets: failed to init sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID}, nil
}

func (c *Client) Get(ctx context.Context, rangeA1 string) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rangeA1).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: values.get %s: %w", rangeA1, err)
	}
	return resp.Values, nil
}

func (c *Client) BatchUpdate(ctx context.Context, updates []ValueUpdate) error {
	data := make([]*sheetsv4.ValueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, &sheetsv4.ValueRange{Range: u.Range, Values: u.Values})
	}

	req := &sheetsv4.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}
	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheets: values.batchUpdate: %w", err)
	}
	return nil
}

func (c *Client) Append(ctx context.Context, rangeA1 string, rows [][]interface{}) error {
	vr := &sheetsv4.ValueRange{Values: rows}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rangeA1, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets: values.append %s: %w", rangeA1, err)
	}
	return nil
}
