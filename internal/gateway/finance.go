package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/touhid12310/acca-mobile-sub001/internal/models"

	"github.com/shopspring/decimal"
)

// Accounts lists the user's accounts.
func (c *Client) Accounts(ctx context.Context) ([]models.Account, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/accounts", nil)
	if err != nil {
		return nil, err
	}

	var accounts []models.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("gateway: decode accounts: %w", err)
	}
	return accounts, nil
}

// Transactions lists every transaction recorded against an account.
func (c *Client) Transactions(ctx context.Context, accountID int64) ([]models.Transaction, error) {
	path := fmt.Sprintf("/api/accounts/%d/transactions", accountID)
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var txs []models.Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("gateway: decode transactions: %w", err)
	}
	return txs, nil
}

// Categories lists the categories available for a transaction type.
func (c *Client) Categories(ctx context.Context, t models.TransactionType) ([]models.Category, error) {
	path := "/api/categories?type=" + url.QueryEscape(string(t))
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var cats []models.Category
	if err := json.Unmarshal(data, &cats); err != nil {
		return nil, fmt.Errorf("gateway: decode categories: %w", err)
	}
	return cats, nil
}

// statementRowWire tolerates the gateway's field aliases: the merchant may
// arrive as merchant_name, payee or description, and notes as notes or
// reference, depending on which parser the server ran.
type statementRowWire struct {
	Date         string          `json:"date"`
	MerchantName string          `json:"merchant_name"`
	Payee        string          `json:"payee"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Type         string          `json:"type"`
	Notes        string          `json:"notes"`
	Reference    string          `json:"reference"`
}

var statementDateLayouts = []string{"2006-01-02", time.RFC3339, "02/01/2006"}

func parseStatementDate(value string) (time.Time, error) {
	var err error
	for _, layout := range statementDateLayouts {
		var d time.Time
		if d, err = time.Parse(layout, value); err == nil {
			return d, nil
		}
	}
	return time.Time{}, err
}

func (w statementRowWire) normalize() (models.StatementRow, error) {
	date, err := parseStatementDate(w.Date)
	if err != nil {
		return models.StatementRow{}, fmt.Errorf("gateway: statement row date %q: %w", w.Date, err)
	}

	merchant := w.MerchantName
	if merchant == "" {
		merchant = w.Payee
	}
	if merchant == "" {
		merchant = w.Description
	}
	notes := w.Notes
	if notes == "" {
		notes = w.Reference
	}

	return models.StatementRow{
		Date:         date,
		MerchantName: merchant,
		Description:  w.Description,
		Amount:       w.Amount,
		Type:         models.TransactionType(w.Type),
		Notes:        notes,
	}, nil
}

// ProcessStatement uploads a bank-statement file for server-side parsing and
// returns the extracted rows with field aliases resolved. Rows the server
// hands back with an unparseable date are skipped.
func (c *Client) ProcessStatement(ctx context.Context, filename string, file io.Reader) ([]models.StatementRow, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("gateway: build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("gateway: read statement file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("gateway: build upload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/statements/process", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	data, err := c.send(req)
	if err != nil {
		return nil, err
	}

	var wire []statementRowWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("gateway: decode statement rows: %w", err)
	}

	rows := make([]models.StatementRow, 0, len(wire))
	for i, w := range wire {
		row, err := w.normalize()
		if err != nil {
			log.Printf("gateway: skipping statement row %d: %v", i+1, err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// CreateTransaction records one new transaction. Server-side validation
// failures come back as a *StatusError with a field-keyed error map.
func (c *Client) CreateTransaction(ctx context.Context, tx models.NewTransaction) (*models.Transaction, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/transactions", tx)
	if err != nil {
		return nil, err
	}

	var created models.Transaction
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("gateway: decode created transaction: %w", err)
	}
	return &created, nil
}

// CreateTransactions records a batch of transactions in a single request.
// The server commits all of them or none.
func (c *Client) CreateTransactions(ctx context.Context, txs []models.NewTransaction) ([]models.Transaction, error) {
	body := map[string]any{"transactions": txs}
	data, err := c.do(ctx, http.MethodPost, "/api/transactions/bulk", body)
	if err != nil {
		return nil, err
	}

	var created []models.Transaction
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("gateway: decode created transactions: %w", err)
	}
	return created, nil
}

// Dashboard fetches the server-computed dashboard summary.
func (c *Client) Dashboard(ctx context.Context) (*models.DashboardSummary, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/dashboard", nil)
	if err != nil {
		return nil, err
	}

	var summary models.DashboardSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("gateway: decode dashboard: %w", err)
	}
	return &summary, nil
}

// SpendingReport fetches the per-category spending report for one month.
func (c *Client) SpendingReport(ctx context.Context, year, month int) (*models.SpendingReport, error) {
	path := "/api/reports/spending?year=" + strconv.Itoa(year) + "&month=" + strconv.Itoa(month)
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var report models.SpendingReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("gateway: decode spending report: %w", err)
	}
	return &report, nil
}

// SendAssistantMessage submits one chat message to the finance assistant and
// returns the assistant's reply. The response itself is computed remotely.
func (c *Client) SendAssistantMessage(ctx context.Context, text string) (*models.ChatMessage, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/assistant/messages", map[string]string{"message": text})
	if err != nil {
		return nil, err
	}

	var reply models.ChatMessage
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("gateway: decode assistant reply: %w", err)
	}
	return &reply, nil
}

// AssistantHistory fetches the stored assistant conversation.
func (c *Client) AssistantHistory(ctx context.Context) ([]models.ChatMessage, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/assistant/messages", nil)
	if err != nil {
		return nil, err
	}

	var history []models.ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("gateway: decode assistant history: %w", err)
	}
	return history, nil
}
