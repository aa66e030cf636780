package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a transaction already recorded against an account, as
// returned by the server.
type Transaction struct {
	ID           int64           `json:"id"`
	AccountID    int64           `json:"account_id"`
	MerchantName string          `json:"merchant_name"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Type         TransactionType `json:"type"`
	Date         time.Time       `json:"date"`
	CategoryID   int64           `json:"category_id,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

// NewTransaction is the creation payload for single and bulk transaction
// creation. PaymentMethod carries the account id the transaction is recorded
// against.
type NewTransaction struct {
	MerchantName  string          `json:"merchant_name"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Type          TransactionType `json:"type"`
	Date          time.Time       `json:"date"`
	CategoryID    int64           `json:"category_id,omitempty"`
	PaymentMethod int64           `json:"payment_method"`
	Notes         string          `json:"notes,omitempty"`
}

// StatementRow is one normalized row extracted from an uploaded bank
// statement. The gateway resolves the server's field aliases
// (merchant_name/description/payee, notes/reference) before handing rows to
// callers, so MerchantName and Notes are already settled here.
type StatementRow struct {
	Date         time.Time       `json:"date"`
	MerchantName string          `json:"merchant_name"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Type         TransactionType `json:"type"`
	Notes        string          `json:"notes,omitempty"`
}
