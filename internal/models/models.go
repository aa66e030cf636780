package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a transaction as money in, money out, or a
// movement between the user's own accounts.
type TransactionType string

const (
	TypeIncome   TransactionType = "income"
	TypeExpense  TransactionType = "expense"
	TypeTransfer TransactionType = "transfer"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeIncome, TypeExpense, TypeTransfer:
		return true
	}
	return false
}

// User is the profile snapshot the server returns on login, registration and
// session validation.
type User struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// Account represents one of the user's money accounts (bank, card, cash).
type Account struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

// Category is a transaction category. Categories are scoped to a transaction
// type: an expense category cannot be assigned to an income transaction.
type Category struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Type  TransactionType `json:"type"`
	Icon  string          `json:"icon,omitempty"`
	Color string          `json:"color,omitempty"`
}

// ChatMessage is one turn in the finance-assistant conversation.
type ChatMessage struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// TwoFactorSetup carries the server-generated secret for enrolling an
// authenticator app. The secret is never derived client-side.
type TwoFactorSetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

// DashboardSummary is the server-computed dashboard payload.
type DashboardSummary struct {
	TotalBalance       decimal.Decimal `json:"total_balance"`
	MonthIncome        decimal.Decimal `json:"month_income"`
	MonthExpense       decimal.Decimal `json:"month_expense"`
	RecentTransactions []Transaction   `json:"recent_transactions"`
}

// SpendingReportRow is a single category line in a monthly spending report.
type SpendingReportRow struct {
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Total        decimal.Decimal `json:"total"`
	Count        int             `json:"count"`
}

// SpendingReport is the server-computed per-category spending for one month.
type SpendingReport struct {
	Year       int                 `json:"year"`
	Month      int                 `json:"month"`
	Total      decimal.Decimal     `json:"total"`
	Categories []SpendingReportRow `json:"categories"`
}
