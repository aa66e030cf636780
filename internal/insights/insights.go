// Package insights derives dashboard-style figures from transactions the
// client has already fetched. Everything here is a pure computation; the
// authoritative reports still come from the server.
package insights

import (
	"sort"

	"github.com/touhid12310/acca-mobile-sub001/internal/models"

	"github.com/shopspring/decimal"
)

// Summary is the income/expense/net position over a set of transactions.
// Transfers move money between the user's own accounts and count toward
// neither side.
type Summary struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Net     decimal.Decimal
	Count   int
}

// Summarize totals the given transactions.
func Summarize(txs []models.Transaction) Summary {
	s := Summary{Income: decimal.Zero, Expense: decimal.Zero}
	for _, t := range txs {
		switch t.Type {
		case models.TypeIncome:
			s.Income = s.Income.Add(t.Amount)
		case models.TypeExpense:
			s.Expense = s.Expense.Add(t.Amount)
		}
		s.Count++
	}
	s.Net = s.Income.Sub(s.Expense)
	return s
}

// CategoryTotal is one category's share of spending.
type CategoryTotal struct {
	CategoryID int64
	Total      decimal.Decimal
	Count      int
	Percentage float64
}

// CategoryBreakdown aggregates expense transactions by category, largest
// spend first. Percentages are shares of the expense total.
func CategoryBreakdown(txs []models.Transaction) []CategoryTotal {
	totals := make(map[int64]*CategoryTotal)
	grand := decimal.Zero

	for _, t := range txs {
		if t.Type != models.TypeExpense {
			continue
		}
		ct, ok := totals[t.CategoryID]
		if !ok {
			ct = &CategoryTotal{CategoryID: t.CategoryID, Total: decimal.Zero}
			totals[t.CategoryID] = ct
		}
		ct.Total = ct.Total.Add(t.Amount)
		ct.Count++
		grand = grand.Add(t.Amount)
	}

	out := make([]CategoryTotal, 0, len(totals))
	for _, ct := range totals {
		if grand.IsPositive() {
			ct.Percentage, _ = ct.Total.Div(grand).Mul(decimal.NewFromInt(100)).Float64()
		}
		out = append(out, *ct)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Total.Equal(out[j].Total) {
			return out[i].Total.GreaterThan(out[j].Total)
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return out
}
