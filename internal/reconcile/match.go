// Package reconcile matches bank-statement rows against the transactions
// already recorded on an account and drives the save workflow that commits
// the leftovers as new transactions.
package reconcile

import (
	"strings"
	"time"

	"github.com/touhid12310/acca-mobile-sub001/internal/models"

	"github.com/shopspring/decimal"
)

// amountTolerance absorbs floating-point noise in statement amounts.
var amountTolerance = decimal.New(1, -2) // 0.01

// sameDay compares only the calendar date, ignoring time of day.
func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// matches reports whether a statement row and an existing transaction agree
// on calendar date, amount within the tolerance, and merchant name ignoring
// case. All three must hold; there is no partial scoring.
func matches(row Row, tx models.Transaction) bool {
	if !sameDay(row.Date, tx.Date) {
		return false
	}
	if row.Amount.Sub(tx.Amount).Abs().GreaterThan(amountTolerance) {
		return false
	}
	return strings.EqualFold(row.MerchantName, tx.MerchantName)
}

// matchTransaction returns the first existing transaction the row matches,
// or nil. Matched transactions stay in the candidate pool, so one existing
// transaction can match several rows.
func matchTransaction(row Row, existing []models.Transaction) *models.Transaction {
	for i := range existing {
		if matches(row, existing[i]) {
			return &existing[i]
		}
	}
	return nil
}
