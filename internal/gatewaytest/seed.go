package gatewaytest

import (
	"strings"
	"time"

	"github.com/touhid12310/acca-mobile-sub001/internal/models"

	"github.com/shopspring/decimal"
)

// SeedUser registers a user directly in the fake's state and returns the
// stored profile.
func (s *Server) SeedUser(name, email, password string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	user := models.User{ID: s.nextID, Name: name, Email: email}
	s.users[strings.ToLower(email)] = &userRecord{user: user, password: password}
	return user
}

// SetTwoFactor enables two-factor auth for a seeded user with a fixed code.
func (s *Server) SetTwoFactor(email, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec := s.users[strings.ToLower(email)]; rec != nil {
		rec.twoFactorCode = code
	}
}

// SeedAccount creates an account.
func (s *Server) SeedAccount(name string, balance decimal.Decimal) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	account := models.Account{ID: s.nextID, Name: name, Type: "checking", Currency: "USD", Balance: balance}
	s.accounts[account.ID] = &account
	return account
}

// SeedCategory creates a category scoped to the given transaction type.
func (s *Server) SeedCategory(name string, typ models.TransactionType) models.Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	cat := models.Category{ID: s.nextID, Name: name, Type: typ}
	s.cats = append(s.cats, cat)
	return cat
}

// SeedTransaction stores an existing transaction on an account without
// going through request validation or balance adjustment.
func (s *Server) SeedTransaction(accountID int64, merchant string, amount decimal.Decimal, typ models.TransactionType, date time.Time, categoryID int64) models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	tx := models.Transaction{
		ID:           s.nextID,
		AccountID:    accountID,
		MerchantName: merchant,
		Amount:       amount,
		Type:         typ,
		Date:         date,
		CategoryID:   categoryID,
	}
	s.txs[accountID] = append(s.txs[accountID], tx)
	return tx
}

// Transactions returns a copy of the stored transactions for an account.
func (s *Server) Transactions(accountID int64) []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.Transaction(nil), s.txs[accountID]...)
}

// RevokeAllSessions invalidates every issued token, simulating a
// server-side "log out everywhere".
func (s *Server) RevokeAllSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = make(map[string]int64)
}

// ActiveSessions reports how many tokens are currently valid.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tokens)
}

// Calls reports how many times a named endpoint has been hit.
func (s *Server) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[name]
}
