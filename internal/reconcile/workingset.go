package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/touhid12310/acca-mobile-sub001/internal/models"

	"github.com/shopspring/decimal"
)

// ErrNoSuchRow is returned for an index outside the working set.
var ErrNoSuchRow = errors.New("reconcile: no such row")

// StatementProcessor parses an uploaded statement file into rows.
type StatementProcessor interface {
	ProcessStatement(ctx context.Context, filename string, file io.Reader) ([]models.StatementRow, error)
}

// TransactionAPI lists and creates transactions.
type TransactionAPI interface {
	Transactions(ctx context.Context, accountID int64) ([]models.Transaction, error)
	CreateTransaction(ctx context.Context, tx models.NewTransaction) (*models.Transaction, error)
	CreateTransactions(ctx context.Context, txs []models.NewTransaction) ([]models.Transaction, error)
}

// CategoryLister fetches the categories available for a transaction type.
type CategoryLister interface {
	Categories(ctx context.Context, t models.TransactionType) ([]models.Category, error)
}

// API is the slice of the gateway the reconciliation workflow drives.
type API interface {
	StatementProcessor
	TransactionAPI
	CategoryLister
}

// Row is one statement row in the working set. A matched row carries the
// existing transaction it matched; an unmatched row needs a category before
// it can be saved, unless it is a transfer.
type Row struct {
	Date         time.Time
	MerchantName string
	Description  string
	Amount       decimal.Decimal
	Type         models.TransactionType
	CategoryID   int64
	Notes        string

	Matched     bool
	MatchedWith *models.Transaction
}

// ValidationError names the field blocking a row from being saved. It is
// raised before any request is sent.
type ValidationError struct {
	Index int
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d: %s is required", e.Index+1, e.Field)
}

// WorkingSet holds the statement rows being reconciled against one account.
// It is owned by a single screen and is not safe for concurrent use.
type WorkingSet struct {
	accountID int64
	api       API

	rows           []Row
	matchedCount   int
	unmatchedCount int
	categories     []models.Category
}

// NewWorkingSet creates an empty working set for an account.
func NewWorkingSet(accountID int64, api API) *WorkingSet {
	return &WorkingSet{accountID: accountID, api: api}
}

// AccountID returns the account the working set reconciles against.
func (ws *WorkingSet) AccountID() int64 { return ws.accountID }

// Rows returns a copy of the working rows in order.
func (ws *WorkingSet) Rows() []Row {
	out := make([]Row, len(ws.rows))
	copy(out, ws.rows)
	return out
}

// Len returns the number of rows still in the working set.
func (ws *WorkingSet) Len() int { return len(ws.rows) }

// Empty reports whether the working set has no rows left.
func (ws *WorkingSet) Empty() bool { return len(ws.rows) == 0 }

// MatchedCount returns how many working rows matched an existing transaction.
func (ws *WorkingSet) MatchedCount() int { return ws.matchedCount }

// UnmatchedCount returns how many working rows have no match.
func (ws *WorkingSet) UnmatchedCount() int { return ws.unmatchedCount }

// Categories returns the most recently fetched type-scoped category list.
func (ws *WorkingSet) Categories() []models.Category { return ws.categories }

// ProcessStatement sends the file for parsing and appends the returned rows
// to the working set, partitioned against the account's current
// transactions. Uploads accumulate: rows already in the set stay put.
func (ws *WorkingSet) ProcessStatement(ctx context.Context, filename string, file io.Reader) error {
	parsed, err := ws.api.ProcessStatement(ctx, filename, file)
	if err != nil {
		return fmt.Errorf("process statement: %w", err)
	}
	existing, err := ws.api.Transactions(ctx, ws.accountID)
	if err != nil {
		return fmt.Errorf("load account transactions: %w", err)
	}

	for _, p := range parsed {
		row := newRow(p)
		if match := matchTransaction(row, existing); match != nil {
			row.Matched = true
			row.MatchedWith = match
			ws.matchedCount++
		} else {
			ws.unmatchedCount++
		}
		ws.rows = append(ws.rows, row)
	}
	return nil
}

// newRow converts a parsed statement row, applying defaults: a missing type
// becomes expense, missing amount and text fields keep their zero values.
func newRow(p models.StatementRow) Row {
	typ := p.Type
	if typ == "" {
		typ = models.TypeExpense
	}
	return Row{
		Date:         p.Date,
		MerchantName: p.MerchantName,
		Description:  p.Description,
		Amount:       p.Amount,
		Type:         typ,
		Notes:        p.Notes,
	}
}

// Field names a Row field editable through UpdateField.
type Field string

const (
	FieldDate        Field = "date"
	FieldMerchant    Field = "merchant_name"
	FieldDescription Field = "description"
	FieldAmount      Field = "amount"
	FieldType        Field = "type"
	FieldCategory    Field = "category_id"
	FieldNotes       Field = "notes"
)

// UpdateField applies a single edit to the row at index. Values arrive as
// text, the way a form hands them over. Changing the type clears the row's
// category, since categories are type-scoped, and refreshes the category
// list for the new type.
func (ws *WorkingSet) UpdateField(ctx context.Context, index int, field Field, value string) error {
	if index < 0 || index >= len(ws.rows) {
		return ErrNoSuchRow
	}
	row := &ws.rows[index]

	switch field {
	case FieldDate:
		d, err := time.Parse("2006-01-02", value)
		if err != nil {
			return fmt.Errorf("reconcile: invalid date %q: %w", value, err)
		}
		row.Date = d
	case FieldMerchant:
		row.MerchantName = value
	case FieldDescription:
		row.Description = value
	case FieldAmount:
		amt, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("reconcile: invalid amount %q: %w", value, err)
		}
		row.Amount = amt
	case FieldNotes:
		row.Notes = value
	case FieldCategory:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("reconcile: invalid category id %q: %w", value, err)
		}
		row.CategoryID = id
	case FieldType:
		t := models.TransactionType(value)
		if !t.Valid() {
			return fmt.Errorf("reconcile: invalid transaction type %q", value)
		}
		if t != row.Type {
			row.Type = t
			row.CategoryID = 0
			ws.refreshCategories(ctx, t)
		}
	default:
		return fmt.Errorf("reconcile: unknown field %q", field)
	}
	return nil
}

// refreshCategories reloads the category list for a type. A failed refresh
// does not undo the edit that triggered it.
func (ws *WorkingSet) refreshCategories(ctx context.Context, t models.TransactionType) {
	cats, err := ws.api.Categories(ctx, t)
	if err != nil {
		log.Printf("reconcile: refresh categories for %s: %v", t, err)
		return
	}
	ws.categories = cats
}

// validateRow checks the fields required before a row can be committed:
// merchant, amount, date and type, plus a category unless it is a transfer.
func validateRow(index int, row Row) error {
	switch {
	case strings.TrimSpace(row.MerchantName) == "":
		return &ValidationError{Index: index, Field: "merchant_name"}
	case row.Amount.IsZero():
		return &ValidationError{Index: index, Field: "amount"}
	case row.Date.IsZero():
		return &ValidationError{Index: index, Field: "date"}
	case !row.Type.Valid():
		return &ValidationError{Index: index, Field: "type"}
	case row.CategoryID == 0 && row.Type != models.TypeTransfer:
		return &ValidationError{Index: index, Field: "category_id"}
	}
	return nil
}

// SaveRow validates and submits the row at index as one new transaction.
// On validation failure nothing is sent and the row stays. On server
// failure the row also stays, ready for a retry. A matched row saved here
// is already recorded server-side, so it is just dropped from the set.
func (ws *WorkingSet) SaveRow(ctx context.Context, index int) error {
	if index < 0 || index >= len(ws.rows) {
		return ErrNoSuchRow
	}
	row := ws.rows[index]
	if row.Matched {
		ws.remove(index)
		return nil
	}

	if err := validateRow(index, row); err != nil {
		return err
	}
	if _, err := ws.api.CreateTransaction(ctx, ws.payload(row)); err != nil {
		return fmt.Errorf("save row %d: %w", index+1, err)
	}
	ws.remove(index)
	return nil
}

// Skip drops the row at index without saving it anywhere.
func (ws *WorkingSet) Skip(index int) error {
	if index < 0 || index >= len(ws.rows) {
		return ErrNoSuchRow
	}
	ws.remove(index)
	return nil
}

// SaveAll submits every unmatched row as one bulk request. Validation runs
// over the whole set first: one invalid row aborts the batch before
// anything is sent. On success the entire working set is cleared, matched
// rows included; on server failure it is left untouched for a retry.
func (ws *WorkingSet) SaveAll(ctx context.Context) error {
	var payload []models.NewTransaction
	for i, row := range ws.rows {
		if row.Matched {
			continue
		}
		if err := validateRow(i, row); err != nil {
			return err
		}
		payload = append(payload, ws.payload(row))
	}

	if len(payload) > 0 {
		if _, err := ws.api.CreateTransactions(ctx, payload); err != nil {
			return fmt.Errorf("save all: %w", err)
		}
	}
	ws.Clear()
	return nil
}

// Clear discards the whole working set. Confirming the discard with the
// user is the caller's concern.
func (ws *WorkingSet) Clear() {
	ws.rows = nil
	ws.matchedCount = 0
	ws.unmatchedCount = 0
}

func (ws *WorkingSet) payload(row Row) models.NewTransaction {
	return models.NewTransaction{
		MerchantName:  row.MerchantName,
		Description:   row.Description,
		Amount:        row.Amount,
		Type:          row.Type,
		Date:          row.Date,
		CategoryID:    row.CategoryID,
		PaymentMethod: ws.accountID,
		Notes:         row.Notes,
	}
}

// remove drops the row at index, keeping the counters equal to the
// cardinality of the matched/unmatched partition.
func (ws *WorkingSet) remove(index int) {
	if ws.rows[index].Matched {
		ws.matchedCount--
	} else {
		ws.unmatchedCount--
	}
	ws.rows = append(ws.rows[:index], ws.rows[index+1:]...)
}
