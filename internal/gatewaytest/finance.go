package gatewaytest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/touhid12310/acca-mobile-sub001/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	s.count("accounts")

	s.mu.Lock()
	accounts := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, *a)
	}
	s.mu.Unlock()

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	ok(w, accounts)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	s.count("transactions")

	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid account id", nil)
		return
	}

	s.mu.Lock()
	_, found := s.accounts[accountID]
	txs := append([]models.Transaction(nil), s.txs[accountID]...)
	s.mu.Unlock()

	if !found {
		fail(w, http.StatusNotFound, "account not found", nil)
		return
	}
	ok(w, txs)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.count("categories")

	typ := r.URL.Query().Get("type")

	s.mu.Lock()
	cats := make([]models.Category, 0, len(s.cats))
	for _, c := range s.cats {
		if typ == "" || string(c.Type) == typ {
			cats = append(cats, c)
		}
	}
	s.mu.Unlock()

	ok(w, cats)
}

// statementRow is emitted with the payee and reference field names the
// production statement parser uses, exercising client alias handling.
type statementRow struct {
	Date        string `json:"date"`
	Payee       string `json:"payee"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	Type        string `json:"type,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

func (s *Server) handleProcessStatement(w http.ResponseWriter, r *http.Request) {
	s.count("process_statement")

	file, _, err := r.FormFile("file")
	if err != nil {
		fail(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"file": {"The file field is required."}})
		return
	}
	defer file.Close()

	rows, err := parseStatementCSV(file)
	if err != nil {
		fail(w, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	}
	ok(w, rows)
}

// parseStatementCSV reads a headered CSV statement. Rows with unusable
// dates or amounts are dropped, matching the lenient production parser.
func parseStatementCSV(r io.Reader) ([]statementRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read statement header")
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	field := func(record []string, name string) string {
		i, found := col[name]
		if !found || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rows := []statementRow{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if strings.Join(record, "") == "" {
			continue
		}

		date := field(record, "date")
		if _, err := time.Parse("2006-01-02", date); err != nil {
			continue
		}
		amount := field(record, "amount")
		if _, err := decimal.NewFromString(amount); err != nil {
			continue
		}
		payee := field(record, "payee")
		if payee == "" {
			payee = field(record, "merchant")
		}

		rows = append(rows, statementRow{
			Date:        date,
			Payee:       payee,
			Description: field(record, "description"),
			Amount:      amount,
			Type:        field(record, "type"),
			Reference:   field(record, "reference"),
		})
	}
	return rows, nil
}

func validateNewTransaction(tx models.NewTransaction) map[string][]string {
	errs := make(map[string][]string)
	if strings.TrimSpace(tx.MerchantName) == "" {
		errs["merchant_name"] = []string{"The merchant name field is required."}
	}
	if tx.Amount.IsZero() {
		errs["amount"] = []string{"The amount field is required."}
	}
	if tx.Date.IsZero() {
		errs["date"] = []string{"The date field is required."}
	}
	if !tx.Type.Valid() {
		errs["type"] = []string{"The selected type is invalid."}
	}
	if tx.CategoryID == 0 && tx.Type != models.TypeTransfer {
		errs["category_id"] = []string{"The category field is required."}
	}
	if tx.PaymentMethod == 0 {
		errs["payment_method"] = []string{"The payment method field is required."}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// insertLocked stores a transaction and adjusts the account balance.
// Callers must hold s.mu.
func (s *Server) insertLocked(req models.NewTransaction) models.Transaction {
	s.nextID++
	tx := models.Transaction{
		ID:           s.nextID,
		AccountID:    req.PaymentMethod,
		MerchantName: req.MerchantName,
		Description:  req.Description,
		Amount:       req.Amount,
		Type:         req.Type,
		Date:         req.Date,
		CategoryID:   req.CategoryID,
		Notes:        req.Notes,
	}
	s.txs[tx.AccountID] = append(s.txs[tx.AccountID], tx)

	if account := s.accounts[tx.AccountID]; account != nil {
		switch tx.Type {
		case models.TypeIncome:
			account.Balance = account.Balance.Add(tx.Amount)
		case models.TypeExpense:
			account.Balance = account.Balance.Sub(tx.Amount)
		}
	}
	return tx
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	s.count("create_transaction")

	var req models.NewTransaction
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if errs := validateNewTransaction(req); errs != nil {
		fail(w, http.StatusUnprocessableEntity, "The given data was invalid.", errs)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accounts[req.PaymentMethod] == nil {
		fail(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"payment_method": {"The selected payment method is invalid."}})
		return
	}
	tx := s.insertLocked(req)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": tx})
}

func (s *Server) handleCreateTransactions(w http.ResponseWriter, r *http.Request) {
	s.count("create_transactions")

	var req struct {
		Transactions []models.NewTransaction `json:"transactions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if len(req.Transactions) == 0 {
		fail(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"transactions": {"The transactions field is required."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before storing anything.
	errs := make(map[string][]string)
	for i, tx := range req.Transactions {
		for field, msgs := range validateNewTransaction(tx) {
			errs[fmt.Sprintf("transactions.%d.%s", i, field)] = msgs
		}
		if s.accounts[tx.PaymentMethod] == nil {
			errs[fmt.Sprintf("transactions.%d.payment_method", i)] =
				[]string{"The selected payment method is invalid."}
		}
	}
	if len(errs) > 0 {
		fail(w, http.StatusUnprocessableEntity, "The given data was invalid.", errs)
		return
	}

	created := make([]models.Transaction, 0, len(req.Transactions))
	for _, tx := range req.Transactions {
		created = append(created, s.insertLocked(tx))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": created})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.count("dashboard")

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	summary := models.DashboardSummary{
		TotalBalance: decimal.Zero,
		MonthIncome:  decimal.Zero,
		MonthExpense: decimal.Zero,
	}
	for _, account := range s.accounts {
		summary.TotalBalance = summary.TotalBalance.Add(account.Balance)
	}

	var all []models.Transaction
	for _, txs := range s.txs {
		all = append(all, txs...)
	}
	for _, tx := range all {
		if tx.Date.Year() != now.Year() || tx.Date.Month() != now.Month() {
			continue
		}
		switch tx.Type {
		case models.TypeIncome:
			summary.MonthIncome = summary.MonthIncome.Add(tx.Amount)
		case models.TypeExpense:
			summary.MonthExpense = summary.MonthExpense.Add(tx.Amount)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Date.After(all[j].Date) })
	if len(all) > 5 {
		all = all[:5]
	}
	summary.RecentTransactions = all

	ok(w, summary)
}

func (s *Server) handleSpendingReport(w http.ResponseWriter, r *http.Request) {
	s.count("spending_report")

	year, _ := strconv.Atoi(r.URL.Query().Get("year"))
	month, _ := strconv.Atoi(r.URL.Query().Get("month"))
	if year == 0 || month < 1 || month > 12 {
		fail(w, http.StatusBadRequest, "invalid report period", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names := make(map[int64]string, len(s.cats))
	for _, c := range s.cats {
		names[c.ID] = c.Name
	}

	totals := make(map[int64]decimal.Decimal)
	counts := make(map[int64]int)
	report := models.SpendingReport{Year: year, Month: month, Total: decimal.Zero}
	for _, txs := range s.txs {
		for _, tx := range txs {
			if tx.Type != models.TypeExpense {
				continue
			}
			if tx.Date.Year() != year || tx.Date.Month() != time.Month(month) {
				continue
			}
			totals[tx.CategoryID] = totals[tx.CategoryID].Add(tx.Amount)
			counts[tx.CategoryID]++
			report.Total = report.Total.Add(tx.Amount)
		}
	}
	for id, total := range totals {
		report.Categories = append(report.Categories, models.SpendingReportRow{
			CategoryID:   id,
			CategoryName: names[id],
			Total:        total,
			Count:        counts[id],
		})
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		return report.Categories[i].CategoryID < report.Categories[j].CategoryID
	})

	ok(w, report)
}

func (s *Server) handleAssistantHistory(w http.ResponseWriter, r *http.Request) {
	s.count("assistant_history")

	s.mu.Lock()
	history := append([]models.ChatMessage(nil), s.chat...)
	s.mu.Unlock()

	ok(w, history)
}

func (s *Server) handleAssistantMessage(w http.ResponseWriter, r *http.Request) {
	s.count("assistant_message")

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		fail(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"message": {"The message field is required."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var txCount int
	for _, txs := range s.txs {
		txCount += len(txs)
	}

	s.nextID++
	s.chat = append(s.chat, models.ChatMessage{
		ID: s.nextID, Role: "user", Content: req.Message, CreatedAt: time.Now(),
	})
	s.nextID++
	reply := models.ChatMessage{
		ID:   s.nextID,
		Role: "assistant",
		Content: fmt.Sprintf("You have %d accounts and %d transactions on file.",
			len(s.accounts), txCount),
		CreatedAt: time.Now(),
	}
	s.chat = append(s.chat, reply)

	ok(w, reply)
}
