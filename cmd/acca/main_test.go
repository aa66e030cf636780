package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/touhid12310/acca-mobile-sub001/internal/gatewaytest"
	"github.com/touhid12310/acca-mobile-sub001/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer starts a fake gateway and points the command environment at
// it. Every run() call inside the test shares the same data dir, so sessions
// persist across invocations the way they do across app launches.
func newTestServer(t *testing.T) *gatewaytest.Server {
	t.Helper()
	s := gatewaytest.New()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	t.Setenv("ACCA_SERVER_URL", srv.URL)
	t.Setenv("ACCA_DATA_DIR", t.TempDir())
	t.Setenv("ACCA_VALIDATE_INTERVAL", "1h")
	return s
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func loginAs(t *testing.T, s *gatewaytest.Server) {
	t.Helper()
	s.SeedUser("Ada Lovelace", "ada@example.com", "secret123")
	_, _, err := execute(t, "", "login", "-email", "ada@example.com", "-password", "secret123")
	require.NoError(t, err, "login fixture must succeed")
}

func writeStatement(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statement.csv")
	content := strings.Join(append([]string{"Date,Payee,Amount,Type"}, rows...), "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_MissingCommand(t *testing.T) {
	stdout, _, err := execute(t, "")

	assert.EqualError(t, err, "missing command")
	assert.Contains(t, stdout, "Usage: acca <command> [flags]")
}

func TestRun_UnknownCommand(t *testing.T) {
	stdout, _, err := execute(t, "", "frobnicate")

	assert.EqualError(t, err, "unknown command: frobnicate")
	assert.Contains(t, stdout, "Commands:")
}

func TestRun_Help(t *testing.T) {
	stdout, _, err := execute(t, "", "help")

	require.NoError(t, err)
	assert.Contains(t, stdout, "reconcile   Reconcile a bank statement against an account")
}

func TestRun_RequiresServerURL(t *testing.T) {
	t.Setenv("ACCA_SERVER_URL", "")
	t.Setenv("ACCA_DATA_DIR", t.TempDir())

	_, _, err := execute(t, "", "status")

	assert.EqualError(t, err, "ACCA_SERVER_URL is not set")
}

func TestRun_Login_MissingEmail(t *testing.T) {
	stdout, _, err := execute(t, "", "login")

	assert.EqualError(t, err, "missing required flags: email")
	assert.Contains(t, stdout, "Usage: acca login")
}

func TestRun_LoginThenLogout(t *testing.T) {
	s := newTestServer(t)
	s.SeedUser("Ada Lovelace", "ada@example.com", "secret123")

	stdout, _, err := execute(t, "", "login", "-email", "ada@example.com", "-password", "secret123")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Logged in as Ada Lovelace <ada@example.com>")
	assert.Equal(t, 1, s.ActiveSessions())

	stdout, _, err = execute(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Logged out.")
	assert.Zero(t, s.ActiveSessions(), "logout must revoke the server-side token")

	stdout, _, err = execute(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Not logged in.")
}

func TestRun_Login_PromptsForPassword(t *testing.T) {
	s := newTestServer(t)
	s.SeedUser("Ada Lovelace", "ada@example.com", "secret123")

	stdout, _, err := execute(t, "secret123\n", "login", "-email", "ada@example.com")

	require.NoError(t, err)
	assert.Contains(t, stdout, "Password: ")
	assert.Contains(t, stdout, "Logged in as Ada Lovelace")
}

func TestRun_Login_EmptyPassword(t *testing.T) {
	newTestServer(t)

	_, _, err := execute(t, "\n", "login", "-email", "ada@example.com")

	assert.EqualError(t, err, "password cannot be empty")
}

func TestRun_Login_TwoFactorPrompt(t *testing.T) {
	s := newTestServer(t)
	s.SeedUser("Ada Lovelace", "ada@example.com", "secret123")
	s.SetTwoFactor("ada@example.com", "123456")

	stdout, _, err := execute(t, "123456\n",
		"login", "-email", "ada@example.com", "-password", "secret123")

	require.NoError(t, err)
	assert.Contains(t, stdout, "Two-factor code: ")
	assert.Contains(t, stdout, "Logged in as Ada Lovelace")
	assert.Equal(t, 1, s.ActiveSessions())
}

func TestRun_Login_BadPassword(t *testing.T) {
	s := newTestServer(t)
	s.SeedUser("Ada Lovelace", "ada@example.com", "secret123")

	_, _, err := execute(t, "", "login", "-email", "ada@example.com", "-password", "nope")

	assert.EqualError(t, err, "login failed: Invalid email or password")
	assert.Zero(t, s.ActiveSessions())
}

func TestRun_Status(t *testing.T) {
	s := newTestServer(t)

	stdout, _, err := execute(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Not logged in.")

	loginAs(t, s)
	stdout, _, err = execute(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Logged in as Ada Lovelace <ada@example.com>")

	s.RevokeAllSessions()
	stdout, _, err = execute(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Session expired. Please log in again.")

	// The forced logout cleared the stored token for the next launch too.
	stdout, _, err = execute(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Not logged in.")
}

func TestRun_Categories(t *testing.T) {
	s := newTestServer(t)
	s.SeedCategory("Groceries", models.TypeExpense)
	s.SeedCategory("Salary", models.TypeIncome)

	_, _, err := execute(t, "", "categories")
	require.Error(t, err, "categories needs a session")
	assert.Contains(t, err.Error(), "not logged in")

	loginAs(t, s)

	stdout, _, err := execute(t, "", "categories")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Groceries")
	assert.Contains(t, stdout, "Salary")

	stdout, _, err = execute(t, "", "categories", "-type", "income")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "Groceries")
	assert.Contains(t, stdout, "Salary")

	_, _, err = execute(t, "", "categories", "-type", "loan")
	assert.EqualError(t, err, "invalid type: loan")
}

func TestRun_Summary(t *testing.T) {
	s := newTestServer(t)
	loginAs(t, s)
	acct := s.SeedAccount("Checking", decimal.RequireFromString("1000.00"))
	cat := s.SeedCategory("Groceries", models.TypeExpense)
	jan := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	s.SeedTransaction(acct.ID, "Employer", decimal.RequireFromString("2500.00"), models.TypeIncome, jan, 0)
	s.SeedTransaction(acct.ID, "Corner Grocer", decimal.RequireFromString("80.25"), models.TypeExpense, jan, cat.ID)

	stdout, _, err := execute(t, "", "summary", "-account", strconv.FormatInt(acct.ID, 10))

	require.NoError(t, err)
	assert.Contains(t, stdout, "Transactions: 2")
	assert.Contains(t, stdout, "2500.00")
	assert.Contains(t, stdout, "2419.75")
	assert.Contains(t, stdout, "Spending by category:")
	assert.Contains(t, stdout, "Groceries")
}

func TestRun_Summary_MissingAccount(t *testing.T) {
	stdout, _, err := execute(t, "", "summary")

	assert.EqualError(t, err, "missing required flags: account")
	assert.Contains(t, stdout, "Usage: acca summary")
}

func TestRun_Reconcile_DryRunListsPartition(t *testing.T) {
	s := newTestServer(t)
	loginAs(t, s)
	acct := s.SeedAccount("Checking", decimal.RequireFromString("1000.00"))
	s.SeedTransaction(acct.ID, "Coffee Shop", decimal.RequireFromString("4.50"), models.TypeExpense,
		time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), 0)
	file := writeStatement(t,
		"2024-01-15,Coffee Shop,4.50,expense",
		"2024-01-16,New Bakery,10.00,expense",
	)

	stdout, _, err := execute(t, "", "reconcile",
		"-account", strconv.FormatInt(acct.ID, 10), "-file", file)

	require.NoError(t, err)
	assert.Contains(t, stdout, "Processed 2 rows: 1 matched, 1 new.")
	assert.Contains(t, stdout, "Coffee Shop")
	assert.Contains(t, stdout, "Run again with -save-all to save the new rows.")
	assert.Len(t, s.Transactions(acct.ID), 1, "a dry run must not create transactions")
}

func TestRun_Reconcile_SaveAll(t *testing.T) {
	s := newTestServer(t)
	loginAs(t, s)
	acct := s.SeedAccount("Checking", decimal.RequireFromString("1000.00"))
	cat := s.SeedCategory("Eating Out", models.TypeExpense)
	s.SeedTransaction(acct.ID, "Coffee Shop", decimal.RequireFromString("4.50"), models.TypeExpense,
		time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), 0)
	file := writeStatement(t,
		"2024-01-15,Coffee Shop,4.50,expense",
		"2024-01-16,New Bakery,10.00,expense",
	)

	stdout, _, err := execute(t, "", "reconcile",
		"-account", strconv.FormatInt(acct.ID, 10), "-file", file,
		"-category", strconv.FormatInt(cat.ID, 10), "-save-all")

	require.NoError(t, err)
	assert.Contains(t, stdout, "Saved 1 transactions.")
	assert.Len(t, s.Transactions(acct.ID), 2, "only the unmatched row is created")
}

func TestRun_Reconcile_SaveAllNeedsCategory(t *testing.T) {
	s := newTestServer(t)
	loginAs(t, s)
	acct := s.SeedAccount("Checking", decimal.RequireFromString("1000.00"))
	file := writeStatement(t, "2024-01-16,New Bakery,10.00,expense")

	_, _, err := execute(t, "", "reconcile",
		"-account", strconv.FormatInt(acct.ID, 10), "-file", file, "-save-all")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "category_id is required")
	assert.Empty(t, s.Transactions(acct.ID))
}

func TestRun_Reconcile_ClearAsksForConfirmation(t *testing.T) {
	s := newTestServer(t)
	loginAs(t, s)
	acct := s.SeedAccount("Checking", decimal.RequireFromString("1000.00"))
	file := writeStatement(t, "2024-01-16,New Bakery,10.00,expense")
	accountFlag := strconv.FormatInt(acct.ID, 10)

	stdout, _, err := execute(t, "n\n", "reconcile", "-account", accountFlag, "-file", file, "-clear")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Discard 1 rows without saving? [y/N]: ")
	assert.Contains(t, stdout, "Aborted.")

	stdout, _, err = execute(t, "y\n", "reconcile", "-account", accountFlag, "-file", file, "-clear")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Working set cleared.")
	assert.Empty(t, s.Transactions(acct.ID))
}

func TestRun_Reconcile_FlagValidation(t *testing.T) {
	stdout, _, err := execute(t, "", "reconcile")
	assert.EqualError(t, err, "missing required flags: account, file")
	assert.Contains(t, stdout, "Usage: acca reconcile")

	_, _, err = execute(t, "", "reconcile", "-account", "1", "-file", "x.csv", "-save-all", "-clear")
	assert.EqualError(t, err, "-save-all and -clear are mutually exclusive")
}

func TestRun_Reconcile_RequiresLogin(t *testing.T) {
	newTestServer(t)
	file := writeStatement(t, "2024-01-16,New Bakery,10.00,expense")

	_, _, err := execute(t, "", "reconcile", "-account", "1", "-file", file)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}
