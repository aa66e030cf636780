package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/touhid12310/acca-mobile-sub001/internal/catalog"
	"github.com/touhid12310/acca-mobile-sub001/internal/gateway"
	"github.com/touhid12310/acca-mobile-sub001/internal/insights"
	"github.com/touhid12310/acca-mobile-sub001/internal/models"
	"github.com/touhid12310/acca-mobile-sub001/internal/reconcile"
)

func runLogin(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(stderr)

	email := fs.String("email", "", "Account email")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	code := fs.String("code", "", "Two-factor code (optional)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		fmt.Fprintln(stdout, "Usage: acca login -email <email> [-password <password>] [-code <code>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: email")
	}

	reader := bufio.NewReader(stdin)
	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin, reader)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout) // Print newline after password input
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	app, err := newApp(stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	res := app.session.Login(ctx, *email, password, *code)
	if res.RequiresTwoFactor {
		fmt.Fprint(stdout, "Two-factor code: ")
		twoFactor, err := readLine(reader)
		if err != nil {
			return fmt.Errorf("failed to read two-factor code: %w", err)
		}
		fmt.Fprintln(stdout)
		res = app.session.Login(ctx, *email, password, twoFactor)
	}
	if !res.Success {
		printFieldErrors(stderr, res.FieldErrors)
		return fmt.Errorf("login failed: %s", res.Message)
	}

	if user := app.session.User(); user != nil {
		fmt.Fprintf(stdout, "Logged in as %s <%s>\n", user.Name, user.Email)
	}
	return nil
}

func runLogout(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	app, err := newApp(stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	app.session.CheckAuthStatus(ctx)
	if !app.session.IsAuthenticated() {
		fmt.Fprintln(stdout, "Not logged in.")
		return nil
	}

	app.session.Logout(ctx, false)
	fmt.Fprintln(stdout, "Logged out.")
	return nil
}

func runStatus(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	app, err := newApp(stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	app.session.CheckAuthStatus(ctx)
	if !app.session.IsAuthenticated() {
		fmt.Fprintln(stdout, "Not logged in.")
		return nil
	}
	if !app.session.ValidateSession(ctx) {
		fmt.Fprintln(stdout, "Session expired. Please log in again.")
		return nil
	}

	user := app.session.User()
	if user == nil {
		fmt.Fprintln(stdout, "Logged in.")
		return nil
	}
	fmt.Fprintf(stdout, "Logged in as %s <%s> (server: %s)\n", user.Name, user.Email, app.cfg.ServerURL)
	return nil
}

func runCategories(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("categories", flag.ContinueOnError)
	fs.SetOutput(stderr)

	typ := fs.String("type", "", "Filter by type: income, expense or transfer")

	if err := fs.Parse(args); err != nil {
		return err
	}
	t := models.TransactionType(*typ)
	if *typ != "" && !t.Valid() {
		return fmt.Errorf("invalid type: %s", *typ)
	}

	app, err := newApp(stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	if err := app.restore(ctx); err != nil {
		return err
	}

	cats, err := catalog.New(app.gateway)
	if err != nil {
		return fmt.Errorf("failed to create category catalog: %w", err)
	}
	defer cats.Close()

	list, err := cats.Categories(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to list categories: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(stdout, "No categories.")
		return nil
	}
	for _, c := range list {
		fmt.Fprintf(stdout, "%4d  %-10s %s\n", c.ID, c.Type, c.Name)
	}
	return nil
}

func runSummary(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	fs.SetOutput(stderr)

	accountID := fs.Int64("account", 0, "Account ID")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *accountID == 0 {
		fmt.Fprintln(stdout, "Usage: acca summary -account <id>")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: account")
	}

	app, err := newApp(stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	if err := app.restore(ctx); err != nil {
		return err
	}

	txs, err := app.gateway.Transactions(ctx, *accountID)
	if err != nil {
		return fmt.Errorf("failed to fetch transactions: %w", err)
	}

	sum := insights.Summarize(txs)
	fmt.Fprintf(stdout, "Transactions: %d\n", sum.Count)
	fmt.Fprintf(stdout, "Income:       %s\n", sum.Income.StringFixed(2))
	fmt.Fprintf(stdout, "Expenses:     %s\n", sum.Expense.StringFixed(2))
	fmt.Fprintf(stdout, "Net:          %s\n", sum.Net.StringFixed(2))

	breakdown := insights.CategoryBreakdown(txs)
	if len(breakdown) == 0 {
		return nil
	}

	cats, err := catalog.New(app.gateway)
	if err != nil {
		return fmt.Errorf("failed to create category catalog: %w", err)
	}
	defer cats.Close()

	names := make(map[int64]string)
	if list, err := cats.Categories(ctx, models.TypeExpense); err == nil {
		for _, c := range list {
			names[c.ID] = c.Name
		}
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Spending by category:")
	for _, row := range breakdown {
		name := names[row.CategoryID]
		if name == "" {
			name = "(uncategorized)"
		}
		fmt.Fprintf(stdout, "  %-20s %12s  %5.1f%%\n", name, row.Total.StringFixed(2), row.Percentage)
	}
	return nil
}

// reconcileAPI routes category lookups through the in-memory catalog while
// the rest of the calls go straight to the gateway.
type reconcileAPI struct {
	*gateway.Client
	catalog *catalog.Catalog
}

func (r reconcileAPI) Categories(ctx context.Context, t models.TransactionType) ([]models.Category, error) {
	return r.catalog.Categories(ctx, t)
}

func runReconcile(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(stderr)

	accountID := fs.Int64("account", 0, "Account ID to reconcile against")
	file := fs.String("file", "", "Path to the statement file")
	defaultCategory := fs.Int64("category", 0, "Category ID to assign to uncategorized new rows")
	saveAll := fs.Bool("save-all", false, "Save every unmatched row as a new transaction")
	discard := fs.Bool("clear", false, "Discard the uploaded rows without saving")

	if err := fs.Parse(args); err != nil {
		return err
	}
	var missing []string
	if *accountID == 0 {
		missing = append(missing, "account")
	}
	if *file == "" {
		missing = append(missing, "file")
	}
	if len(missing) > 0 {
		fmt.Fprintln(stdout, "Usage: acca reconcile -account <id> -file <statement.csv> [-category <id>] [-save-all] [-clear]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	if *saveAll && *discard {
		return fmt.Errorf("-save-all and -clear are mutually exclusive")
	}

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("failed to open statement: %w", err)
	}
	defer f.Close()

	app, err := newApp(stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	if err := app.restore(ctx); err != nil {
		return err
	}

	cats, err := catalog.New(app.gateway)
	if err != nil {
		return fmt.Errorf("failed to create category catalog: %w", err)
	}
	defer cats.Close()

	ws := reconcile.NewWorkingSet(*accountID, reconcileAPI{Client: app.gateway, catalog: cats})
	if err := ws.ProcessStatement(ctx, filepath.Base(*file), f); err != nil {
		return fmt.Errorf("failed to process statement: %w", err)
	}

	if *defaultCategory != 0 {
		for i, row := range ws.Rows() {
			if row.Matched || row.CategoryID != 0 {
				continue
			}
			if err := ws.UpdateField(ctx, i, reconcile.FieldCategory, strconv.FormatInt(*defaultCategory, 10)); err != nil {
				return fmt.Errorf("failed to set category: %w", err)
			}
		}
	}

	fmt.Fprintf(stdout, "Processed %d rows: %d matched, %d new.\n",
		ws.Len(), ws.MatchedCount(), ws.UnmatchedCount())
	for i, row := range ws.Rows() {
		status := "new"
		if row.Matched {
			status = "matched"
		}
		fmt.Fprintf(stdout, "%4d  %-7s %s  %-24s %10s  %s\n",
			i+1, status, row.Date.Format("2006-01-02"), row.MerchantName,
			row.Amount.StringFixed(2), row.Type)
	}

	switch {
	case *discard:
		fmt.Fprintf(stdout, "Discard %d rows without saving? [y/N]: ", ws.Len())
		answer, err := readLine(bufio.NewReader(stdin))
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Fprintln(stdout, "Aborted.")
			return nil
		}
		ws.Clear()
		fmt.Fprintln(stdout, "Working set cleared.")

	case *saveAll:
		toSave := ws.UnmatchedCount()
		if err := ws.SaveAll(ctx); err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		fmt.Fprintf(stdout, "Saved %d transactions.\n", toSave)

	default:
		if ws.UnmatchedCount() > 0 {
			fmt.Fprintln(stdout, "Run again with -save-all to save the new rows.")
		}
	}
	return nil
}

func printFieldErrors(w io.Writer, errs map[string][]string) {
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		for _, msg := range errs[field] {
			fmt.Fprintf(w, "%s: %s\n", field, msg)
		}
	}
}
