// Command acca is the Acca finance client: it signs in against the API
// gateway, keeps the session token in an encrypted on-disk keystore, and
// reconciles bank statements against existing account transactions.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/touhid12310/acca-mobile-sub001/internal/config"
	"github.com/touhid12310/acca-mobile-sub001/internal/gateway"
	"github.com/touhid12310/acca-mobile-sub001/internal/keystore"
	"github.com/touhid12310/acca-mobile-sub001/internal/session"

	"golang.org/x/term"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stdout)
		return fmt.Errorf("missing command")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return runLogin(rest, stdin, stdout, stderr)
	case "logout":
		return runLogout(rest, stdout, stderr)
	case "status":
		return runStatus(rest, stdout, stderr)
	case "categories":
		return runCategories(rest, stdout, stderr)
	case "summary":
		return runSummary(rest, stdout, stderr)
	case "reconcile":
		return runReconcile(rest, stdin, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stdout)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: acca <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  login       Sign in and store the session token")
	fmt.Fprintln(w, "  logout      Sign out and clear the stored session")
	fmt.Fprintln(w, "  status      Show the current session state")
	fmt.Fprintln(w, "  categories  List transaction categories")
	fmt.Fprintln(w, "  summary     Summarize an account's transactions")
	fmt.Fprintln(w, "  reconcile   Reconcile a bank statement against an account")
}

// app wires the keystore, gateway client and session manager for one
// command invocation.
type app struct {
	cfg     config.Config
	store   *keystore.Store
	gateway *gateway.Client
	session *session.Manager
}

func newApp(stderr io.Writer) (*app, error) {
	cfg := config.Load()
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("ACCA_SERVER_URL is not set")
	}

	store, err := keystore.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore: %w", err)
	}

	client := gateway.New(cfg.ServerURL, gateway.WithTimeout(cfg.HTTPTimeout))
	mgr := session.NewManager(client, store,
		session.WithInterval(cfg.ValidateInterval),
		session.WithNotify(func(message string) { fmt.Fprintln(stderr, message) }),
	)
	return &app{cfg: cfg, store: store, gateway: client, session: mgr}, nil
}

func (a *app) Close() {
	a.session.Close()
	if err := a.store.Close(); err != nil {
		log.Printf("ERROR: closing keystore: %v", err)
	}
}

// restore loads the persisted session and errors when none exists.
func (a *app) restore(ctx context.Context) error {
	a.session.CheckAuthStatus(ctx)
	if !a.session.IsAuthenticated() {
		return fmt.Errorf("not logged in (run: acca login)")
	}
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readPassword(stdin io.Reader, fallback *bufio.Reader) (string, error) {
	// Read without echo when stdin is a terminal
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Fallback for non-terminal (e.g. tests, pipes)
	return readLine(fallback)
}
