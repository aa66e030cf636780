// Package e2e drives the full client stack, from session manager to
// reconciliation, against the fake gateway over real HTTP.
package e2e

import (
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/touhid12310/acca-mobile-sub001/internal/catalog"
	"github.com/touhid12310/acca-mobile-sub001/internal/gateway"
	"github.com/touhid12310/acca-mobile-sub001/internal/gatewaytest"
	"github.com/touhid12310/acca-mobile-sub001/internal/insights"
	"github.com/touhid12310/acca-mobile-sub001/internal/keystore"
	"github.com/touhid12310/acca-mobile-sub001/internal/models"
	"github.com/touhid12310/acca-mobile-sub001/internal/reconcile"
	"github.com/touhid12310/acca-mobile-sub001/internal/session"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// notifyLog collects session notifications across goroutines.
type notifyLog struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notifyLog) record(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, message)
}

func (n *notifyLog) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

// cachedGateway is the composition the app runs with: gateway calls, with
// category lookups served from the in-process catalog.
type cachedGateway struct {
	*gateway.Client
	catalog *catalog.Catalog
}

func (g cachedGateway) Categories(ctx context.Context, t models.TransactionType) ([]models.Category, error) {
	return g.catalog.Categories(ctx, t)
}

// E2ETestSuite provides a test suite for end-to-end tests
type E2ETestSuite struct {
	suite.Suite
	server  *gatewaytest.Server
	httpSrv *httptest.Server
	store   *keystore.Store
	client  *gateway.Client
	manager *session.Manager
	notify  *notifyLog
}

// SetupTest runs before each test
func (suite *E2ETestSuite) SetupTest() {
	suite.server = gatewaytest.New()
	suite.httpSrv = httptest.NewServer(suite.server)

	store, err := keystore.Open(suite.T().TempDir())
	require.NoError(suite.T(), err, "could not open keystore")
	suite.store = store

	suite.notify = &notifyLog{}
	suite.client = gateway.New(suite.httpSrv.URL)
	// The long interval keeps the background loop quiet; loop behavior is
	// covered by tests that bring their own manager.
	suite.manager = session.NewManager(suite.client, suite.store,
		session.WithInterval(time.Hour),
		session.WithNotify(suite.notify.record),
	)
}

// TearDownTest runs after each test
func (suite *E2ETestSuite) TearDownTest() {
	suite.manager.Close()
	require.NoError(suite.T(), suite.store.Close())
	suite.httpSrv.Close()
}

func (suite *E2ETestSuite) login() {
	suite.server.SeedUser("Ada Lovelace", "ada@example.com", "secret123")
	res := suite.manager.Login(context.Background(), "ada@example.com", "secret123", "")
	require.True(suite.T(), res.Success, "login failed: %s", res.Message)
}

func (suite *E2ETestSuite) TestCompleteReconcileFlow() {
	ctx := context.Background()

	// Sign in
	suite.login()

	// The account already has one purchase recorded
	acct := suite.server.SeedAccount("Checking", decimal.RequireFromString("1000.00"))
	eating := suite.server.SeedCategory("Eating Out", models.TypeExpense)
	suite.server.SeedTransaction(acct.ID, "Coffee Shop", decimal.RequireFromString("4.50"),
		models.TypeExpense, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), eating.ID)

	cats, err := catalog.New(suite.client)
	require.NoError(suite.T(), err, "could not create catalog")
	defer cats.Close()

	// Upload a statement holding that purchase plus an unrecorded one
	ws := reconcile.NewWorkingSet(acct.ID, cachedGateway{Client: suite.client, catalog: cats})
	statement := "Date,Payee,Amount,Type\n" +
		"2024-01-15,coffee shop,4.49,expense\n" +
		"2024-01-16,New Bakery,10.00,expense\n"
	err = ws.ProcessStatement(ctx, "january.csv", strings.NewReader(statement))
	require.NoError(suite.T(), err, "statement upload failed")

	// The recorded purchase matches despite the case and one-cent differences
	assert.Equal(suite.T(), 1, ws.MatchedCount())
	assert.Equal(suite.T(), 1, ws.UnmatchedCount())

	// Categorize the new row and save everything
	err = ws.UpdateField(ctx, 1, reconcile.FieldCategory, strconv.FormatInt(eating.ID, 10))
	require.NoError(suite.T(), err, "could not set category")
	require.NoError(suite.T(), ws.SaveAll(ctx), "save failed")
	assert.True(suite.T(), ws.Empty())

	// Only the bakery row reached the server
	require.Len(suite.T(), suite.server.Transactions(acct.ID), 2)

	// The fetched transactions add up
	fetched, err := suite.client.Transactions(ctx, acct.ID)
	require.NoError(suite.T(), err)
	sum := insights.Summarize(fetched)
	assert.Equal(suite.T(), 2, sum.Count)
	assert.True(suite.T(), decimal.RequireFromString("14.50").Equal(sum.Expense), "expenses: %s", sum.Expense)

	// Sign out
	suite.manager.Logout(ctx, false)
	assert.False(suite.T(), suite.manager.IsAuthenticated())
	assert.Zero(suite.T(), suite.server.ActiveSessions())
}

func (suite *E2ETestSuite) TestSessionSurvivesRestart() {
	ctx := context.Background()

	suite.login()
	suite.manager.Close()

	// A fresh client and manager over the same keystore is an app relaunch
	client := gateway.New(suite.httpSrv.URL)
	mgr := session.NewManager(client, suite.store,
		session.WithInterval(time.Hour),
		session.WithNotify(suite.notify.record),
	)
	defer mgr.Close()

	mgr.CheckAuthStatus(ctx)

	require.True(suite.T(), mgr.IsAuthenticated(), "persisted token must restore the session immediately")
	user := mgr.User()
	require.NotNil(suite.T(), user, "the stored snapshot is shown before the server answers")
	assert.Equal(suite.T(), "Ada Lovelace", user.Name)

	// The restored token is still honored by the server
	profile, err := client.Profile(ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "ada@example.com", profile.Email)
}

func (suite *E2ETestSuite) TestRevokedSessionForcesLogout() {
	ctx := context.Background()

	suite.login()

	// Hand the session to a manager that validates frequently
	suite.manager.Close()
	mgr := session.NewManager(suite.client, suite.store,
		session.WithInterval(15*time.Millisecond),
		session.WithNotify(suite.notify.record),
	)
	defer mgr.Close()
	mgr.CheckAuthStatus(ctx)
	require.True(suite.T(), mgr.IsAuthenticated())

	// The server side pulls the rug
	suite.server.RevokeAllSessions()

	require.Eventually(suite.T(), mgr.SessionExpired, 2*time.Second, 5*time.Millisecond,
		"background validation must notice the revoked token")
	assert.False(suite.T(), mgr.IsAuthenticated())
	assert.Contains(suite.T(), suite.notify.all(), "Your session has expired. Please log in again.")

	// The next launch starts signed out
	relaunched := session.NewManager(gateway.New(suite.httpSrv.URL), suite.store,
		session.WithInterval(time.Hour),
		session.WithNotify(suite.notify.record),
	)
	defer relaunched.Close()
	relaunched.CheckAuthStatus(ctx)
	assert.False(suite.T(), relaunched.IsAuthenticated(), "a forced logout clears the persisted session")
}

func (suite *E2ETestSuite) TestLogoutStopsBackgroundValidation() {
	ctx := context.Background()

	suite.login()
	suite.manager.Close()
	mgr := session.NewManager(suite.client, suite.store,
		session.WithInterval(15*time.Millisecond),
		session.WithNotify(suite.notify.record),
	)
	defer mgr.Close()
	mgr.CheckAuthStatus(ctx)
	require.Eventually(suite.T(), func() bool { return suite.server.Calls("validate") > 0 },
		2*time.Second, 5*time.Millisecond, "the validation loop must be running")

	mgr.Logout(ctx, false)
	assert.Zero(suite.T(), suite.server.ActiveSessions())

	// Let any in-flight validation land before watching the counter
	time.Sleep(50 * time.Millisecond)
	before := suite.server.Calls("validate")
	assert.Never(suite.T(), func() bool { return suite.server.Calls("validate") > before },
		150*time.Millisecond, 10*time.Millisecond, "validation must stop once signed out")
}

// TestE2ESuite runs the e2e test suite
func TestE2ESuite(t *testing.T) {
	suite.Run(t, new(E2ETestSuite))
}
