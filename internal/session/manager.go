// Package session maintains the authenticated state of the app: it owns the
// bearer token's lifecycle, keeps it in the secure store between launches,
// and watches for server-side invalidation while the app runs.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/touhid12310/acca-mobile-sub001/internal/gateway"
	"github.com/touhid12310/acca-mobile-sub001/internal/models"
)

// Storage keys in the secure store.
const (
	tokenKey = "session_token"
	userKey  = "session_user"
)

const defaultExpiredMessage = "Your session has expired. Please log in again."

// AuthAPI is the slice of the gateway client the session manager drives.
type AuthAPI interface {
	Login(ctx context.Context, email, password, twoFactorCode string) (*gateway.LoginResult, error)
	Register(ctx context.Context, name, email, password, confirmPassword string) (*gateway.LoginResult, error)
	Logout(ctx context.Context) error
	ValidateSession(ctx context.Context) (*gateway.ValidationResult, error)
	Profile(ctx context.Context) (*models.User, error)
	SetToken(token string)
	ClearToken()
}

// TokenStore persists small named values across app launches.
type TokenStore interface {
	Put(name string, value []byte) error
	Get(name string) ([]byte, error)
	Delete(name string) error
}

// AuthResult is the outcome of a login or registration attempt. Network
// failures never escape as errors; they come back as a failed result with a
// generic message.
type AuthResult struct {
	Success           bool
	RequiresTwoFactor bool
	Message           string
	FieldErrors       map[string][]string
}

// Manager owns the session state. All state transitions go through it: the
// UI reads IsAuthenticated and User, and reacts to the notify callback when
// the session is torn down behind its back.
type Manager struct {
	api      AuthAPI
	store    TokenStore
	interval time.Duration
	notify   func(message string)

	// validating coalesces the periodic timer with foreground-triggered
	// validation so overlapping triggers cost one network call.
	validating atomic.Bool

	mu             sync.Mutex
	token          string
	user           *models.User
	authenticated  bool
	sessionExpired bool
	stopLoop       chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithInterval sets how often the background validation runs.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// WithNotify sets the sink for user-visible session notifications.
func WithNotify(fn func(message string)) Option {
	return func(m *Manager) { m.notify = fn }
}

// NewManager creates a Manager over the gateway client and secure store.
func NewManager(api AuthAPI, store TokenStore, opts ...Option) *Manager {
	m := &Manager{
		api:      api,
		store:    store,
		interval: 30 * time.Second,
		notify:   func(message string) { log.Printf("session: %s", message) },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsAuthenticated reports whether a token is held in memory. It is true as
// soon as a persisted token is restored, before the server has confirmed it.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

// SessionExpired reports whether the last teardown was a forced logout. It
// is cleared by the next successful login.
func (m *Manager) SessionExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionExpired
}

// User returns a copy of the current profile snapshot, or nil.
func (m *Manager) User() *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// CheckAuthStatus restores the session at app start. A persisted token flips
// the state to authenticated immediately so the UI never blocks on the
// network; the server confirmation runs in the background and may only
// downgrade that optimism, never upgrade it.
func (m *Manager) CheckAuthStatus(ctx context.Context) {
	raw, err := m.store.Get(tokenKey)
	if err != nil || len(raw) == 0 {
		m.mu.Lock()
		m.authenticated = false
		m.mu.Unlock()
		return
	}
	token := string(raw)

	var user *models.User
	if snap, err := m.store.Get(userKey); err == nil {
		var u models.User
		if json.Unmarshal(snap, &u) == nil {
			user = &u
		}
	}

	m.mu.Lock()
	m.token = token
	m.user = user
	m.authenticated = true
	m.api.SetToken(token)
	m.startValidationLoopLocked()
	m.mu.Unlock()

	go m.verifyProfile(ctx, token)
}

// verifyProfile is the slow phase of CheckAuthStatus. A 401/403 clears the
// restored session; any other failure leaves the optimistic state alone,
// because failing to verify is not the same as failing to authenticate.
func (m *Manager) verifyProfile(ctx context.Context, token string) {
	user, err := m.api.Profile(ctx)
	switch {
	case err == nil:
		m.mu.Lock()
		if m.token == token {
			m.user = user
			m.persistUserLocked(user)
		}
		m.mu.Unlock()
	case gateway.IsAuthError(err):
		m.mu.Lock()
		if m.token == token {
			m.clearLocked()
		}
		m.mu.Unlock()
	default:
		log.Printf("session: profile verification failed: %v", err)
	}
}

// Login authenticates with the server. Three outcomes: success, a
// two-factor challenge (no token stored yet), or failure with the server's
// message and field errors.
func (m *Manager) Login(ctx context.Context, email, password, twoFactorCode string) AuthResult {
	res, err := m.api.Login(ctx, email, password, twoFactorCode)
	if err != nil {
		return failureResult(err)
	}
	if res.RequiresTwoFactor {
		return AuthResult{RequiresTwoFactor: true, Message: "Two-factor authentication required"}
	}

	m.establish(res.Token, res.User)
	return AuthResult{Success: true}
}

// Register creates an account and signs it in. The password mismatch check
// runs locally; no request is sent when it fails.
func (m *Manager) Register(ctx context.Context, name, email, password, confirmPassword string) AuthResult {
	if password != confirmPassword {
		return AuthResult{
			Message:     "Passwords do not match",
			FieldErrors: map[string][]string{"confirm_password": {"Passwords do not match"}},
		}
	}

	res, err := m.api.Register(ctx, name, email, password, confirmPassword)
	if err != nil {
		return failureResult(err)
	}

	m.establish(res.Token, res.User)
	return AuthResult{Success: true}
}

// Logout tears the session down. The server call is best effort: logging
// out locally must succeed even when the network does not.
func (m *Manager) Logout(ctx context.Context, showMessage bool) {
	m.mu.Lock()
	m.stopValidationLoopLocked()
	m.mu.Unlock()

	if err := m.api.Logout(ctx); err != nil {
		log.Printf("session: server logout failed: %v", err)
	}

	m.mu.Lock()
	m.clearLocked()
	m.mu.Unlock()

	if showMessage {
		m.notify("You have been logged out.")
	}
}

// ValidateSession checks the session against the server. It returns false
// only when no token is held or the server explicitly invalidated the
// session; transient failures report true, the fixed interval is the retry.
func (m *Manager) ValidateSession(ctx context.Context) bool {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()
	if token == "" {
		return false
	}

	if !m.validating.CompareAndSwap(false, true) {
		// A validation is already in flight; let it decide.
		return true
	}
	defer m.validating.Store(false)

	res, err := m.api.ValidateSession(ctx)
	if err == nil && res.Valid {
		if res.User != nil {
			m.mu.Lock()
			if m.token == token {
				m.user = res.User
				m.persistUserLocked(res.User)
			}
			m.mu.Unlock()
		}
		return true
	}
	if err == nil || gateway.IsAuthError(err) {
		m.mu.Lock()
		stale := m.token != token
		m.mu.Unlock()
		if !stale {
			m.ForceLogout("")
		}
		return false
	}
	return true
}

// HandleForeground runs an immediate validation when the app returns to the
// foreground, covering intervals the timer missed while suspended.
func (m *Manager) HandleForeground(ctx context.Context) bool {
	if !m.IsAuthenticated() {
		return false
	}
	return m.ValidateSession(ctx)
}

// ForceLogout tears the session down after the server invalidated it. It is
// the only path that sets the session-expired flag, and it always surfaces
// a notification.
func (m *Manager) ForceLogout(message string) {
	if message == "" {
		message = defaultExpiredMessage
	}

	m.mu.Lock()
	m.clearLocked()
	m.sessionExpired = true
	m.mu.Unlock()

	m.notify(message)
}

// Close stops the background validation without touching session state.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopValidationLoopLocked()
	m.mu.Unlock()
}

// establish records a freshly issued session: persist the token, install it
// on the gateway, and start watching for invalidation.
func (m *Manager) establish(token string, user *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = token
	m.user = user
	m.authenticated = true
	m.sessionExpired = false
	m.api.SetToken(token)

	if err := m.store.Put(tokenKey, []byte(token)); err != nil {
		log.Printf("ERROR: session: persist token: %v", err)
	}
	m.persistUserLocked(user)
	m.startValidationLoopLocked()
}

// clearLocked wipes the in-memory session, the gateway token, and the
// persisted copies. Callers hold m.mu.
func (m *Manager) clearLocked() {
	m.stopValidationLoopLocked()
	m.token = ""
	m.user = nil
	m.authenticated = false
	m.api.ClearToken()

	if err := m.store.Delete(tokenKey); err != nil {
		log.Printf("ERROR: session: clear persisted token: %v", err)
	}
	if err := m.store.Delete(userKey); err != nil {
		log.Printf("ERROR: session: clear persisted user: %v", err)
	}
}

func (m *Manager) persistUserLocked(user *models.User) {
	if user == nil {
		if err := m.store.Delete(userKey); err != nil {
			log.Printf("ERROR: session: clear persisted user: %v", err)
		}
		return
	}
	snap, err := json.Marshal(user)
	if err != nil {
		log.Printf("ERROR: session: encode user snapshot: %v", err)
		return
	}
	if err := m.store.Put(userKey, snap); err != nil {
		log.Printf("ERROR: session: persist user snapshot: %v", err)
	}
}

// startValidationLoopLocked starts the periodic validation if it is not
// already running. Callers hold m.mu.
func (m *Manager) startValidationLoopLocked() {
	if m.stopLoop != nil {
		return
	}
	stop := make(chan struct{})
	m.stopLoop = stop
	go m.validationLoop(stop)
}

func (m *Manager) stopValidationLoopLocked() {
	if m.stopLoop != nil {
		close(m.stopLoop)
		m.stopLoop = nil
	}
}

func (m *Manager) validationLoop(stop chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.ValidateSession(context.Background())
		case <-stop:
			return
		}
	}
}

// failureResult converts a gateway error into a user-presentable result.
func failureResult(err error) AuthResult {
	var se *gateway.StatusError
	if errors.As(err, &se) {
		msg := se.Message
		if msg == "" {
			msg = "Request failed. Please try again."
		}
		return AuthResult{Message: msg, FieldErrors: se.FieldErrors}
	}
	return AuthResult{Message: "Network error. Please try again."}
}
