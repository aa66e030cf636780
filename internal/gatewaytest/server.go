// Package gatewaytest is an in-process fake of the Acca API gateway. It
// implements the same wire contracts the production gateway exposes, backed
// by seedable in-memory state, so client packages can be exercised
// end-to-end without a real server.
package gatewaytest

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/touhid12310/acca-mobile-sub001/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Context key type to avoid collisions.
type contextKey string

const userContextKey contextKey = "user"

type userRecord struct {
	user          models.User
	password      string
	twoFactorCode string // empty means two-factor is disabled
	pendingSecret string
}

// Server is the fake gateway. It implements http.Handler; wrap it in an
// httptest.Server and point a gateway.Client at it.
type Server struct {
	router chi.Router

	mu       sync.Mutex
	users    map[string]*userRecord // keyed by lowercased email
	tokens   map[string]int64       // bearer token -> user id
	accounts map[int64]*models.Account
	txs      map[int64][]models.Transaction // account id -> transactions
	cats     []models.Category
	chat     []models.ChatMessage
	calls    map[string]int
	nextID   int64
}

// New creates an empty fake gateway.
func New() *Server {
	s := &Server{
		users:    make(map[string]*userRecord),
		tokens:   make(map[string]int64),
		accounts: make(map[int64]*models.Account),
		txs:      make(map[int64][]models.Transaction),
		calls:    make(map[string]int),
	}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/register", s.handleRegister)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.auth)
			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/validate", s.handleValidate)
			r.Get("/auth/profile", s.handleProfile)
			r.Put("/auth/profile", s.handleUpdateProfile)
			r.Post("/auth/password", s.handleChangePassword)
			r.Post("/auth/two-factor/setup", s.handleTwoFactorSetup)
			r.Post("/auth/two-factor/confirm", s.handleTwoFactorConfirm)
			r.Post("/auth/two-factor/disable", s.handleTwoFactorDisable)

			r.Get("/accounts", s.handleAccounts)
			r.Get("/accounts/{accountID}/transactions", s.handleTransactions)
			r.Get("/categories", s.handleCategories)
			r.Post("/statements/process", s.handleProcessStatement)
			r.Post("/transactions", s.handleCreateTransaction)
			r.Post("/transactions/bulk", s.handleCreateTransactions)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/reports/spending", s.handleSpendingReport)
			r.Get("/assistant/messages", s.handleAssistantHistory)
			r.Post("/assistant/messages", s.handleAssistantMessage)
		})
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// auth resolves the bearer token to a user, rejecting unknown tokens the
// way the production gateway does.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)

		s.mu.Lock()
		id, ok := s.tokens[token]
		var user models.User
		if ok {
			user = s.userByIDLocked(id)
		}
		s.mu.Unlock()

		if token == "" || !ok {
			fail(w, http.StatusUnauthorized, "Unauthenticated", nil)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func userFromContext(r *http.Request) models.User {
	u, _ := r.Context().Value(userContextKey).(models.User)
	return u
}

func (s *Server) userByIDLocked(id int64) models.User {
	for _, rec := range s.users {
		if rec.user.ID == id {
			return rec.user
		}
	}
	return models.User{}
}

func (s *Server) recordByIDLocked(id int64) *userRecord {
	for _, rec := range s.users {
		if rec.user.ID == id {
			return rec
		}
	}
	return nil
}

func (s *Server) count(name string) {
	s.mu.Lock()
	s.calls[name]++
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func fail(w http.ResponseWriter, status int, message string, errs map[string][]string) {
	body := map[string]any{"success": false, "message": message}
	if errs != nil {
		body["errors"] = errs
	}
	writeJSON(w, status, body)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.count("login")

	var req struct {
		Email         string `json:"email"`
		Password      string `json:"password"`
		TwoFactorCode string `json:"two_factor_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid request", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, found := s.users[strings.ToLower(req.Email)]
	if !found || rec.password != req.Password {
		fail(w, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}
	if rec.twoFactorCode != "" {
		if req.TwoFactorCode == "" {
			ok(w, map[string]any{"requires_two_factor": true})
			return
		}
		if req.TwoFactorCode != rec.twoFactorCode {
			fail(w, http.StatusUnauthorized, "Invalid two-factor code", nil)
			return
		}
	}

	token := uuid.NewString()
	s.tokens[token] = rec.user.ID
	ok(w, map[string]any{"access_token": token, "user": rec.user})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.count("register")

	var req struct {
		Name                 string `json:"name"`
		Email                string `json:"email"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid request", nil)
		return
	}

	errs := make(map[string][]string)
	if strings.TrimSpace(req.Name) == "" {
		errs["name"] = []string{"The name field is required."}
	}
	if strings.TrimSpace(req.Email) == "" {
		errs["email"] = []string{"The email field is required."}
	}
	if req.Password == "" {
		errs["password"] = []string{"The password field is required."}
	}
	if req.Password != req.PasswordConfirmation {
		errs["password_confirmation"] = []string{"The password confirmation does not match."}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.users[strings.ToLower(req.Email)]; taken && errs["email"] == nil {
		errs["email"] = []string{"The email has already been taken."}
	}
	if len(errs) > 0 {
		fail(w, http.StatusUnprocessableEntity, "The given data was invalid.", errs)
		return
	}

	s.nextID++
	user := models.User{ID: s.nextID, Name: req.Name, Email: req.Email}
	s.users[strings.ToLower(req.Email)] = &userRecord{user: user, password: req.Password}

	token := uuid.NewString()
	s.tokens[token] = user.ID
	ok(w, map[string]any{"access_token": token, "user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.count("logout")

	s.mu.Lock()
	delete(s.tokens, bearerToken(r))
	s.mu.Unlock()

	ok(w, nil)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	s.count("validate")
	ok(w, map[string]any{"valid": true, "user": userFromContext(r)})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.count("profile")

	// The production gateway wraps this payload twice; keep the quirk so
	// clients exercise their envelope normalization.
	ok(w, map[string]any{
		"success": true,
		"data":    map[string]any{"user": userFromContext(r)},
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	s.count("update_profile")

	var req struct {
		Name           string `json:"name"`
		Email          string `json:"email"`
		ProfilePicture string `json:"profile_picture"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid request", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordByIDLocked(userFromContext(r).ID)
	if rec == nil {
		fail(w, http.StatusNotFound, "user not found", nil)
		return
	}
	if req.Name != "" {
		rec.user.Name = req.Name
	}
	if req.Email != "" && !strings.EqualFold(req.Email, rec.user.Email) {
		delete(s.users, strings.ToLower(rec.user.Email))
		rec.user.Email = req.Email
		s.users[strings.ToLower(req.Email)] = rec
	}
	if req.ProfilePicture != "" {
		rec.user.ProfilePicture = req.ProfilePicture
	}
	ok(w, map[string]any{"user": rec.user})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	s.count("change_password")

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid request", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordByIDLocked(userFromContext(r).ID)
	if rec == nil || rec.password != req.CurrentPassword {
		fail(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"current_password": {"The current password is incorrect."}})
		return
	}
	if req.NewPassword == "" {
		fail(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"new_password": {"The new password field is required."}})
		return
	}
	rec.password = req.NewPassword
	ok(w, nil)
}

func (s *Server) handleTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	s.count("two_factor_setup")

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordByIDLocked(userFromContext(r).ID)
	if rec == nil {
		fail(w, http.StatusNotFound, "user not found", nil)
		return
	}

	secret := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:16]
	rec.pendingSecret = secret
	ok(w, map[string]any{
		"secret":      secret,
		"otpauth_url": "otpauth://totp/Acca:" + rec.user.Email + "?secret=" + secret + "&issuer=Acca",
	})
}

func (s *Server) handleTwoFactorConfirm(w http.ResponseWriter, r *http.Request) {
	s.count("two_factor_confirm")

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid request", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordByIDLocked(userFromContext(r).ID)
	if rec == nil || rec.pendingSecret == "" {
		fail(w, http.StatusUnprocessableEntity, "Two-factor setup has not been started.", nil)
		return
	}
	if len(req.Code) != 6 {
		fail(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"code": {"The code must be 6 digits."}})
		return
	}

	// The fake accepts the submitted code and treats it as the user's
	// one-time code from then on.
	rec.twoFactorCode = req.Code
	rec.pendingSecret = ""
	ok(w, nil)
}

func (s *Server) handleTwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	s.count("two_factor_disable")

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid request", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordByIDLocked(userFromContext(r).ID)
	if rec == nil || rec.twoFactorCode == "" || rec.twoFactorCode != req.Code {
		fail(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"code": {"The code is incorrect."}})
		return
	}
	rec.twoFactorCode = ""
	ok(w, nil)
}
