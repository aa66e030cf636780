package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/touhid12310/acca-mobile-sub001/internal/models"
)

// LoginResult is a successful or two-factor-pending authentication. When
// RequiresTwoFactor is set the server accepted the credentials but wants a
// one-time code before issuing a token.
type LoginResult struct {
	Token             string
	User              *models.User
	RequiresTwoFactor bool
}

// ValidationResult reports whether the server still honors the session.
type ValidationResult struct {
	Valid bool
	User  *models.User
}

// authData is the payload shape shared by login and register.
type authData struct {
	AccessToken       string       `json:"access_token"`
	User              *models.User `json:"user"`
	RequiresTwoFactor bool         `json:"requires_two_factor"`
}

// Login exchanges credentials for a bearer token. Rejected credentials come
// back as a *StatusError carrying the server's message and field errors.
func (c *Client) Login(ctx context.Context, email, password, twoFactorCode string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	if twoFactorCode != "" {
		body["two_factor_code"] = twoFactorCode
	}

	data, err := c.do(ctx, http.MethodPost, "/api/auth/login", body)
	if err != nil {
		return nil, err
	}

	var ad authData
	if err := json.Unmarshal(data, &ad); err != nil {
		return nil, fmt.Errorf("gateway: decode login response: %w", err)
	}
	if ad.RequiresTwoFactor {
		return &LoginResult{RequiresTwoFactor: true}, nil
	}
	if ad.AccessToken == "" {
		return nil, errors.New("gateway: login response missing access token")
	}
	return &LoginResult{Token: ad.AccessToken, User: ad.User}, nil
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, name, email, password, confirmPassword string) (*LoginResult, error) {
	body := map[string]string{
		"name":                  name,
		"email":                 email,
		"password":              password,
		"password_confirmation": confirmPassword,
	}

	data, err := c.do(ctx, http.MethodPost, "/api/auth/register", body)
	if err != nil {
		return nil, err
	}

	var ad authData
	if err := json.Unmarshal(data, &ad); err != nil {
		return nil, fmt.Errorf("gateway: decode register response: %w", err)
	}
	if ad.AccessToken == "" {
		return nil, errors.New("gateway: register response missing access token")
	}
	return &LoginResult{Token: ad.AccessToken, User: ad.User}, nil
}

// Logout revokes the current token server-side.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil)
	return err
}

// ValidateSession asks the server whether the current token is still good.
// An invalid session is signaled by a 401/403 (surfaced as *StatusError) or
// by an explicit valid=false in the body.
func (c *Client) ValidateSession(ctx context.Context) (*ValidationResult, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/auth/validate", nil)
	if err != nil {
		return nil, err
	}

	var vd struct {
		Valid bool         `json:"valid"`
		User  *models.User `json:"user"`
	}
	if err := json.Unmarshal(data, &vd); err != nil {
		return nil, fmt.Errorf("gateway: decode validation response: %w", err)
	}
	return &ValidationResult{Valid: vd.Valid, User: vd.User}, nil
}

// Profile fetches the authenticated user's profile.
func (c *Client) Profile(ctx context.Context) (*models.User, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/auth/profile", nil)
	if err != nil {
		return nil, err
	}
	return decodeUser(data)
}

// ProfileUpdate carries the editable profile fields. Empty fields are left
// unchanged by the server.
type ProfileUpdate struct {
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// UpdateProfile applies a partial profile edit and returns the new snapshot.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*models.User, error) {
	data, err := c.do(ctx, http.MethodPut, "/api/auth/profile", update)
	if err != nil {
		return nil, err
	}
	return decodeUser(data)
}

// ChangePassword swaps the account password.
func (c *Client) ChangePassword(ctx context.Context, current, updated string) error {
	body := map[string]string{"current_password": current, "new_password": updated}
	_, err := c.do(ctx, http.MethodPost, "/api/auth/password", body)
	return err
}

// SetupTwoFactor asks the server to generate a two-factor secret for
// enrollment. The secret stays pending until confirmed.
func (c *Client) SetupTwoFactor(ctx context.Context) (*models.TwoFactorSetup, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/auth/two-factor/setup", nil)
	if err != nil {
		return nil, err
	}

	var setup models.TwoFactorSetup
	if err := json.Unmarshal(data, &setup); err != nil {
		return nil, fmt.Errorf("gateway: decode two-factor setup: %w", err)
	}
	return &setup, nil
}

// ConfirmTwoFactor activates the pending two-factor secret with a code from
// the user's authenticator app.
func (c *Client) ConfirmTwoFactor(ctx context.Context, code string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/auth/two-factor/confirm", map[string]string{"code": code})
	return err
}

// DisableTwoFactor turns two-factor authentication off.
func (c *Client) DisableTwoFactor(ctx context.Context, code string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/auth/two-factor/disable", map[string]string{"code": code})
	return err
}

func decodeUser(data json.RawMessage) (*models.User, error) {
	var ud struct {
		User *models.User `json:"user"`
	}
	if err := json.Unmarshal(data, &ud); err != nil {
		return nil, fmt.Errorf("gateway: decode user: %w", err)
	}
	if ud.User == nil {
		return nil, errors.New("gateway: response missing user")
	}
	return ud.User, nil
}
