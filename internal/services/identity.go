package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lynxfm/lynx/internal/shared"
	"golang.org/x/oauth2"
)

// Supabase-style auth endpoints, relative to the provider base URL.
const (
	signupPath  = "/auth/v1/signup"
	verifyPath  = "/auth/v1/verify"
	tokenPath   = "/auth/v1/token"
	logoutPath  = "/auth/v1/logout"
	httpTimeout = 30 * time.Second
)

// authResponse is the provider's token grant payload.
type authResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         *struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// errorResponse is the provider's error payload.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
}

func (e errorResponse) message() string {
	switch {
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.Msg != "":
		return e.Msg
	default:
		return e.Error
	}
}

// IdentityService performs signup, login, refresh, and logout against the
// identity provider. Every request carries the public anonymous key in the
// apikey header.
type IdentityService struct {
	providerURL string
	anonKey     string
	httpClient  *http.Client
	logger      *log.Logger
}

// NewIdentityService creates an identity client for the given provider base
// URL and anonymous key.
func NewIdentityService(providerURL, anonKey string, client *http.Client, logger *log.Logger) *IdentityService {
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &IdentityService{
		providerURL: providerURL,
		anonKey:     anonKey,
		httpClient:  client,
		logger:      logger,
	}
}

// SignUp initiates account creation. The provider delivers a verification
// code out-of-band; no tokens are issued until [IdentityService.ConfirmSignUp]
// exchanges that code.
func (s *IdentityService) SignUp(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}

	resp, err := s.post(ctx, signupPath, body, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.providerError("signup", resp)
	}

	s.logger.Info("signup accepted, verification pending", "email", email)
	return nil
}

// ConfirmSignUp exchanges an out-of-band verification code for the initial
// token set.
func (s *IdentityService) ConfirmSignUp(ctx context.Context, email, code string) (*oauth2.Token, error) {
	body := map[string]string{"email": email, "token": code, "type": "signup"}

	resp, err := s.post(ctx, verifyPath, body, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, s.providerError("verification", resp)
	}

	return s.decodeToken(resp)
}

// Login exchanges credentials for access and refresh tokens via the password
// grant.
func (s *IdentityService) Login(ctx context.Context, email, password string) (*oauth2.Token, error) {
	body := map[string]string{"email": email, "password": password}

	resp, err := s.post(ctx, tokenPath+"?grant_type=password", body, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, s.providerError("login", resp)
	}

	return s.decodeToken(resp)
}

// Refresh exchanges a refresh token for a new access token. A rejection by
// the provider is reported as [shared.ErrInvalidRefreshToken], which callers
// must treat as "re-login", never as something to retry.
func (s *IdentityService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token held", shared.ErrInvalidRefreshToken)
	}

	body := map[string]string{"refresh_token": refreshToken}

	resp, err := s.post(ctx, tokenPath+"?grant_type=refresh_token", body, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Only an actual rejection of the token invalidates it. A throttle or
	// other provider trouble must not cost the user their session.
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		var errResp errorResponse
		json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&errResp)
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrInvalidRefreshToken, resp.StatusCode, errResp.message())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, s.providerError("token refresh", resp)
	}

	return s.decodeToken(resp)
}

// Logout revokes the access token at the provider. Best-effort: callers
// clear local state regardless of the outcome.
func (s *IdentityService) Logout(ctx context.Context, accessToken string) error {
	resp, err := s.post(ctx, logoutPath, nil, "Bearer "+accessToken)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.providerError("logout", resp)
	}

	return nil
}

// post issues a single JSON POST to the provider. Transport failures wrap
// [shared.ErrTransport] so callers can tell them apart from rejections.
func (s *IdentityService) post(ctx context.Context, path string, body any, authorization string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.providerURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTransport, err)
	}

	return resp, nil
}

// decodeToken parses a token grant response into an [oauth2.Token]. A
// missing expires_in leaves the expiry zero, meaning unknown.
func (s *IdentityService) decodeToken(resp *http.Response) (*oauth2.Token, error) {
	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return nil, fmt.Errorf("failed to parse auth response: %w", err)
	}

	if auth.AccessToken == "" {
		return nil, fmt.Errorf("auth response carried no access token")
	}

	tok := &oauth2.Token{
		AccessToken:  auth.AccessToken,
		RefreshToken: auth.RefreshToken,
		TokenType:    "Bearer",
	}
	if auth.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second)
	}

	return tok, nil
}

// providerError maps a non-2xx provider response to the error taxonomy,
// keeping the provider's own description.
func (s *IdentityService) providerError(op string, resp *http.Response) error {
	var errResp errorResponse
	json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&errResp)

	msg := errResp.message()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s failed with status %d: %s", shared.ErrAuthRejected, op, resp.StatusCode, msg)
	}

	return fmt.Errorf("%s failed with status %d: %s", op, resp.StatusCode, msg)
}
