// package session holds the locally persisted authentication state and the
// guard that decides whether a held token is still usable.
package session

import (
	"time"

	"github.com/lynxfm/lynx/internal/shared"
	"golang.org/x/oauth2"
)

// Session is the authentication and configuration state persisted between CLI
// invocations. ProviderKey is the provider's public anonymous key; the
// service-role key must never be written here since the file is unencrypted.
type Session struct {
	ProviderURL string `toml:"provider_url"`
	ProviderKey string `toml:"provider_key"`
	ServerURL   string `toml:"server_url"`

	AccessToken  string `toml:"access_token,omitempty"`
	RefreshToken string `toml:"refresh_token,omitempty"`
	// ExpiresAt is a unix timestamp in seconds. Zero means the provider did
	// not report an expiry: assume valid until a call proves otherwise.
	ExpiresAt int64 `toml:"expires_at,omitempty"`
}

// Authenticated reports whether the session holds an access token.
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// Expiry returns the token expiry as a [time.Time], or the zero time when
// the expiry is unknown.
func (s Session) Expiry() time.Time {
	if s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// Token returns the session's tokens as an [oauth2.Token].
func (s Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       s.Expiry(),
	}
}

// ApplyToken copies an [oauth2.Token] into the session.
func (s *Session) ApplyToken(tok *oauth2.Token) {
	s.AccessToken = tok.AccessToken
	s.RefreshToken = tok.RefreshToken
	if tok.Expiry.IsZero() {
		s.ExpiresAt = 0
	} else {
		s.ExpiresAt = tok.Expiry.Unix()
	}
}

// ClearTokens drops the token fields, keeping provider and server URLs so a
// logged-out user does not have to reconfigure the client.
func (s *Session) ClearTokens() {
	s.AccessToken = ""
	s.RefreshToken = ""
	s.ExpiresAt = 0
}

// ValidateProvider fails fast when the identity provider URL or anonymous
// key has not been configured.
func (s Session) ValidateProvider() error {
	if s.ProviderURL == "" || s.ProviderKey == "" {
		return shared.ErrConfigIncomplete
	}
	return nil
}

// ValidateServer fails fast when the media server URL has not been configured.
func (s Session) ValidateServer() error {
	if s.ServerURL == "" {
		return shared.ErrConfigIncomplete
	}
	return nil
}
