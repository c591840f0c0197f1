package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lynxfm/lynx/internal/shared"
	"golang.org/x/oauth2"
)

// ExpiryMargin is how close to expiry a token is already treated as expired,
// covering network latency between the check and the request landing.
const ExpiryMargin = 30 * time.Second

// Refresher exchanges a refresh token for a new token. Implemented by
// services.IdentityService; rejection of the refresh token itself must be
// reported as [shared.ErrInvalidRefreshToken].
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Guard resolves a usable access token before each authenticated call.
//
// The guard never pre-validates tokens against the media server; validity is
// only proven by the server's own response. A 401 after the guard returned a
// token is a failure of that call, not of the guard.
type Guard struct {
	store     *Store
	refresher Refresher
	margin    time.Duration
	now       func() time.Time
	logger    *log.Logger

	// mu serializes token resolution. Refresh tokens are single-use on
	// rotating providers, so concurrent callers must share one refresh
	// result instead of racing the same refresh token.
	mu sync.Mutex
}

// GuardOpts contains optional settings for a Guard.
type GuardOpts struct {
	Margin time.Duration    // defaults to ExpiryMargin
	Now    func() time.Time // defaults to time.Now, injectable for tests
	Logger *log.Logger
}

// NewGuard creates a Guard over the given store and refresher.
func NewGuard(store *Store, refresher Refresher, opts GuardOpts) *Guard {
	if opts.Margin <= 0 {
		opts.Margin = ExpiryMargin
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Guard{
		store:     store,
		refresher: refresher,
		margin:    opts.Margin,
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

// Authorized returns an access token usable for the next authenticated call,
// refreshing a stale one first. Returns [shared.ErrLoginRequired] when no
// token is held or the refresh token was rejected (the session is cleared in
// that case, never retried). Safe for concurrent use: at most one refresh is
// in flight, and callers blocked behind it pick up the refreshed token.
func (g *Guard) Authorized(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess, err := g.store.Load()
	if err != nil {
		return "", err
	}

	if !sess.Authenticated() {
		return "", shared.ErrLoginRequired
	}

	if !g.stale(sess) {
		return sess.AccessToken, nil
	}

	if sess.RefreshToken == "" {
		g.logger.Debug("token expired with no refresh token")
		return "", shared.ErrLoginRequired
	}

	g.logger.Debug("access token stale, refreshing", "expires_at", sess.ExpiresAt)

	tok, err := g.refresher.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidRefreshToken) {
			if clearErr := g.store.Clear(); clearErr != nil {
				g.logger.Warn("failed to clear rejected session", "err", clearErr)
			}
			return "", fmt.Errorf("%w: %w", shared.ErrLoginRequired, err)
		}
		return "", err
	}

	sess.ApplyToken(tok)
	if err := g.store.Save(sess); err != nil {
		return "", err
	}

	return sess.AccessToken, nil
}

// stale reports whether the token expires within the safety margin. An
// unknown expiry is optimistically treated as valid.
func (g *Guard) stale(sess Session) bool {
	expiry := sess.Expiry()
	if expiry.IsZero() {
		return false
	}
	return !g.now().Add(g.margin).Before(expiry)
}
