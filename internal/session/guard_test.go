package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lynxfm/lynx/internal/shared"
	"golang.org/x/oauth2"
)

type fakeRefresher struct {
	tok   *oauth2.Token
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tok, nil
}

// rotatingRefresher accepts each refresh token exactly once, like a provider
// that rotates single-use refresh tokens.
type rotatingRefresher struct {
	mu   sync.Mutex
	next *oauth2.Token
	used map[string]bool
	n    int
}

func (r *rotatingRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.used == nil {
		r.used = map[string]bool{}
	}
	if r.used[refreshToken] {
		return nil, fmt.Errorf("%w: refresh token already used", shared.ErrInvalidRefreshToken)
	}
	r.used[refreshToken] = true
	r.n++
	return r.next, nil
}

func (r *rotatingRefresher) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func TestGuard(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1735689600, 0)
	clock := func() time.Time { return now }

	t.Run("No Token Requires Login", func(t *testing.T) {
		st := tempStore(t)
		guard := NewGuard(st, &fakeRefresher{}, GuardOpts{Now: clock})

		_, err := guard.Authorized(ctx)
		if !errors.Is(err, shared.ErrLoginRequired) {
			t.Errorf("expected ErrLoginRequired, got %v", err)
		}
	})

	t.Run("Valid Token Returned As Is", func(t *testing.T) {
		st := tempStore(t)
		refresher := &fakeRefresher{}
		if err := st.Save(Session{AccessToken: "abc", ExpiresAt: now.Add(time.Hour).Unix()}); err != nil {
			t.Fatal(err)
		}

		guard := NewGuard(st, refresher, GuardOpts{Now: clock})
		tok, err := guard.Authorized(ctx)
		if err != nil {
			t.Fatalf("expected token, got %v", err)
		}
		if tok != "abc" {
			t.Errorf("expected abc, got %q", tok)
		}
		if refresher.calls != 0 {
			t.Errorf("expected no refresh, got %d calls", refresher.calls)
		}
	})

	t.Run("Unknown Expiry Is Optimistic", func(t *testing.T) {
		st := tempStore(t)
		refresher := &fakeRefresher{}
		if err := st.Save(Session{AccessToken: "abc", RefreshToken: "r1"}); err != nil {
			t.Fatal(err)
		}

		guard := NewGuard(st, refresher, GuardOpts{Now: clock})
		tok, err := guard.Authorized(ctx)
		if err != nil || tok != "abc" {
			t.Fatalf("expected optimistic abc, got %q, %v", tok, err)
		}
		if refresher.calls != 0 {
			t.Error("expected no refresh for unknown expiry")
		}
	})

	t.Run("Expiring Within Margin Triggers Refresh", func(t *testing.T) {
		st := tempStore(t)
		refresher := &fakeRefresher{tok: &oauth2.Token{
			AccessToken:  "fresh",
			RefreshToken: "r2",
			Expiry:       now.Add(time.Hour),
		}}

		// 5s to expiry with a >=5s margin counts as already expired.
		if err := st.Save(Session{AccessToken: "stale", RefreshToken: "r1", ExpiresAt: now.Add(5 * time.Second).Unix()}); err != nil {
			t.Fatal(err)
		}

		guard := NewGuard(st, refresher, GuardOpts{Margin: 5 * time.Second, Now: clock})
		tok, err := guard.Authorized(ctx)
		if err != nil {
			t.Fatalf("expected refreshed token, got %v", err)
		}
		if tok != "fresh" {
			t.Errorf("expected fresh token, got %q", tok)
		}
		if refresher.calls != 1 {
			t.Errorf("expected one refresh, got %d", refresher.calls)
		}

		persisted, err := st.Load()
		if err != nil {
			t.Fatal(err)
		}
		if persisted.AccessToken != "fresh" || persisted.RefreshToken != "r2" {
			t.Errorf("expected refreshed session persisted, got %+v", persisted)
		}
	})

	t.Run("Expired Without Refresh Token Requires Login", func(t *testing.T) {
		st := tempStore(t)
		if err := st.Save(Session{AccessToken: "stale", ExpiresAt: now.Add(-time.Minute).Unix()}); err != nil {
			t.Fatal(err)
		}

		guard := NewGuard(st, &fakeRefresher{}, GuardOpts{Now: clock})
		_, err := guard.Authorized(ctx)
		if !errors.Is(err, shared.ErrLoginRequired) {
			t.Errorf("expected ErrLoginRequired, got %v", err)
		}
	})

	t.Run("Rejected Refresh Token Clears Session", func(t *testing.T) {
		st := tempStore(t)
		refresher := &fakeRefresher{err: fmt.Errorf("%w: status 401", shared.ErrInvalidRefreshToken)}
		if err := st.Save(Session{
			ProviderURL:  "https://id.example",
			AccessToken:  "stale",
			RefreshToken: "bad",
			ExpiresAt:    now.Add(-time.Minute).Unix(),
		}); err != nil {
			t.Fatal(err)
		}

		guard := NewGuard(st, refresher, GuardOpts{Now: clock})
		_, err := guard.Authorized(ctx)
		if !errors.Is(err, shared.ErrLoginRequired) {
			t.Errorf("expected ErrLoginRequired, got %v", err)
		}

		persisted, loadErr := st.Load()
		if loadErr != nil {
			t.Fatal(loadErr)
		}
		if persisted.Authenticated() {
			t.Error("expected session cleared after rejected refresh")
		}
		if persisted.ProviderURL != "https://id.example" {
			t.Error("expected provider config to survive the clear")
		}
	})

	t.Run("Concurrent Callers Share One Refresh", func(t *testing.T) {
		st := tempStore(t)
		refresher := &rotatingRefresher{next: &oauth2.Token{
			AccessToken:  "fresh",
			RefreshToken: "r2",
			Expiry:       time.Now().Add(time.Hour),
		}}

		if err := st.Save(Session{AccessToken: "stale", RefreshToken: "r1", ExpiresAt: now.Add(-time.Minute).Unix()}); err != nil {
			t.Fatal(err)
		}

		// A rotating provider invalidates r1 on first use; racing workers
		// replaying it would log the user out mid-batch.
		guard := NewGuard(st, refresher, GuardOpts{Now: clock})

		var wg sync.WaitGroup
		errs := make([]error, 4)
		toks := make([]string, 4)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				toks[i], errs[i] = guard.Authorized(ctx)
			}(i)
		}
		wg.Wait()

		for i := range errs {
			if errs[i] != nil {
				t.Errorf("caller %d failed: %v", i, errs[i])
			}
			if toks[i] != "fresh" {
				t.Errorf("caller %d got %q, want fresh", i, toks[i])
			}
		}
		if got := refresher.calls(); got != 1 {
			t.Errorf("expected a single refresh for the batch, got %d", got)
		}

		persisted, err := st.Load()
		if err != nil {
			t.Fatal(err)
		}
		if !persisted.Authenticated() || persisted.RefreshToken != "r2" {
			t.Errorf("expected rotated session intact, got %+v", persisted)
		}
	})

	t.Run("Throttled Refresh Keeps Session", func(t *testing.T) {
		st := tempStore(t)
		refresher := &fakeRefresher{err: fmt.Errorf("token refresh failed with status 429: over request rate limit")}
		if err := st.Save(Session{AccessToken: "stale", RefreshToken: "r1", ExpiresAt: now.Add(-time.Minute).Unix()}); err != nil {
			t.Fatal(err)
		}

		guard := NewGuard(st, refresher, GuardOpts{Now: clock})
		_, err := guard.Authorized(ctx)
		if err == nil {
			t.Fatal("expected throttled refresh to fail")
		}
		if errors.Is(err, shared.ErrLoginRequired) {
			t.Error("throttle must not demand re-login")
		}

		persisted, _ := st.Load()
		if !persisted.Authenticated() || persisted.RefreshToken != "r1" {
			t.Errorf("session must survive a throttled refresh, got %+v", persisted)
		}
	})

	t.Run("Transport Failure During Refresh Is Not Login Required", func(t *testing.T) {
		st := tempStore(t)
		refresher := &fakeRefresher{err: fmt.Errorf("%w: connection refused", shared.ErrTransport)}
		if err := st.Save(Session{AccessToken: "stale", RefreshToken: "r1", ExpiresAt: now.Add(-time.Minute).Unix()}); err != nil {
			t.Fatal(err)
		}

		guard := NewGuard(st, refresher, GuardOpts{Now: clock})
		_, err := guard.Authorized(ctx)
		if !errors.Is(err, shared.ErrTransport) {
			t.Errorf("expected transport error surfaced, got %v", err)
		}
		if errors.Is(err, shared.ErrLoginRequired) {
			t.Error("transport failure must not demand re-login")
		}

		persisted, _ := st.Load()
		if !persisted.Authenticated() {
			t.Error("session must not be cleared on transport failure")
		}
	})
}
