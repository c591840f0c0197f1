package main

import (
	"context"
	"fmt"

	"github.com/lynxfm/lynx/internal/ui"
	"github.com/urfave/cli/v3"
)

// Config updates provider/server settings in the session without touching
// tokens. Without flags it reports the current configuration and auth state.
func (r *Runner) Config(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.store.Load()
	if err != nil {
		return err
	}

	updated := false
	if url := cmd.String("provider-url"); url != "" {
		sess.ProviderURL = url
		updated = true
	}
	if key := cmd.String("provider-key"); key != "" {
		sess.ProviderKey = key
		updated = true
	}
	if url := cmd.String("server-url"); url != "" {
		sess.ServerURL = url
		updated = true
	}

	if updated {
		if err := r.store.Save(sess); err != nil {
			return err
		}
		r.logger.Info("configuration updated", "path", r.store.Path())
		return r.writePlain("Configuration updated.\n")
	}

	authState := "not authenticated"
	if sess.Authenticated() {
		authState = "authenticated"
		if expiry := sess.Expiry(); !expiry.IsZero() {
			authState = fmt.Sprintf("authenticated (token expires %s)", expiry.Format("2006-01-02 15:04:05"))
		}
	}

	if err := r.writePlain("Provider URL:  %s\n", orUnset(sess.ProviderURL)); err != nil {
		return err
	}
	if err := r.writePlain("Server URL:    %s\n", orUnset(sess.ServerURL)); err != nil {
		return err
	}
	return r.writePlain("Auth state:    %s\n", authState)
}

func orUnset(v string) string {
	if v == "" {
		return "(unset)"
	}
	return v
}

// Signup runs the two-step signup flow: account creation, then exchange of
// the out-of-band verification code for the initial token set.
func (r *Runner) Signup(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.store.Load()
	if err != nil {
		return err
	}

	identity, err := r.identity(sess)
	if err != nil {
		return err
	}

	email, password, err := ui.SignupPrompt()
	if err != nil {
		return err
	}

	if err := identity.SignUp(ctx, email, password); err != nil {
		return err
	}

	if err := r.writePlain("Signup accepted. Check your email for a verification code.\n"); err != nil {
		return err
	}

	code, err := ui.CodePrompt()
	if err != nil {
		return err
	}

	tok, err := identity.ConfirmSignUp(ctx, email, code)
	if err != nil {
		return err
	}

	sess.ApplyToken(tok)
	if err := r.store.Save(sess); err != nil {
		return err
	}

	return r.writePlain("Email verified. You are now logged in.\n")
}

// Login exchanges prompted credentials for tokens and persists them.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.store.Load()
	if err != nil {
		return err
	}

	identity, err := r.identity(sess)
	if err != nil {
		return err
	}

	email, password, err := ui.LoginPrompt()
	if err != nil {
		return err
	}

	tok, err := identity.Login(ctx, email, password)
	if err != nil {
		return err
	}

	sess.ApplyToken(tok)
	if err := r.store.Save(sess); err != nil {
		return err
	}

	return r.writePlain("Login successful.\n")
}

// Logout revokes the token remotely (best-effort) and always clears local
// state, since the goal is removing the local capability to act as the user.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.store.Load()
	if err != nil {
		return err
	}

	if !sess.Authenticated() {
		return r.writePlain("Not logged in.\n")
	}

	if identity, err := r.identity(sess); err == nil {
		if err := identity.Logout(ctx, sess.AccessToken); err != nil {
			r.logger.Warn("remote logout failed, clearing local session anyway", "err", err)
		}
	}

	if err := r.store.Clear(); err != nil {
		return err
	}

	return r.writePlain("Logged out.\n")
}
