package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/lynxfm/lynx/internal/player"
	"github.com/lynxfm/lynx/internal/services"
	"github.com/lynxfm/lynx/internal/session"
	"github.com/lynxfm/lynx/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	store      *session.Store
	httpClient *http.Client
	sink       player.Sink
	logger     *log.Logger
	output     io.Writer
	cacheDir   string
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Store      *session.Store
	HTTPClient *http.Client
	Sink       player.Sink
	Logger     *log.Logger
	Output     io.Writer
	CacheDir   string
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Sink == nil {
		opts.Sink = player.NewMP3Sink(opts.Logger)
	}
	if opts.CacheDir == "" {
		if cacheDir, err := os.UserCacheDir(); err == nil {
			opts.CacheDir = filepath.Join(cacheDir, "lynx-fm")
		} else {
			opts.CacheDir = ".lynx-cache"
		}
	}

	return &Runner{
		store:      opts.Store,
		httpClient: opts.HTTPClient,
		sink:       opts.Sink,
		logger:     opts.Logger,
		output:     opts.Output,
		cacheDir:   opts.CacheDir,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		configCommand, signupCommand, loginCommand, logoutCommand,
		healthCommand, randomCommand, playCommand, prefetchCommand, cacheCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// identity builds the identity client from the session's provider settings,
// failing fast before any network call when they are missing.
func (r *Runner) identity(sess session.Session) (*services.IdentityService, error) {
	if err := sess.ValidateProvider(); err != nil {
		return nil, fmt.Errorf("%w: provider URL or key not set, run `lynx config`", err)
	}
	return services.NewIdentityService(sess.ProviderURL, sess.ProviderKey, r.httpClient, r.logger), nil
}

// media builds the media client, with the session guard as its token source.
func (r *Runner) media(sess session.Session) (*services.MediaService, error) {
	if err := sess.ValidateServer(); err != nil {
		return nil, fmt.Errorf("%w: server URL not set, run `lynx config`", err)
	}

	guard := session.NewGuard(r.store, storeRefresher{r}, session.GuardOpts{Logger: r.logger})
	return services.NewMediaService(sess.ServerURL, guard, r.httpClient, r.logger), nil
}

// storeRefresher adapts the identity client as the guard's refresher. The
// session is re-loaded at refresh time so provider settings changed since
// the guard was built are honored.
type storeRefresher struct {
	r *Runner
}

func (sr storeRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	sess, err := sr.r.store.Load()
	if err != nil {
		return nil, err
	}

	identity, err := sr.r.identity(sess)
	if err != nil {
		return nil, err
	}

	return identity.Refresh(ctx, refreshToken)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
