// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// configCommand writes provider and server settings into the session without
// touching tokens; with no flags it prints the current configuration.
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configure provider and media server URLs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "provider-url",
				Aliases: []string{"supabase-url"},
				Usage:   "Identity provider base URL",
			},
			&cli.StringFlag{
				Name:    "provider-key",
				Aliases: []string{"supabase-key"},
				Usage:   "Identity provider public anonymous key",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Aliases: []string{"s"},
				Usage:   "Media server base URL",
			},
		},
		Action: r.Config,
	}
}

func signupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "signup",
		Usage:  "Sign up for a new account",
		Action: r.Signup,
	}
}

func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "Log in to your account",
		Action: r.Login,
	}
}

func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Log out from your account",
		Action: r.Logout,
	}
}

func healthCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "health",
		Usage:  "Check whether the media server is healthy",
		Action: r.Health,
	}
}

func randomCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "random",
		Usage:  "Play a random track",
		Action: r.Random,
	}
}

func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "Stream and play a specific track",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "track_id"},
		},
		Action: r.Play,
	}
}

func prefetchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "prefetch",
		Usage:     "Download tracks into the local cache ahead of playback",
		ArgsUsage: "<track_id>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Download directory (defaults to the media cache)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent downloads",
				Value: 4,
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Requests per second",
				Value: 4,
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Re-download references already cached",
			},
		},
		Action: r.Prefetch,
	}
}

func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "List prefetched tracks",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.CacheList,
	}
}
