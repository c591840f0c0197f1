package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lynxfm/lynx/internal/repositories"
	"github.com/lynxfm/lynx/internal/services"
	"github.com/lynxfm/lynx/internal/shared"
	"github.com/lynxfm/lynx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Health probes the media server without attaching any token.
func (r *Runner) Health(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.store.Load()
	if err != nil {
		return err
	}

	media, err := r.media(sess)
	if err != nil {
		return err
	}

	if err := media.Health(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return r.writePlain("Server is healthy.\n")
}

// Random resolves a random track, then streams and plays it.
func (r *Runner) Random(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.store.Load()
	if err != nil {
		return err
	}

	media, err := r.media(sess)
	if err != nil {
		return err
	}

	track, err := media.RandomTrack(ctx)
	if err != nil {
		return err
	}

	if err := r.writePlain("Now playing: %s\n", track); err != nil {
		return err
	}
	return r.stream(ctx, media, track.ID)
}

// Play streams and plays a specific track reference.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	ref := cmd.StringArg("track_id")
	if ref == "" {
		return fmt.Errorf("%w: track_id", shared.ErrMissingArgument)
	}

	sess, err := r.store.Load()
	if err != nil {
		return err
	}

	media, err := r.media(sess)
	if err != nil {
		return err
	}

	if err := r.writePlain("Now playing: %s\n", ref); err != nil {
		return err
	}
	return r.stream(ctx, media, ref)
}

// stream hands the response body to the audio sink. The sink pulls chunks,
// so playback starts before the download completes; a transport error
// mid-stream aborts playback and is surfaced.
func (r *Runner) stream(ctx context.Context, media *services.MediaService, ref string) error {
	body, size, err := media.StreamTrack(ctx, ref)
	if err != nil {
		return err
	}
	defer body.Close()

	if size > 0 {
		r.logger.Debug("streaming track", "ref", ref, "bytes", size)
	}

	return r.sink.Play(ctx, body)
}

// Prefetch downloads the given references concurrently into the local media
// cache. Failures are reported per reference; the command exits non-zero if
// any item failed.
func (r *Runner) Prefetch(ctx context.Context, cmd *cli.Command) error {
	refs := cmd.Args().Slice()
	if len(refs) == 0 {
		return fmt.Errorf("%w: at least one track_id", shared.ErrMissingArgument)
	}

	sess, err := r.store.Load()
	if err != nil {
		return err
	}

	media, err := r.media(sess)
	if err != nil {
		return err
	}

	db, cache, err := r.openCache()
	if err != nil {
		// The cache index is an optimization; prefetch still works without it.
		r.logger.Warn("cache index unavailable", "err", err)
	}
	if db != nil {
		defer db.Close()
	}

	dir := cmd.String("dir")
	if dir == "" {
		dir = filepath.Join(r.cacheDir, "tracks")
	}

	progress := make(chan tasks.ProgressUpdate, len(refs))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Info("prefetch progress", "ref", update.Message, "done", update.Current, "total", update.Total)
		}
	}()

	var index tasks.CacheIndex
	if cache != nil {
		index = cache
	}

	engine := tasks.NewPrefetchEngine(media, index, r.logger)
	result, err := engine.Run(ctx, progress, refs, tasks.PrefetchOpts{
		OutputDir:  dir,
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  cmd.Float("rate"),
		Force:      cmd.Bool("force"),
	})
	close(progress)
	<-done
	if err != nil {
		return err
	}

	for _, item := range result.Results {
		var writeErr error
		switch {
		case item.Err != nil:
			writeErr = r.writePlain("✗ %s: %v\n", item.Reference, item.Err)
		case item.Skipped:
			writeErr = r.writePlain("- %s: already cached at %s\n", item.Reference, item.Path)
		default:
			writeErr = r.writePlain("✓ %s: %d bytes -> %s\n", item.Reference, item.Bytes, item.Path)
		}
		if writeErr != nil {
			return writeErr
		}
	}

	if err := r.writePlain("%d fetched, %d skipped, %d failed\n", result.SuccessCount, result.SkippedCount, result.FailedCount); err != nil {
		return err
	}

	if result.Failed() {
		return cli.Exit(fmt.Sprintf("%d of %d prefetches failed", result.FailedCount, len(refs)), 1)
	}

	return nil
}

// CacheList prints the prefetch cache index.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	db, cache, err := r.openCache()
	if err != nil {
		return err
	}
	defer db.Close()

	tracks, err := cache.List()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, true)
	}

	if len(tracks) == 0 {
		return r.writePlain("Cache is empty.\n")
	}

	for _, track := range tracks {
		if err := r.writePlain("%s  %10d bytes  %s  %s\n", track.FetchedAt.Format("2006-01-02 15:04"), track.SizeBytes, track.Reference, track.Path); err != nil {
			return err
		}
	}

	return nil
}

// openCache opens the sqlite cache index under the media cache directory,
// applying migrations.
func (r *Runner) openCache() (*sql.DB, *repositories.CacheRepository, error) {
	if err := os.MkdirAll(r.cacheDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create cache directory %s: %w", r.cacheDir, err)
	}

	db, err := shared.NewDatabase(filepath.Join(r.cacheDir, "cache.db"))
	if err != nil {
		return nil, nil, err
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, err
	}

	return db, repositories.NewCacheRepository(db), nil
}
