package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lynxfm/lynx/internal/models"
	"github.com/lynxfm/lynx/internal/shared"
	"golang.org/x/time/rate"
)

// Fetcher downloads a single track reference into a writer. Implemented by
// services.MediaService.
type Fetcher interface {
	FetchTrack(ctx context.Context, ref string, w io.Writer) (int64, error)
}

// CacheIndex records fetched tracks so repeated prefetches can skip work.
// Implemented by repositories.CacheRepository; a nil index disables skipping.
type CacheIndex interface {
	Record(track models.CachedTrack) error
	Get(reference string) (*models.CachedTrack, error)
}

// PrefetchOpts contains configuration for a prefetch batch.
type PrefetchOpts struct {
	OutputDir  string  // Download directory (default: lynx_cache_{epoch})
	NumWorkers int     // Concurrent workers (default: 4)
	RateLimit  float64 // Requests per second (default: 4)
	Force      bool    // Re-download references already in the cache index
}

// PrefetchItemResult is the outcome of one reference's fetch. Outcomes are
// independent: a failed reference never aborts its siblings.
type PrefetchItemResult struct {
	Reference string `json:"reference"`
	Path      string `json:"path,omitempty"`
	Bytes     int64  `json:"bytes,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Err       error  `json:"-"`
	ErrText   string `json:"error,omitempty"`
}

// PrefetchResult aggregates a batch.
type PrefetchResult struct {
	BatchID         string               `json:"batch_id"`
	OutputDirectory string               `json:"output_directory"`
	StartedAt       time.Time            `json:"started_at"`
	Results         []PrefetchItemResult `json:"results"`
	SuccessCount    int                  `json:"success_count"`
	FailedCount     int                  `json:"failed_count"`
	SkippedCount    int                  `json:"skipped_count"`
}

// Failed reports whether any reference in the batch failed.
func (r *PrefetchResult) Failed() bool {
	return r.FailedCount > 0
}

// ProgressUpdate is a non-blocking status message emitted during a batch.
type ProgressUpdate struct {
	Current int
	Total   int
	Message string
}

// PrefetchEngine downloads track references concurrently with rate limiting.
//
// The token backing the fetcher is resolved once per request by the media
// client; the engine itself holds no mutable shared state beyond the result
// collector, so workers need no coordination past the jobs channel.
type PrefetchEngine struct {
	fetcher Fetcher
	cache   CacheIndex
	logger  *log.Logger
}

// NewPrefetchEngine creates an engine over the given fetcher and optional
// cache index.
func NewPrefetchEngine(fetcher Fetcher, cache CacheIndex, logger *log.Logger) *PrefetchEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PrefetchEngine{fetcher: fetcher, cache: cache, logger: logger}
}

// Run downloads the given references into opts.OutputDir using a bounded
// worker pool. Each reference is attempted independently; failures are
// collected per item and reported in the result, and a manifest.json
// summarizing the batch is written alongside the downloads.
func (e *PrefetchEngine) Run(ctx context.Context, prog chan<- ProgressUpdate, refs []string, opts PrefetchOpts) (*PrefetchResult, error) {
	if e.fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher not initialized", shared.ErrServiceUnavailable)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: track references", shared.ErrMissingArgument)
	}

	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("lynx_cache_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 8 {
		opts.NumWorkers = 8
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 4.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", opts.OutputDir, err)
	}

	result := &PrefetchResult{
		BatchID:         shared.GenerateID(),
		OutputDirectory: opts.OutputDir,
		StartedAt:       time.Now(),
		Results:         make([]PrefetchItemResult, 0, len(refs)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan string, len(refs))
	results := make(chan PrefetchItemResult, len(refs))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.worker(ctx, &wg, limiter, jobs, results, opts)
	}

	for _, ref := range refs {
		jobs <- ref
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	total := len(refs)
	for item := range results {
		result.Results = append(result.Results, item)

		switch {
		case item.Err != nil:
			result.FailedCount++
			e.logger.Warn("prefetch failed", "ref", item.Reference, "err", item.Err)
		case item.Skipped:
			result.SkippedCount++
		default:
			result.SuccessCount++
		}

		sendProgress(prog, ProgressUpdate{
			Current: len(result.Results),
			Total:   total,
			Message: item.Reference,
		})
	}

	if err := e.writeManifest(result); err != nil {
		e.logger.Warn("failed to write manifest", "err", err)
	}

	return result, nil
}

// worker drains the jobs channel, fetching one reference at a time.
func (e *PrefetchEngine) worker(ctx context.Context, wg *sync.WaitGroup, limiter *rate.Limiter, jobs <-chan string, results chan<- PrefetchItemResult, opts PrefetchOpts) {
	defer wg.Done()

	for ref := range jobs {
		select {
		case <-ctx.Done():
			results <- errItem(ref, ctx.Err())
			continue
		default:
		}

		if !opts.Force && e.cache != nil {
			if cached, err := e.cache.Get(ref); err == nil && cached != nil {
				if _, statErr := os.Stat(cached.Path); statErr == nil {
					results <- PrefetchItemResult{Reference: ref, Path: cached.Path, Bytes: cached.SizeBytes, Skipped: true}
					continue
				}
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			results <- errItem(ref, err)
			continue
		}

		results <- e.fetchOne(ctx, ref, opts.OutputDir)
	}
}

// fetchOne downloads a single reference to a temp file and renames it into
// place, so an interrupted download never leaves a partial track behind.
func (e *PrefetchEngine) fetchOne(ctx context.Context, ref, dir string) PrefetchItemResult {
	dest := filepath.Join(dir, sanitizeRef(ref)+".mp3")

	tmp, err := os.CreateTemp(dir, ".prefetch-*")
	if err != nil {
		return errItem(ref, fmt.Errorf("failed to create temp file: %w", err))
	}
	defer os.Remove(tmp.Name())

	n, err := e.fetcher.FetchTrack(ctx, ref, tmp)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to flush %s: %w", dest, closeErr)
	}
	if err != nil {
		return errItem(ref, err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return errItem(ref, fmt.Errorf("failed to move download into place: %w", err))
	}

	if e.cache != nil {
		if err := e.cache.Record(models.CachedTrack{Reference: ref, Path: dest, SizeBytes: n}); err != nil {
			e.logger.Warn("failed to index cached track", "ref", ref, "err", err)
		}
	}

	return PrefetchItemResult{Reference: ref, Path: dest, Bytes: n}
}

func (e *PrefetchEngine) writeManifest(result *PrefetchResult) error {
	for i := range result.Results {
		if result.Results[i].Err != nil {
			result.Results[i].ErrText = result.Results[i].Err.Error()
		}
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(result.OutputDirectory, "manifest.json"), data, 0644)
}

func errItem(ref string, err error) PrefetchItemResult {
	return PrefetchItemResult{Reference: ref, Err: err}
}

// sendProgress delivers an update without blocking when nobody is listening.
func sendProgress(prog chan<- ProgressUpdate, update ProgressUpdate) {
	if prog == nil {
		return
	}
	select {
	case prog <- update:
	default:
	}
}

// sanitizeRef makes a track reference safe to use as a file name.
func sanitizeRef(ref string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	return replacer.Replace(ref)
}
