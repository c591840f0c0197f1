package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lynxfm/lynx/internal/models"
	"github.com/lynxfm/lynx/internal/shared"
	tu "github.com/lynxfm/lynx/internal/testing"
)

// fakeFetcher writes a payload per reference, failing the configured refs.
type fakeFetcher struct {
	mu      sync.Mutex
	failing map[string]error
	fetched []string
}

func (f *fakeFetcher) FetchTrack(ctx context.Context, ref string, w io.Writer) (int64, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, ref)
	f.mu.Unlock()

	if err, ok := f.failing[ref]; ok {
		return 0, err
	}

	payload := []byte("audio:" + ref)
	n, err := w.Write(payload)
	return int64(n), err
}

// memIndex is an in-memory CacheIndex.
type memIndex struct {
	mu      sync.Mutex
	entries map[string]models.CachedTrack
}

func newMemIndex() *memIndex {
	return &memIndex{entries: map[string]models.CachedTrack{}}
}

func (m *memIndex) Record(track models.CachedTrack) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[track.Reference] = track
	return nil
}

func (m *memIndex) Get(reference string) (*models.CachedTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if track, ok := m.entries[reference]; ok {
		return &track, nil
	}
	return nil, nil
}

func TestPrefetchEngine(t *testing.T) {
	ctx := context.Background()

	t.Run("Failures Are Independent", func(t *testing.T) {
		dir := t.TempDir()
		fetcher := &fakeFetcher{failing: map[string]error{
			"B": fmt.Errorf("%w: connection reset", shared.ErrTransport),
		}}

		engine := NewPrefetchEngine(fetcher, nil, nil)
		result, err := engine.Run(ctx, nil, []string{"A", "B", "C"}, PrefetchOpts{OutputDir: dir})
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		if result.SuccessCount != 2 || result.FailedCount != 1 {
			t.Errorf("expected 2 ok / 1 failed, got %d / %d", result.SuccessCount, result.FailedCount)
		}

		byRef := map[string]PrefetchItemResult{}
		for _, item := range result.Results {
			byRef[item.Reference] = item
		}

		for _, ref := range []string{"A", "C"} {
			item := byRef[ref]
			if item.Err != nil {
				t.Errorf("expected %s to succeed, got %v", ref, item.Err)
				continue
			}
			tu.AssertFileExists(t, item.Path)
			if got := tu.MustReadFile(t, item.Path); got != "audio:"+ref {
				t.Errorf("unexpected content for %s: %q", ref, got)
			}
		}

		if byRef["B"].Err == nil {
			t.Error("expected B to fail")
		}
		if byRef["B"].Path != "" {
			t.Error("failed fetch must not report a path")
		}
	})

	t.Run("Writes Manifest", func(t *testing.T) {
		dir := t.TempDir()
		fetcher := &fakeFetcher{failing: map[string]error{"bad": fmt.Errorf("boom")}}

		engine := NewPrefetchEngine(fetcher, nil, nil)
		result, err := engine.Run(ctx, nil, []string{"ok", "bad"}, PrefetchOpts{OutputDir: dir})
		if err != nil {
			t.Fatal(err)
		}
		if !result.Failed() {
			t.Error("expected batch marked failed")
		}

		manifestPath := filepath.Join(dir, "manifest.json")
		tu.AssertFileExists(t, manifestPath)

		var manifest PrefetchResult
		if err := json.Unmarshal([]byte(tu.MustReadFile(t, manifestPath)), &manifest); err != nil {
			t.Fatalf("manifest not valid JSON: %v", err)
		}
		if manifest.BatchID == "" {
			t.Error("expected batch id in manifest")
		}

		foundErr := false
		for _, item := range manifest.Results {
			if item.Reference == "bad" && item.ErrText != "" {
				foundErr = true
			}
		}
		if !foundErr {
			t.Error("expected failure text recorded in manifest")
		}
	})

	t.Run("Skips Cached References", func(t *testing.T) {
		dir := t.TempDir()

		cachedPath := filepath.Join(dir, "A.mp3")
		if err := os.WriteFile(cachedPath, []byte("already here"), 0644); err != nil {
			t.Fatal(err)
		}

		index := newMemIndex()
		index.Record(models.CachedTrack{ID: "1", Reference: "A", Path: cachedPath, SizeBytes: 12})

		fetcher := &fakeFetcher{}
		engine := NewPrefetchEngine(fetcher, index, nil)
		result, err := engine.Run(ctx, nil, []string{"A", "B"}, PrefetchOpts{OutputDir: dir})
		if err != nil {
			t.Fatal(err)
		}

		if result.SkippedCount != 1 || result.SuccessCount != 1 {
			t.Errorf("expected 1 skipped / 1 fetched, got %d / %d", result.SkippedCount, result.SuccessCount)
		}
		for _, ref := range fetcher.fetched {
			if ref == "A" {
				t.Error("cached reference must not be re-fetched")
			}
		}

		if entry, _ := index.Get("B"); entry == nil {
			t.Error("expected fetched reference indexed")
		}
	})

	t.Run("Force Refetches Cached References", func(t *testing.T) {
		dir := t.TempDir()

		cachedPath := filepath.Join(dir, "A.mp3")
		if err := os.WriteFile(cachedPath, []byte("stale"), 0644); err != nil {
			t.Fatal(err)
		}
		index := newMemIndex()
		index.Record(models.CachedTrack{ID: "1", Reference: "A", Path: cachedPath, SizeBytes: 5})

		fetcher := &fakeFetcher{}
		engine := NewPrefetchEngine(fetcher, index, nil)
		result, err := engine.Run(ctx, nil, []string{"A"}, PrefetchOpts{OutputDir: dir, Force: true})
		if err != nil {
			t.Fatal(err)
		}
		if result.SuccessCount != 1 || result.SkippedCount != 0 {
			t.Errorf("expected forced refetch, got %+v", result)
		}
		if got := tu.MustReadFile(t, cachedPath); got != "audio:A" {
			t.Errorf("expected fresh content, got %q", got)
		}
	})

	t.Run("Progress Updates Emitted", func(t *testing.T) {
		dir := t.TempDir()
		refs := []string{"A", "B", "C"}
		progress := make(chan ProgressUpdate, len(refs))

		engine := NewPrefetchEngine(&fakeFetcher{}, nil, nil)
		if _, err := engine.Run(ctx, progress, refs, PrefetchOpts{OutputDir: dir}); err != nil {
			t.Fatal(err)
		}
		close(progress)

		count := 0
		for update := range progress {
			count++
			if update.Total != len(refs) {
				t.Errorf("expected total %d, got %d", len(refs), update.Total)
			}
		}
		if count != len(refs) {
			t.Errorf("expected %d updates, got %d", len(refs), count)
		}
	})

	t.Run("No References Is An Error", func(t *testing.T) {
		engine := NewPrefetchEngine(&fakeFetcher{}, nil, nil)
		if _, err := engine.Run(ctx, nil, nil, PrefetchOpts{OutputDir: t.TempDir()}); err == nil {
			t.Error("expected error for empty reference list")
		}
	})

	t.Run("Sanitizes References In File Names", func(t *testing.T) {
		dir := t.TempDir()
		engine := NewPrefetchEngine(&fakeFetcher{}, nil, nil)

		result, err := engine.Run(ctx, nil, []string{"../evil/track"}, PrefetchOpts{OutputDir: dir})
		if err != nil {
			t.Fatal(err)
		}

		item := result.Results[0]
		if item.Err != nil {
			t.Fatalf("fetch failed: %v", item.Err)
		}
		rel, err := filepath.Rel(dir, item.Path)
		if err != nil || filepath.IsAbs(rel) || rel == ".." || filepath.Dir(rel) != "." {
			t.Errorf("expected download confined to %s, got %s", dir, item.Path)
		}
	})
}
