// package repositories provides the persistence layer for the local media
// cache index, backed by SQLite.
package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lynxfm/lynx/internal/models"
	"github.com/lynxfm/lynx/internal/shared"
)

// CacheRepository records which track references have been prefetched and
// where their bytes live on disk. Duplicate references are deduplicated via
// the UNIQUE constraint; re-fetching an existing reference updates the row.
type CacheRepository struct {
	db *sql.DB
}

// NewCacheRepository creates a CacheRepository with the given database connection
func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

// Record upserts a cache entry for a fetched track.
func (r *CacheRepository) Record(track models.CachedTrack) error {
	if track.ID == "" {
		track.ID = shared.GenerateID()
	}
	if track.FetchedAt.IsZero() {
		track.FetchedAt = time.Now()
	}

	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO cached_tracks (id, reference, path, size_bytes, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(reference) DO UPDATE SET
			path = excluded.path,
			size_bytes = excluded.size_bytes,
			fetched_at = excluded.fetched_at
	`

	if _, err := r.db.Exec(query, track.ID, track.Reference, track.Path, track.SizeBytes, track.FetchedAt); err != nil {
		return fmt.Errorf("failed to record cached track: %w", err)
	}

	return nil
}

// Get retrieves the cache entry for a reference, or nil when the reference
// has never been fetched.
func (r *CacheRepository) Get(reference string) (*models.CachedTrack, error) {
	query := `
		SELECT id, reference, path, size_bytes, fetched_at
		FROM cached_tracks
		WHERE reference = ?
	`

	var track models.CachedTrack
	err := r.db.QueryRow(query, reference).Scan(&track.ID, &track.Reference, &track.Path, &track.SizeBytes, &track.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cached track: %w", err)
	}

	return &track, nil
}

// List returns all cache entries ordered by fetch time, newest first.
func (r *CacheRepository) List() ([]models.CachedTrack, error) {
	query := `
		SELECT id, reference, path, size_bytes, fetched_at
		FROM cached_tracks
		ORDER BY fetched_at DESC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached tracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.CachedTrack
	for rows.Next() {
		var track models.CachedTrack
		if err := rows.Scan(&track.ID, &track.Reference, &track.Path, &track.SizeBytes, &track.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cached track: %w", err)
		}
		tracks = append(tracks, track)
	}

	return tracks, rows.Err()
}

// Delete removes a cache entry by reference.
func (r *CacheRepository) Delete(reference string) error {
	result, err := r.db.Exec("DELETE FROM cached_tracks WHERE reference = ?", reference)
	if err != nil {
		return fmt.Errorf("failed to delete cached track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("reference not cached: %s", strings.TrimSpace(reference))
	}

	return nil
}
