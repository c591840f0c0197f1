// package models defines the data model shared across the lynx client.
package models

import (
	"fmt"
	"time"
)

// Track references a playable asset on the media server. Only the ID is
// guaranteed; title and artist are present when the server returns JSON
// metadata.
type Track struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
}

// String renders the track for terminal output.
func (t Track) String() string {
	switch {
	case t.Title != "" && t.Artist != "":
		return fmt.Sprintf("%s — %s (%s)", t.Artist, t.Title, t.ID)
	case t.Title != "":
		return fmt.Sprintf("%s (%s)", t.Title, t.ID)
	default:
		return t.ID
	}
}

// CachedTrack is a row in the local prefetch cache index.
type CachedTrack struct {
	ID        string
	Reference string
	Path      string
	SizeBytes int64
	FetchedAt time.Time
}

// Validate checks the cached track before persistence.
func (c CachedTrack) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("cached track missing id")
	}
	if c.Reference == "" {
		return fmt.Errorf("cached track missing reference")
	}
	if c.Path == "" {
		return fmt.Errorf("cached track missing path")
	}
	return nil
}
