package repositories

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lynxfm/lynx/internal/models"
	"github.com/lynxfm/lynx/internal/shared"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func TestCacheRepository(t *testing.T) {
	t.Run("Record And Get", func(t *testing.T) {
		repo := NewCacheRepository(testDB(t))

		track := models.CachedTrack{
			Reference: "t-1",
			Path:      "/tmp/cache/t-1.mp3",
			SizeBytes: 2048,
		}
		if err := repo.Record(track); err != nil {
			t.Fatalf("record failed: %v", err)
		}

		got, err := repo.Get("t-1")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected cached track")
		}
		if got.ID == "" {
			t.Error("expected generated id")
		}
		if got.Path != track.Path || got.SizeBytes != track.SizeBytes {
			t.Errorf("unexpected entry %+v", got)
		}
		if got.FetchedAt.IsZero() {
			t.Error("expected fetched_at populated")
		}
	})

	t.Run("Get Unknown Reference Is Nil", func(t *testing.T) {
		repo := NewCacheRepository(testDB(t))

		got, err := repo.Get("never-fetched")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil for unknown reference, got %+v", got)
		}
	})

	t.Run("Record Same Reference Updates Row", func(t *testing.T) {
		repo := NewCacheRepository(testDB(t))

		if err := repo.Record(models.CachedTrack{Reference: "t-1", Path: "/old.mp3", SizeBytes: 10}); err != nil {
			t.Fatal(err)
		}
		if err := repo.Record(models.CachedTrack{Reference: "t-1", Path: "/new.mp3", SizeBytes: 20}); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		entries, err := repo.List()
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected single row after upsert, got %d", len(entries))
		}
		if entries[0].Path != "/new.mp3" || entries[0].SizeBytes != 20 {
			t.Errorf("expected updated row, got %+v", entries[0])
		}
	})

	t.Run("Record Rejects Invalid Entry", func(t *testing.T) {
		repo := NewCacheRepository(testDB(t))

		if err := repo.Record(models.CachedTrack{Path: "/x.mp3"}); err == nil {
			t.Error("expected validation failure for empty reference")
		}
	})

	t.Run("List Newest First", func(t *testing.T) {
		repo := NewCacheRepository(testDB(t))

		base := time.Now().Add(-time.Hour)
		for i, ref := range []string{"old", "mid", "new"} {
			track := models.CachedTrack{
				Reference: ref,
				Path:      "/tmp/" + ref + ".mp3",
				SizeBytes: 1,
				FetchedAt: base.Add(time.Duration(i) * time.Minute),
			}
			if err := repo.Record(track); err != nil {
				t.Fatal(err)
			}
		}

		entries, err := repo.List()
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(entries))
		}
		if entries[0].Reference != "new" || entries[2].Reference != "old" {
			t.Errorf("expected newest first, got %s..%s", entries[0].Reference, entries[2].Reference)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewCacheRepository(testDB(t))

		if err := repo.Record(models.CachedTrack{Reference: "t-1", Path: "/x.mp3", SizeBytes: 1}); err != nil {
			t.Fatal(err)
		}
		if err := repo.Delete("t-1"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}

		got, err := repo.Get("t-1")
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Error("expected entry removed")
		}

		if err := repo.Delete("t-1"); err == nil {
			t.Error("expected error deleting unknown reference")
		}
	})
}
