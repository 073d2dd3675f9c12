package models

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "announcarr.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPayload(t *testing.T, name, url string) string {
	t.Helper()
	event := &Event{Source: "pt", Name: name, URL: url, AnnouncedAt: time.Now()}
	payload, err := event.Payload()
	if err != nil {
		t.Fatalf("Failed to encode payload: %v", err)
	}
	return payload
}

func TestReleaseKeyUniqueAcrossLiveAndArchived(t *testing.T) {
	db := newTestDatabase(t)

	release := &Release{Name: "Some.Release", Source: "pt", Payload: testPayload(t, "Some.Release", "http://a")}
	if err := db.CreateRelease(release); err != nil {
		t.Fatalf("CreateRelease() error = %v", err)
	}

	archived := &ArchivedRelease{Name: "Some.Release", Source: "pt", Payload: release.Payload}
	err := db.CreateArchivedRelease(archived)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate, got %v", err)
	}

	// Same name on another source is a different key
	other := &ArchivedRelease{Name: "Some.Release", Source: "other", Payload: release.Payload}
	if err := db.CreateArchivedRelease(other); err != nil {
		t.Fatalf("CreateArchivedRelease() error = %v", err)
	}
}

func TestFindAndUpdateRelease(t *testing.T) {
	db := newTestDatabase(t)

	found, err := db.FindRelease("Missing.Release", "pt")
	if err != nil || found != nil {
		t.Fatalf("Expected nil release, got %v (err %v)", found, err)
	}

	if err := db.CreateRelease(&Release{Name: "A", Source: "pt", Payload: testPayload(t, "A", "http://old")}); err != nil {
		t.Fatalf("CreateRelease() error = %v", err)
	}

	found, err = db.FindRelease("A", "pt")
	if err != nil || found == nil {
		t.Fatalf("FindRelease() = %v, %v", found, err)
	}
	if found.URL() != "http://old" {
		t.Errorf("Expected URL http://old, got %s", found.URL())
	}

	found.Payload = testPayload(t, "A", "http://new")
	if err := db.UpdateRelease(found); err != nil {
		t.Fatalf("UpdateRelease() error = %v", err)
	}

	again, _ := db.FindRelease("A", "pt")
	if again.URL() != "http://new" {
		t.Errorf("Expected updated URL http://new, got %s", again.URL())
	}
}

func TestMissingReleaseDeleteAllByKey(t *testing.T) {
	db := newTestDatabase(t)

	for i := 0; i < 2; i++ {
		if err := db.CreateMissingRelease(&MissingRelease{Name: "Gone", Source: "pt", Log: "404"}); err != nil {
			t.Fatalf("CreateMissingRelease() error = %v", err)
		}
	}
	if err := db.CreateMissingRelease(&MissingRelease{Name: "Other", Source: "pt", Log: "404"}); err != nil {
		t.Fatalf("CreateMissingRelease() error = %v", err)
	}

	if err := db.DeleteMissingReleases("Gone", "pt"); err != nil {
		t.Fatalf("DeleteMissingReleases() error = %v", err)
	}

	if m, _ := db.FindMissingRelease("Gone", "pt"); m != nil {
		t.Error("Expected all markers for Gone to be deleted")
	}
	if m, _ := db.FindMissingRelease("Other", "pt"); m == nil {
		t.Error("Expected marker for Other to survive")
	}
}

func TestHistoryCreateAndSave(t *testing.T) {
	db := newTestDatabase(t)

	if err := db.CreateHistory("Show.1.2", Quality1080p); err != nil {
		t.Fatalf("CreateHistory() error = %v", err)
	}
	if err := db.CreateHistory("Show.1.2", Quality720p); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate, got %v", err)
	}

	if err := db.SaveHistory("Show.1.2", Quality720p); err != nil {
		t.Fatalf("SaveHistory() error = %v", err)
	}
	row, err := db.FindHistory("Show.1.2")
	if err != nil || row == nil {
		t.Fatalf("FindHistory() = %v, %v", row, err)
	}
	if row.Quality != Quality720p {
		t.Errorf("Expected quality %s, got %s", Quality720p, row.Quality)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.DownloadHistory != 1 {
		t.Errorf("Expected 1 history row, got %d", stats.DownloadHistory)
	}
}

func TestDeferredDownloadUniquePerURL(t *testing.T) {
	db := newTestDatabase(t)

	first := &DeferredDownload{URL: "http://x/1", Name: "One", Source: "pt"}
	if err := db.CreateDeferred(first); err != nil {
		t.Fatalf("CreateDeferred() error = %v", err)
	}
	if first.LastTryAt.IsZero() {
		t.Error("Expected LastTryAt to default to creation time")
	}
	if err := db.CreateDeferred(&DeferredDownload{URL: "http://x/1", Name: "One", Source: "pt"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate, got %v", err)
	}
	if err := db.CreateDeferred(&DeferredDownload{URL: "http://x/2", Name: "Two", Source: "pt"}); err != nil {
		t.Fatalf("CreateDeferred() error = %v", err)
	}

	pending, err := db.GetDeferredDownloads()
	if err != nil {
		t.Fatalf("GetDeferredDownloads() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 deferred downloads, got %d", len(pending))
	}
	if pending[0].Name != "One" {
		t.Errorf("Expected oldest entry first, got %s", pending[0].Name)
	}

	pending[0].RetryCount = 2
	if err := db.UpdateDeferred(pending[0]); err != nil {
		t.Fatalf("UpdateDeferred() error = %v", err)
	}
	if err := db.DeleteDeferred(pending[1].ID); err != nil {
		t.Fatalf("DeleteDeferred() error = %v", err)
	}

	left, _ := db.FindDeferredByURL("http://x/1")
	if left == nil || left.RetryCount != 2 {
		t.Errorf("Expected retry count 2 to persist, got %+v", left)
	}
	if gone, _ := db.FindDeferredByURL("http://x/2"); gone != nil {
		t.Error("Expected deferred download to be deleted")
	}
}

func TestRulesAndProvision(t *testing.T) {
	db := newTestDatabase(t)

	if err := db.Provision(); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if err := db.CreateFilterRule(`.*\.XXX\..*`); err != nil {
		t.Fatalf("CreateFilterRule() error = %v", err)
	}
	if err := db.CreateAdlEntry(AdlTypeTV, "Show"); err != nil {
		t.Fatalf("CreateAdlEntry() error = %v", err)
	}
	if err := db.CreateAdlEntry(AdlTypeGeneric, "Album.*"); err != nil {
		t.Fatalf("CreateAdlEntry() error = %v", err)
	}

	// Provisioning again repairs indexes without touching data
	if err := db.Provision(); err != nil {
		t.Fatalf("second Provision() error = %v", err)
	}

	rules, err := db.GetFilterRules()
	if err != nil || len(rules) != 1 {
		t.Fatalf("GetFilterRules() = %v, %v", rules, err)
	}
	tv, err := db.GetAdlEntries(AdlTypeTV)
	if err != nil || len(tv) != 1 || tv[0].Pattern != "Show" {
		t.Fatalf("GetAdlEntries(tv) = %v, %v", tv, err)
	}
}

func TestEventPayloadKeepsOptionalFields(t *testing.T) {
	size := int64(1024)
	event := &Event{ID: 7, Source: "pt", Name: "N", Category: "TV", URL: "http://u", Size: &size}

	payload, err := event.Payload()
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	decoded, err := DecodeEvent(payload)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if decoded.Size == nil || *decoded.Size != 1024 {
		t.Errorf("Expected size 1024, got %v", decoded.Size)
	}
	if decoded.Genre != nil {
		t.Errorf("Expected absent genre, got %q", *decoded.Genre)
	}
}

func TestParseAdlType(t *testing.T) {
	if _, err := ParseAdlType("tv"); err != nil {
		t.Errorf("Expected tv to be valid: %v", err)
	}
	if _, err := ParseAdlType("movie"); err == nil {
		t.Error("Expected movie to be rejected")
	}
}
