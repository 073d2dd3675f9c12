package parser

import (
	"testing"
	"time"
)

const announceLine = "12/03/2012 14:22:11 <PTbot> ::: PolishTracker ::: Torrent ( Show.Name.S01E02.720p.HDTV.x264-GRP ) " +
	"Kategoria: ( TV ) Rozmiar: ( 1.5 GB ) Gatunek: ( Drama ) http://polishtracker.net/details.php?id=12345"

func newTestParser(t *testing.T) *PolishTracker {
	t.Helper()
	p, err := NewPolishTracker("pt", "secret", "http://tracker.example:81/downloadd.php/")
	if err != nil {
		t.Fatalf("NewPolishTracker() error = %v", err)
	}
	return p
}

func TestPolishTrackerParse(t *testing.T) {
	p := newTestParser(t)

	event, ok := p.Parse(announceLine)
	if !ok {
		t.Fatal("Expected announce line to parse")
	}

	if event.ID != 12345 {
		t.Errorf("Expected id 12345, got %d", event.ID)
	}
	if event.Name != "Show.Name.S01E02.720p.HDTV.x264-GRP" {
		t.Errorf("Unexpected name %q", event.Name)
	}
	if event.Category != "TV" {
		t.Errorf("Expected category TV, got %q", event.Category)
	}
	if event.Source != "pt" {
		t.Errorf("Expected source pt, got %q", event.Source)
	}
	want := time.Date(2012, 3, 12, 14, 22, 11, 0, time.Local)
	if !event.AnnouncedAt.Equal(want) {
		t.Errorf("Expected time %v, got %v", want, event.AnnouncedAt)
	}
	if event.Size == nil || *event.Size != 1610612736 {
		t.Errorf("Expected size 1.5 GB in bytes, got %v", event.Size)
	}
	if event.Genre == nil || *event.Genre != "Drama" {
		t.Errorf("Expected genre Drama, got %v", event.Genre)
	}
	wantURL := "http://tracker.example:81/downloadd.php/12345/secret/Show.Name.S01E02.720p.HDTV.x264-GRP.torrent"
	if event.URL != wantURL {
		t.Errorf("Expected URL %s, got %s", wantURL, event.URL)
	}
}

func TestPolishTrackerOptionalFieldsAbsent(t *testing.T) {
	p := newTestParser(t)
	line := "20120312142211 <PTbot> ::: PolishTracker ::: Torrent ( Some.Album-GRP ) Kategoria: ( Music ) details.php?id=9"

	event, ok := p.Parse(line)
	if !ok {
		t.Fatal("Expected line without size and genre to parse")
	}
	if event.Size != nil || event.Genre != nil {
		t.Errorf("Expected optional fields absent, got size=%v genre=%v", event.Size, event.Genre)
	}
}

func TestPolishTrackerRejects(t *testing.T) {
	p := newTestParser(t)

	lines := map[string]string{
		"chatter":          "12:00 <someone> hello there",
		"no id":            "12:00 <PTbot> ::: PolishTracker ::: Torrent ( X ) Kategoria: ( TV ) details.php",
		"no category":      "12:00 <PTbot> ::: PolishTracker ::: Torrent ( X ) details.php?id=1",
		"no name":          "12:00 <PTbot> ::: PolishTracker ::: Torrent Kategoria: ( TV ) details.php?id=1",
		"unparseable time": "yesterday <PTbot> ::: PolishTracker ::: Torrent ( X ) Kategoria: ( TV ) details.php?id=1",
	}

	for label, line := range lines {
		if event, ok := p.Parse(line); ok {
			t.Errorf("%s: expected no event, got %+v", label, event)
		}
	}
}

func TestParseAnnounceTimeClockOnly(t *testing.T) {
	now := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	got, ok := ParseAnnounceTime(" 14:22 ", now)
	if !ok || !got.Equal(now) {
		t.Errorf("Expected clock-only stamp to fall back to now, got %v (%v)", got, ok)
	}

	got, ok = ParseAnnounceTime("5/3/2012 4:02:01", now)
	want := time.Date(2012, 3, 5, 4, 2, 1, 0, time.Local)
	if !ok || !got.Equal(want) {
		t.Errorf("Expected %v, got %v (%v)", want, got, ok)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1.5 GB", 1610612736},
		{"700kB", 700 * 1024},
		{"700 KB", 700 * 1024},
		{"2 TB", 2 << 40},
		{"350 MB", 350 << 20},
		{"4096", 4096},
		{"12 B", 12},
	}

	for _, tt := range tests {
		got, ok := ParseSize(tt.in)
		if !ok || got != tt.want {
			t.Errorf("ParseSize(%q) = %d, %v; want %d", tt.in, got, ok, tt.want)
		}
	}

	if _, ok := ParseSize("huge"); ok {
		t.Error("Expected non-numeric size to be rejected")
	}
}

func TestRegistryLookup(t *testing.T) {
	registry := Registry{"pt": newTestParser(t)}
	if _, err := registry.Lookup("pt"); err != nil {
		t.Errorf("Lookup(pt) error = %v", err)
	}
	if _, err := registry.Lookup("nope"); err == nil {
		t.Error("Expected unknown module to fail")
	}
}

func TestRegistryRegister(t *testing.T) {
	registry := Registry{}
	if err := registry.Register("pt", "secret", "http://tracker.example/download"); err != nil {
		t.Fatalf("Register(pt) error = %v", err)
	}
	if _, err := registry.Lookup("pt"); err != nil {
		t.Errorf("Expected registered parser, got %v", err)
	}
	if err := registry.Register("unknown", "secret", "http://x"); err == nil {
		t.Error("Expected unknown format to fail")
	}
	if err := registry.Register("pt", "", "http://x"); err == nil {
		t.Error("Expected missing passkey to fail")
	}
}
