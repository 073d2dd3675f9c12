package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/amaumene/announcarr/internal/models"
)

func TestDetermineTVQuality(t *testing.T) {
	tests := []struct {
		name string
		want models.Quality
	}{
		{"Show.Name.S01E02.720p.HDTV.x264-GRP", models.Quality720p},
		{"Show.Name.S01E02.1080i.HDTV-GRP", models.Quality1080i},
		{"Show_Name_S01E02_XviD_GRP", models.QualityXviD},
		{"Show Name S01E02 1080P WEB", models.Quality1080p},
		{"Show.Name.S01E02.HDTV-GRP", models.QualityUnknown},
		// first token in the name wins, not the best one
		{"Show.Name.S01E02.XviD.720p-GRP", models.QualityXviD},
	}

	for _, tt := range tests {
		if got := DetermineTVQuality(tt.name); got != tt.want {
			t.Errorf("DetermineTVQuality(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestQualityOrdering(t *testing.T) {
	// best -> worst: 720p, 720i, 1080p, 1080i, XviD, unknown
	if !IsBetterQuality(models.Quality720p, models.Quality1080p) {
		t.Error("Expected 720p to rank above 1080p")
	}
	if !IsBetterQuality(models.Quality1080i, models.QualityXviD) {
		t.Error("Expected 1080i to rank above XviD")
	}
	if IsBetterQuality(models.Quality1080i, models.Quality720p) {
		t.Error("Expected 1080i to rank below 720p")
	}
	if IsBetterQuality(models.Quality720p, models.Quality720p) {
		t.Error("Equal quality must not be strictly better")
	}
	if QualityRank(models.QualitySkip) != QualityRank(models.QualityUnknown) {
		t.Error("Labels outside the vocabulary should rank as unknown")
	}
}

func TestEpisodeSignature(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"Show.Name.S01E02.720p", "Show.Name.1.2", true},
		{"Show.Name.S01E02E03.720p", "Show.Name.1.2.3", true},
		{"Show.Name.S01E02-E03.720p", "Show.Name.1.2.3", true},
		{"Show_Name_1x02_HDTV", "Show.Name.1.2", true},
		{"Show Name  S10E11 WEB", "Show.Name.10.11", true},
		{"Some.Movie.2010.720p", "", false},
	}

	for _, tt := range tests {
		got, ok := EpisodeSignature(tt.name)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("EpisodeSignature(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestIsRepack(t *testing.T) {
	if !IsRepack("Show.S01E02.REPACK.720p") {
		t.Error("Expected REPACK to be detected")
	}
	if !IsRepack("show.s01e02.proper.720p") {
		t.Error("Expected lower-case proper to be detected")
	}
	if IsRepack("Show.Repackaged.S01E02") {
		t.Error("Only whole tokens should count")
	}
}

func TestLoadRuleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.txt")
	content := "# comment\n\nShow.Name\n  Other.Show  \n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write rule file: %v", err)
	}

	patterns, err := LoadRuleFile(path)
	if err != nil {
		t.Fatalf("LoadRuleFile() error = %v", err)
	}
	if len(patterns) != 2 || patterns[0] != "Show.Name" || patterns[1] != "Other.Show" {
		t.Errorf("Unexpected patterns: %v", patterns)
	}

	if err := ValidatePattern("(unclosed"); err == nil {
		t.Error("Expected invalid pattern to be rejected")
	}
}
