package utils

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/amaumene/announcarr/internal/models"
)

// qualityOrder is the TV quality vocabulary, best first. The order encodes
// the supersession policy and must not be changed.
var qualityOrder = []models.Quality{
	models.Quality720p,
	models.Quality720i,
	models.Quality1080p,
	models.Quality1080i,
	models.QualityXviD,
	models.QualityUnknown,
}

var tokenSplit = regexp.MustCompile(`[._ ]`)

// ReleaseTokens splits a release name into upper-cased tokens
func ReleaseTokens(name string) []string {
	return tokenSplit.Split(strings.ToUpper(name), -1)
}

// QualityRank returns the position of q in the vocabulary (0 is best).
// Labels outside the vocabulary rank with unknown.
func QualityRank(q models.Quality) int {
	for i, label := range qualityOrder {
		if label == q {
			return i
		}
	}
	return len(qualityOrder) - 1
}

// IsBetterQuality reports whether candidate ranks strictly better than recorded
func IsBetterQuality(candidate, recorded models.Quality) bool {
	return QualityRank(candidate) < QualityRank(recorded)
}

// DetermineTVQuality scans the release tokens for a vocabulary label.
// The first matching token wins; no match yields unknown.
func DetermineTVQuality(name string) models.Quality {
	for _, token := range ReleaseTokens(name) {
		for _, label := range qualityOrder[:len(qualityOrder)-1] {
			if token == strings.ToUpper(string(label)) {
				return label
			}
		}
	}
	return models.QualityUnknown
}

// IsRepack reports whether the release is a fixed re-release
func IsRepack(name string) bool {
	for _, token := range ReleaseTokens(name) {
		if token == "PROPER" || token == "REPACK" {
			return true
		}
	}
	return false
}

var (
	doubleEpisodeRegex = regexp.MustCompile(`^(.+?)[._]S(\d+)E(\d+)-?E(\d+)`)
	episodeRegex       = regexp.MustCompile(`^(.+?)[._]S(\d+)E(\d+)`)
	crossEpisodeRegex  = regexp.MustCompile(`^(.+?)[._](\d+)x(\d+)`)
	separatorRegex     = regexp.MustCompile(`[_ ]`)
)

// EpisodeSignature derives "Show.Name.<season>.<episode>[.<episode2>]" from a
// release name, with numbers stripped of leading zeros so that S01E02 and
// 1x02 agree. Returns false when the name carries no episode marker.
func EpisodeSignature(name string) (string, bool) {
	normalized := separatorRegex.ReplaceAllString(name, ".")
	for strings.Contains(normalized, "..") {
		normalized = strings.ReplaceAll(normalized, "..", ".")
	}

	var match []string
	for _, re := range []*regexp.Regexp{doubleEpisodeRegex, episodeRegex, crossEpisodeRegex} {
		if match = re.FindStringSubmatch(normalized); match != nil {
			break
		}
	}
	if match == nil {
		return "", false
	}

	parts := []string{match[1]}
	for _, number := range match[2:] {
		n, err := strconv.Atoi(number)
		if err != nil {
			return "", false
		}
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, "."), true
}
