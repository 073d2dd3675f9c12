package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/announcarr/internal/models"
)

var (
	ptBannerRegex   = regexp.MustCompile(`::: PolishTracker :::\s+Torrent.+details\.php`)
	ptIDRegex       = regexp.MustCompile(`details\.php\?id=(\d+)`)
	ptNameRegex     = regexp.MustCompile(`Torrent\s+\(\s+(.+?)\s+\)`)
	ptCategoryRegex = regexp.MustCompile(`Kategoria\s*:\s+\(\s+(.+?)\s+\)`)
	ptTimeRegex     = regexp.MustCompile(`^([^<]+?)\s*<`)
	ptSizeRegex     = regexp.MustCompile(`Rozmiar\s*:\s*\(\s+(.+?)\s+\)`)
	ptGenreRegex    = regexp.MustCompile(`Gatunek\s*:\s*\(\s+(.+?)\s+\)`)
)

// PolishTracker parses the PolishTracker IRC announce bot format
type PolishTracker struct {
	source       string
	passKey      string
	downloadBase string
	now          func() time.Time
}

// NewPolishTracker creates a parser emitting events tagged with source.
// Download URLs are built as <downloadBase>/<id>/<passKey>/<name>.torrent.
func NewPolishTracker(source, passKey, downloadBase string) (*PolishTracker, error) {
	if passKey == "" {
		return nil, fmt.Errorf("passkey for %s is required", source)
	}
	if downloadBase == "" {
		return nil, fmt.Errorf("download base for %s is required", source)
	}
	return &PolishTracker{
		source:       source,
		passKey:      passKey,
		downloadBase: strings.TrimRight(downloadBase, "/"),
		now:          time.Now,
	}, nil
}

// Parse implements Parser. Any required field missing rejects the line.
func (p *PolishTracker) Parse(line string) (*models.Event, bool) {
	if !ptBannerRegex.MatchString(line) {
		return nil, false
	}

	m := ptIDRegex.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil, false
	}

	m = ptNameRegex.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	name := m[1]

	m = ptCategoryRegex.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	category := m[1]

	m = ptTimeRegex.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	announcedAt, ok := ParseAnnounceTime(m[1], p.now())
	if !ok {
		return nil, false
	}

	event := &models.Event{
		ID:          id,
		Source:      p.source,
		Name:        name,
		Category:    category,
		AnnouncedAt: announcedAt,
		URL:         p.downloadURL(id, name),
	}

	if m := ptSizeRegex.FindStringSubmatch(line); m != nil {
		if size, ok := ParseSize(m[1]); ok {
			event.Size = &size
		}
	}
	if m := ptGenreRegex.FindStringSubmatch(line); m != nil {
		genre := m[1]
		event.Genre = &genre
	}

	return event, true
}

func (p *PolishTracker) downloadURL(id int64, name string) string {
	return fmt.Sprintf("%s/%d/%s/%s.torrent", p.downloadBase, id, p.passKey, url.PathEscape(name))
}
