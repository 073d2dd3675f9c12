package controllers

import (
	"context"
	"fmt"
	"regexp"

	"github.com/amaumene/announcarr/internal/metrics"
	"github.com/amaumene/announcarr/internal/models"
	"github.com/amaumene/announcarr/internal/utils"
	"github.com/sirupsen/logrus"
)

// episodeMarker is appended to every TV entry so only tagged episodes match
const episodeMarker = `[._](S\d+E\d+(-?E\d+)?|\d+x\d\d)[._]`

// Matcher consumes forwarded releases and downloads the ones its
// auto-download entries accept
type Matcher interface {
	Name() string
	Reload() error
	Consume(ctx context.Context, event *models.Event) error
}

func loadAdlPatterns(db *models.Database, adlType models.AdlType) ([]string, error) {
	entries, err := db.GetAdlEntries(adlType)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s auto-download entries: %w", adlType, err)
	}
	patterns := make([]string, 0, len(entries))
	for _, entry := range entries {
		patterns = append(patterns, entry.Pattern)
	}
	return patterns, nil
}

// GenericMatcher downloads releases whose whole name matches an entry
type GenericMatcher struct {
	db         *models.Database
	downloader *DownloadController
	accepter   *regexp.Regexp
	logger     *logrus.Logger
}

// NewGenericMatcher creates a new generic matcher and compiles its entries
func NewGenericMatcher(db *models.Database, downloader *DownloadController, logger *logrus.Logger) (*GenericMatcher, error) {
	m := &GenericMatcher{
		db:         db,
		downloader: downloader,
		logger:     logger,
	}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *GenericMatcher) Name() string { return string(models.AdlTypeGeneric) }

// Reload recompiles the generic entries
func (m *GenericMatcher) Reload() error {
	patterns, err := loadAdlPatterns(m.db, models.AdlTypeGeneric)
	if err != nil {
		return err
	}
	m.accepter = compileAlternation(patterns, nil, true, m.logger)
	m.logger.WithField("entries", len(patterns)).Info("Generic auto-download entries compiled")
	return nil
}

// Consume downloads the release if an entry accepts it
func (m *GenericMatcher) Consume(ctx context.Context, event *models.Event) error {
	if m.accepter == nil || !m.accepter.MatchString(event.Name) {
		return nil
	}
	m.logger.WithField("name", event.Name).Info("Generic auto-download accepted release")
	_, err := m.downloader.Download(ctx, event, true)
	return err
}

// TVMatcher downloads episodes of tracked shows, skipping episodes already
// downloaded in an equal or better quality
type TVMatcher struct {
	db         *models.Database
	downloader *DownloadController
	accepter   *regexp.Regexp
	logger     *logrus.Logger
}

// NewTVMatcher creates a new TV matcher and compiles its entries
func NewTVMatcher(db *models.Database, downloader *DownloadController, logger *logrus.Logger) (*TVMatcher, error) {
	m := &TVMatcher{
		db:         db,
		downloader: downloader,
		logger:     logger,
	}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *TVMatcher) Name() string { return string(models.AdlTypeTV) }

// Reload recompiles the TV entries. Entries match a prefix of the name.
func (m *TVMatcher) Reload() error {
	patterns, err := loadAdlPatterns(m.db, models.AdlTypeTV)
	if err != nil {
		return err
	}
	m.accepter = compileAlternation(patterns, func(show string) string {
		return "(?:" + show + ")" + episodeMarker
	}, false, m.logger)
	m.logger.WithField("entries", len(patterns)).Info("TV auto-download entries compiled")
	return nil
}

// Consume downloads the episode unless it is redundant
func (m *TVMatcher) Consume(ctx context.Context, event *models.Event) error {
	if m.accepter == nil || !m.accepter.MatchString(event.Name) {
		return nil
	}

	log := m.logger.WithField("name", event.Name)

	exact, err := m.db.FindHistory(event.Name)
	if err != nil {
		return fmt.Errorf("failed to look up download history: %w", err)
	}
	if exact != nil {
		log.Debug("TV release already processed")
		return nil
	}

	quality := utils.DetermineTVQuality(event.Name)
	signature, ok := utils.EpisodeSignature(event.Name)
	if !ok {
		log.Info("TV release has no episode signature, downloading")
		_, err := m.downloader.Download(ctx, event, true)
		return err
	}

	redundant, err := m.redundant(event.Name, signature, quality)
	if err != nil {
		return err
	}
	if redundant {
		log.WithField("signature", signature).Info("Skipping TV release, episode already downloaded")
		metrics.Downloads.WithLabelValues("skipped").Inc()
		return m.db.CreateHistory(event.Name, models.QualitySkip)
	}

	log.WithFields(logrus.Fields{
		"signature": signature,
		"quality":   quality,
	}).Info("TV auto-download accepted release")

	_, err = m.downloader.Download(ctx, event, true, models.HistoryEntry{
		Name:    signature,
		Quality: quality,
		Force:   utils.IsRepack(event.Name),
	})
	return err
}

// redundant reports whether the episode is already downloaded in a quality
// the release does not improve on. Repacks are never redundant.
func (m *TVMatcher) redundant(name, signature string, quality models.Quality) (bool, error) {
	recorded, err := m.db.FindHistory(signature)
	if err != nil {
		return false, fmt.Errorf("failed to look up download history: %w", err)
	}
	if recorded == nil {
		return false, nil
	}

	log := m.logger.WithFields(logrus.Fields{
		"name":      name,
		"signature": signature,
	})
	if utils.IsRepack(name) {
		log.Debug("Repacked release is always downloaded")
		return false, nil
	}
	if utils.IsBetterQuality(quality, recorded.Quality) {
		log.WithFields(logrus.Fields{
			"quality":  quality,
			"recorded": recorded.Quality,
		}).Debug("Release improves on recorded quality")
		return false, nil
	}
	return true, nil
}
