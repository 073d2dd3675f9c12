package controllers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/amaumene/announcarr/internal/metrics"
	"github.com/amaumene/announcarr/internal/models"
	"github.com/amaumene/announcarr/internal/services/tracker"
	"github.com/amaumene/announcarr/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	torrentExt  = ".torrent"
	partialExt  = ".adldownload"
	downloadDir = 0o755
)

// Fetcher retrieves the file behind a download URL. Errors wrapping
// tracker.ErrNotFound are permanent, all others are transient.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// DownloadController fetches releases into the watch directory and records
// the outcome in the download history
type DownloadController struct {
	db       *models.Database
	fetcher  Fetcher
	watchDir string
	logger   *logrus.Logger
}

// NewDownloadController creates a new download controller
func NewDownloadController(db *models.Database, fetcher Fetcher, watchDir string, logger *logrus.Logger) *DownloadController {
	return &DownloadController{
		db:       db,
		fetcher:  fetcher,
		watchDir: watchDir,
		logger:   logger,
	}
}

// Download fetches the release of event. It reports true when the release is
// on disk, was fetched before, or was queued for a deferred retry. extra rows
// are written to the download history on success.
//
// allowDefer is false for calls made by the retry scheduler: a transient
// failure then reports false instead of queueing another retry.
// The returned error is reserved for store failures.
func (c *DownloadController) Download(ctx context.Context, event *models.Event, allowDefer bool, extra ...models.HistoryEntry) (bool, error) {
	log := c.logger.WithFields(logrus.Fields{
		"name":   event.Name,
		"source": event.Source,
	})

	if allowDefer {
		deferred, err := c.db.FindDeferredByURL(event.URL)
		if err != nil {
			return false, fmt.Errorf("failed to look up deferred download: %w", err)
		}
		if deferred != nil {
			log.Info("Download already queued for retry")
			metrics.Downloads.WithLabelValues("queued").Inc()
			return false, nil
		}
	}

	history, err := c.db.FindHistory(event.Name)
	if err != nil {
		return false, fmt.Errorf("failed to look up download history: %w", err)
	}
	if history != nil {
		log.Info("Skipping already downloaded release")
		metrics.Downloads.WithLabelValues("already_downloaded").Inc()
		return true, nil
	}

	missing, err := c.db.FindMissingRelease(event.Name, event.Source)
	if err != nil {
		return false, fmt.Errorf("failed to look up missing release: %w", err)
	}
	if missing != nil {
		log.Info("Skipping release missing from tracker")
		metrics.Downloads.WithLabelValues("missing").Inc()
		return false, nil
	}

	satisfied, err := c.satisfiedBySupplementary(extra)
	if err != nil {
		return false, err
	}
	if satisfied {
		log.Info("Skipping release, an equal or better version was already downloaded")
		metrics.Downloads.WithLabelValues("already_downloaded").Inc()
		return true, nil
	}

	log.WithField("url", event.URL).Info("Starting download")

	path, fetchErr := c.fetch(ctx, event)
	if fetchErr == nil {
		if err := c.recordSuccess(event, extra); err != nil {
			return false, err
		}
		log.WithField("path", path).Info("Download completed")
		metrics.Downloads.WithLabelValues("success").Inc()
		return true, nil
	}

	failure := event.URL + " => " + fetchErr.Error()

	if errors.Is(fetchErr, tracker.ErrNotFound) {
		if err := c.db.CreateMissingRelease(&models.MissingRelease{
			Name:   event.Name,
			Source: event.Source,
			Log:    failure,
		}); err != nil {
			return false, fmt.Errorf("failed to record missing release: %w", err)
		}
		log.WithError(fetchErr).Warn("Release missing from tracker")
		metrics.Downloads.WithLabelValues("missing").Inc()
		return false, nil
	}

	if !allowDefer {
		log.WithError(fetchErr).Warn("Download failed")
		metrics.Downloads.WithLabelValues("failed").Inc()
		return false, nil
	}

	payload, err := event.Payload()
	if err != nil {
		return false, err
	}
	if err := c.db.CreateDeferred(&models.DeferredDownload{
		URL:           event.URL,
		Name:          event.Name,
		Source:        event.Source,
		Payload:       payload,
		Supplementary: extra,
		Log:           failure,
	}); err != nil {
		return false, fmt.Errorf("failed to queue deferred download: %w", err)
	}
	log.WithError(fetchErr).Warn("Download failed, deferred for retry")
	metrics.Downloads.WithLabelValues("deferred").Inc()
	return true, nil
}

// satisfiedBySupplementary reports whether one of the supplementary rows is
// already recorded with an equal or better quality. Forced rows never are.
func (c *DownloadController) satisfiedBySupplementary(extra []models.HistoryEntry) (bool, error) {
	for _, entry := range extra {
		if entry.Force {
			continue
		}
		row, err := c.db.FindHistory(entry.Name)
		if err != nil {
			return false, fmt.Errorf("failed to look up download history: %w", err)
		}
		if row != nil && !utils.IsBetterQuality(entry.Quality, row.Quality) {
			return true, nil
		}
	}
	return false, nil
}

func (c *DownloadController) recordSuccess(event *models.Event, extra []models.HistoryEntry) error {
	if err := c.db.CreateHistory(event.Name, models.QualitySingle); err != nil {
		return fmt.Errorf("failed to record download history: %w", err)
	}

	for _, entry := range extra {
		row, err := c.db.FindHistory(entry.Name)
		if err != nil {
			return fmt.Errorf("failed to look up download history: %w", err)
		}
		// a repack never downgrades the recorded quality
		if row != nil && !utils.IsBetterQuality(entry.Quality, row.Quality) {
			continue
		}
		if err := c.db.SaveHistory(entry.Name, entry.Quality); err != nil {
			return fmt.Errorf("failed to record download history: %w", err)
		}
		c.logger.WithFields(logrus.Fields{
			"name":    entry.Name,
			"quality": entry.Quality,
		}).Info("Download history saved")
	}
	return nil
}

// fetch downloads the release file next to its final path and renames it
// into place once fully written
func (c *DownloadController) fetch(ctx context.Context, event *models.Event) (string, error) {
	data, err := c.fetcher.Fetch(ctx, event.URL)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(c.watchDir, downloadDir); err != nil {
		return "", fmt.Errorf("failed to create watch directory: %w", err)
	}

	final := filepath.Join(c.watchDir, fileName(event.Name)+torrentExt)
	partial := final + partialExt

	if err := writeFile(partial, data); err != nil {
		os.Remove(partial)
		return "", err
	}
	if err := os.Rename(partial, final); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}
	return final, nil
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write download file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync download file: %w", err)
	}
	return f.Close()
}

// fileName keeps a release name inside the watch directory
func fileName(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(name)
	if name == "" || name == "." || name == ".." {
		name = "release-" + time.Now().Format("20060102150405")
	}
	return name
}
