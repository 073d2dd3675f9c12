package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/announcarr/internal/metrics"
	"github.com/amaumene/announcarr/internal/models"
	"github.com/sirupsen/logrus"
)

// retrySchedule is the wait after the last try, indexed by retry count.
// Counts past the end use the last value.
var retrySchedule = []time.Duration{
	5 * time.Minute,
	30 * time.Minute,
	120 * time.Minute,
	24 * time.Hour,
}

// RetryDelay returns the backoff for a deferred download tried retryCount times
func RetryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(retrySchedule) {
		return retrySchedule[len(retrySchedule)-1]
	}
	return retrySchedule[retryCount]
}

// RetryController re-attempts deferred downloads whose backoff has elapsed
type RetryController struct {
	db         *models.Database
	downloader *DownloadController
	now        func() time.Time
	logger     *logrus.Logger
}

// NewRetryController creates a new retry controller
func NewRetryController(db *models.Database, downloader *DownloadController, logger *logrus.Logger) *RetryController {
	return &RetryController{
		db:         db,
		downloader: downloader,
		now:        time.Now,
		logger:     logger,
	}
}

// Run sweeps the deferred downloads once. It must not run concurrently with
// itself or with release processing.
func (c *RetryController) Run(ctx context.Context) (attempted, waiting int, err error) {
	metrics.RetrySweeps.Inc()

	deferred, err := c.db.GetDeferredDownloads()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get deferred downloads: %w", err)
	}

	now := c.now()
	for _, d := range deferred {
		if now.Sub(d.LastTryAt) < RetryDelay(d.RetryCount) {
			waiting++
			continue
		}
		attempted++
		if err := c.retry(ctx, d, now); err != nil {
			return attempted, waiting, err
		}
	}

	metrics.DeferredWaiting.Set(float64(waiting))
	c.logger.WithFields(logrus.Fields{
		"attempted": attempted,
		"waiting":   waiting,
	}).Info("Deferred download sweep completed")

	return attempted, waiting, nil
}

func (c *RetryController) retry(ctx context.Context, d *models.DeferredDownload, now time.Time) error {
	log := c.logger.WithFields(logrus.Fields{
		"name":        d.Name,
		"retry_count": d.RetryCount,
	})

	event, err := d.Event()
	if err != nil {
		log.WithError(err).Error("Dropping deferred download with unreadable payload")
		metrics.DeferredRetries.WithLabelValues("dropped").Inc()
		return c.db.DeleteDeferred(d.ID)
	}

	ok, err := c.downloader.Download(ctx, event, false, d.Supplementary...)
	if err != nil {
		return err
	}
	if ok {
		log.Info("Deferred download succeeded")
		metrics.DeferredRetries.WithLabelValues("success").Inc()
		return c.db.DeleteDeferred(d.ID)
	}

	missing, err := c.db.FindMissingRelease(d.Name, d.Source)
	if err != nil {
		return fmt.Errorf("failed to look up missing release: %w", err)
	}
	if missing != nil {
		log.Info("Deferred release is missing from tracker, dropping")
		metrics.DeferredRetries.WithLabelValues("dropped").Inc()
		return c.db.DeleteDeferred(d.ID)
	}

	d.RetryCount++
	d.LastTryAt = now
	if err := c.db.UpdateDeferred(d); err != nil {
		return fmt.Errorf("failed to update deferred download: %w", err)
	}
	log.WithField("next_try", now.Add(RetryDelay(d.RetryCount))).Info("Deferred download rescheduled")
	metrics.DeferredRetries.WithLabelValues("rescheduled").Inc()
	return nil
}
