package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/amaumene/announcarr/internal/controllers"
	"github.com/amaumene/announcarr/internal/metrics"
	"github.com/amaumene/announcarr/internal/models"
	"github.com/amaumene/announcarr/internal/parser"
	"github.com/sirupsen/logrus"
)

// Consumer drains the queue on a single goroutine. It is the only writer of
// release, history and deferred state while the pipeline runs.
type Consumer struct {
	queue    *Queue
	parsers  parser.Registry
	gate     *controllers.ReleaseGate
	matchers []controllers.Matcher
	retry    *controllers.RetryController

	retryInterval time.Duration
	idleWarning   time.Duration

	mu      sync.Mutex
	offsets map[string]int64

	logger *logrus.Logger
}

// NewConsumer creates a new consumer
func NewConsumer(queue *Queue, parsers parser.Registry, gate *controllers.ReleaseGate, matchers []controllers.Matcher, retry *controllers.RetryController, retryInterval, idleWarning time.Duration, logger *logrus.Logger) *Consumer {
	return &Consumer{
		queue:         queue,
		parsers:       parsers,
		gate:          gate,
		matchers:      matchers,
		retry:         retry,
		retryInterval: retryInterval,
		idleWarning:   idleWarning,
		offsets:       make(map[string]int64),
		logger:        logger,
	}
}

// Run processes items until a stop item arrives or ctx is cancelled. The
// deferred sweep runs first and then every retryInterval, always between
// items. Only store integrity errors are returned.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Consumer started")

	sweep := time.NewTimer(0)
	defer sweep.Stop()

	var idleC <-chan time.Time
	var idle *time.Timer
	if c.idleWarning > 0 {
		idle = time.NewTimer(c.idleWarning)
		defer idle.Stop()
		idleC = idle.C
	}

	runSweep := func() error {
		err := c.sweep(ctx)
		sweep.Reset(c.retryInterval)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-sweep.C:
			if err := runSweep(); err != nil {
				return err
			}

		case <-idleC:
			c.logger.WithField("idle", c.idleWarning).Warn("No announce lines received recently")
			idle.Reset(c.idleWarning)

		case <-c.queue.Notify():
			for {
				item, ok := c.queue.Pop()
				if !ok {
					break
				}
				if item.Kind == ItemStop {
					c.logger.Info("Consumer shutting down")
					return nil
				}
				if err := c.Handle(ctx, item); err != nil {
					return err
				}
				if idle != nil && item.Kind == ItemLine {
					if !idle.Stop() {
						select {
						case <-idle.C:
						default:
						}
					}
					idle.Reset(c.idleWarning)
				}

				select {
				case <-sweep.C:
					if err := runSweep(); err != nil {
						return err
					}
				default:
				}
			}
		}
	}
}

// Handle processes one queue item. Errors from a single item are logged and
// swallowed unless they signal a broken store invariant.
func (c *Consumer) Handle(ctx context.Context, item Item) error {
	var err error
	switch item.Kind {
	case ItemLine:
		err = c.handleLine(ctx, item)
		c.mu.Lock()
		c.offsets[item.Path] = item.Offset
		c.mu.Unlock()
	case ItemReload:
		err = c.Reload()
	}
	return c.contain(err, item)
}

func (c *Consumer) handleLine(ctx context.Context, item Item) error {
	p, err := c.parsers.Lookup(item.Module)
	if err != nil {
		return err
	}

	event, ok := p.Parse(item.Line)
	if !ok {
		return nil
	}
	metrics.EventsParsed.WithLabelValues(item.Module).Inc()

	forward, err := c.gate.Classify(event)
	if err != nil || !forward {
		return err
	}

	for _, matcher := range c.matchers {
		if err := matcher.Consume(ctx, event); err != nil {
			if errors.Is(err, models.ErrDuplicate) {
				return err
			}
			metrics.ItemErrors.Inc()
			c.logger.WithError(err).WithFields(logrus.Fields{
				"matcher": matcher.Name(),
				"name":    event.Name,
			}).Error("Auto-download failed")
		}
	}
	return nil
}

// Reload recompiles the filter rules and every matcher
func (c *Consumer) Reload() error {
	if err := c.gate.Reload(); err != nil {
		return err
	}
	for _, matcher := range c.matchers {
		if err := matcher.Reload(); err != nil {
			return err
		}
	}
	c.logger.Info("Rules reloaded")
	return nil
}

func (c *Consumer) sweep(ctx context.Context) error {
	if c.retry == nil {
		return nil
	}
	_, _, err := c.retry.Run(ctx)
	return c.contain(err, Item{})
}

func (c *Consumer) contain(err error, item Item) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrDuplicate) {
		c.logger.WithError(err).Error("Store integrity violated")
		return err
	}
	metrics.ItemErrors.Inc()
	c.logger.WithError(err).WithFields(logrus.Fields{
		"path":   item.Path,
		"offset": item.Offset,
	}).Error("Failed to process item")
	return nil
}

// Offsets returns the offset just past the last processed line of each source
func (c *Consumer) Offsets() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	offsets := make(map[string]int64, len(c.offsets))
	for path, offset := range c.offsets {
		offsets[path] = offset
	}
	return offsets
}
