// Package watcher runs the ingestion pipeline: one reader per announce log
// feeding a single ordered queue, drained by one consumer.
package watcher

import (
	"context"
	"sync"

	"github.com/amaumene/announcarr/internal/config"
	"github.com/sirupsen/logrus"
)

// Watcher owns the readers and the consumer
type Watcher struct {
	sources  []config.Source
	poll     bool
	queue    *Queue
	consumer *Consumer
	logger   *logrus.Logger

	stop     chan struct{}
	stopOnce sync.Once
	readers  sync.WaitGroup

	done        chan struct{}
	consumerErr error
}

// New creates a watcher over the given sources
func New(sources []config.Source, poll bool, queue *Queue, consumer *Consumer, logger *logrus.Logger) *Watcher {
	return &Watcher{
		sources:  sources,
		poll:     poll,
		queue:    queue,
		consumer: consumer,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches a reader per source and the consumer
func (w *Watcher) Start(ctx context.Context) {
	for _, source := range w.sources {
		r := &reader{
			source: source,
			queue:  w.queue,
			poll:   w.poll,
			logger: w.logger,
		}
		w.readers.Add(1)
		go func() {
			defer w.readers.Done()
			if err := r.run(w.stop); err != nil {
				w.logger.WithError(err).WithField("path", r.source.Path).Error("Log reader stopped")
			}
		}()
	}

	go func() {
		defer close(w.done)
		w.consumerErr = w.consumer.Run(ctx)
	}()

	w.logger.WithField("sources", len(w.sources)).Info("Watcher started")
}

// Wait blocks until the consumer exits and returns its error
func (w *Watcher) Wait() error {
	<-w.done
	return w.consumerErr
}

// Done is closed once the consumer exits
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Stop closes every source, joins the readers, then lets the consumer drain
// what was already queued and joins it
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping watcher")
		close(w.stop)
		w.readers.Wait()
		w.queue.Push(Item{Kind: ItemStop})
	})
	return w.Wait()
}

// RequestReload asks the consumer to recompile rules between items
func (w *Watcher) RequestReload() {
	w.queue.Push(Item{Kind: ItemReload})
}

// Offsets returns the processed offset of each source
func (w *Watcher) Offsets() map[string]int64 {
	return w.consumer.Offsets()
}

// QueueDepth returns the number of items waiting for the consumer
func (w *Watcher) QueueDepth() int {
	return w.queue.Len()
}
