package watcher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/amaumene/announcarr/internal/config"
	"github.com/amaumene/announcarr/internal/metrics"
	"github.com/nxadm/tail"
	"github.com/sirupsen/logrus"
)

// reader replays one log source from its offset, then follows appends
type reader struct {
	source config.Source
	queue  *Queue
	poll   bool
	logger *logrus.Logger
}

func (r *reader) run(stop <-chan struct{}) error {
	offset, err := r.backlog(stop)
	if err != nil {
		return err
	}
	select {
	case <-stop:
		return nil
	default:
	}
	return r.follow(offset, stop)
}

func (r *reader) push(line string, offset int64, phase string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	r.queue.Push(Item{
		Kind:   ItemLine,
		Path:   r.source.Path,
		Module: r.source.Module,
		Line:   line,
		Offset: offset,
	})
	metrics.LinesRead.WithLabelValues(r.source.Module, phase).Inc()
}

// backlog pushes every complete line from the recorded offset to the current
// end of file and returns the offset just past the last complete line
func (r *reader) backlog(stop <-chan struct{}) (int64, error) {
	log := r.logger.WithField("path", r.source.Path)

	f, err := os.Open(r.source.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to open log %s: %w", r.source.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat log %s: %w", r.source.Path, err)
	}

	offset := r.source.Offset
	if offset < 0 || offset > info.Size() {
		log.WithFields(logrus.Fields{
			"offset": offset,
			"size":   info.Size(),
		}).Warn("Log is shorter than the recorded offset, reading from the start")
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek log %s: %w", r.source.Path, err)
	}

	log.WithField("offset", offset).Info("Reading backlog")

	lines := 0
	br := bufio.NewReader(f)
	for {
		select {
		case <-stop:
			return offset, nil
		default:
		}

		line, err := br.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// a partial trailing line is left for the live phase
			break
		}
		if err != nil {
			return offset, fmt.Errorf("failed to read log %s: %w", r.source.Path, err)
		}
		offset += int64(len(line))
		r.push(line, offset, "backlog")
		lines++
	}

	log.WithFields(logrus.Fields{
		"lines":  lines,
		"offset": offset,
	}).Info("Backlog read")
	return offset, nil
}

// follow tails appends from offset until stop is closed
func (r *reader) follow(offset int64, stop <-chan struct{}) error {
	t, err := tail.TailFile(r.source.Path, tail.Config{
		Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
		ReOpen:    true,
		Follow:    true,
		MustExist: true,
		Poll:      r.poll,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail log %s: %w", r.source.Path, err)
	}
	defer t.Cleanup()

	r.logger.WithFields(logrus.Fields{
		"path":   r.source.Path,
		"offset": offset,
	}).Info("Following log")

	for {
		select {
		case <-stop:
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				r.logger.WithError(line.Err).WithField("path", r.source.Path).Warn("Tail reported an error")
				continue
			}
			offset += int64(len(line.Text)) + 1
			r.push(line.Text, offset, "live")
		}
	}
}
