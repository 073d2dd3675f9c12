package controllers

import (
	"fmt"
	"regexp"
	"time"

	"github.com/amaumene/announcarr/internal/metrics"
	"github.com/amaumene/announcarr/internal/models"
	"github.com/sirupsen/logrus"
)

// excludedCategory is always archived regardless of filter rules
const excludedCategory = "XXX"

// Decision is the release gate classification of an event
type Decision string

const (
	DecisionArchivedDuplicate Decision = "archived_duplicate"
	DecisionArchivedUpdated   Decision = "archived_updated"
	DecisionLiveDuplicate     Decision = "live_duplicate"
	DecisionLiveUpdated       Decision = "live_updated"
	DecisionAutoArchived      Decision = "auto_archived"
	DecisionNew               Decision = "new"
)

// ReleaseGate deduplicates and archives events against the release history
// and decides which events reach the auto-download matchers
type ReleaseGate struct {
	db     *models.Database
	filter *regexp.Regexp
	logger *logrus.Logger
}

// NewReleaseGate creates a new release gate and compiles its filter rules
func NewReleaseGate(db *models.Database, logger *logrus.Logger) (*ReleaseGate, error) {
	g := &ReleaseGate{
		db:     db,
		logger: logger,
	}
	if err := g.Reload(); err != nil {
		return nil, err
	}
	return g, nil
}

// Reload recompiles the filter rules into one pattern
func (g *ReleaseGate) Reload() error {
	rules, err := g.db.GetFilterRules()
	if err != nil {
		return fmt.Errorf("failed to load filter rules: %w", err)
	}

	patterns := make([]string, 0, len(rules))
	for _, rule := range rules {
		patterns = append(patterns, rule.Pattern)
	}
	g.filter = compileAlternation(patterns, nil, true, g.logger)

	g.logger.WithField("rules", len(patterns)).Info("Release filter compiled")
	return nil
}

func (g *ReleaseGate) filtered(event *models.Event) bool {
	if event.Category == excludedCategory {
		return true
	}
	return g.filter != nil && g.filter.MatchString(event.Name)
}

// Classify records the event and reports whether it should be forwarded to
// the matchers. Replaying an unchanged event mutates nothing.
func (g *ReleaseGate) Classify(event *models.Event) (bool, error) {
	decision, forward, err := g.classify(event)
	if err != nil {
		return false, err
	}

	metrics.GateDecisions.WithLabelValues(string(decision)).Inc()
	g.logger.WithFields(logrus.Fields{
		"name":     event.Name,
		"source":   event.Source,
		"decision": decision,
		"forward":  forward,
	}).Debug("Release classified")

	return forward, nil
}

func (g *ReleaseGate) classify(event *models.Event) (Decision, bool, error) {
	payload, err := event.Payload()
	if err != nil {
		return "", false, err
	}

	archived, err := g.db.FindArchivedRelease(event.Name, event.Source)
	if err != nil {
		return "", false, fmt.Errorf("failed to look up archived release: %w", err)
	}
	if archived != nil {
		if archived.URL() == event.URL {
			return DecisionArchivedDuplicate, false, nil
		}
		archived.Payload = payload
		if err := g.db.UpdateArchivedRelease(archived); err != nil {
			return "", false, fmt.Errorf("failed to update archived release: %w", err)
		}
		if err := g.db.DeleteMissingReleases(event.Name, event.Source); err != nil {
			return "", false, fmt.Errorf("failed to clear missing release: %w", err)
		}
		g.logger.WithField("name", event.Name).Info("Archived release URL updated")
		return DecisionArchivedUpdated, false, nil
	}

	live, err := g.db.FindRelease(event.Name, event.Source)
	if err != nil {
		return "", false, fmt.Errorf("failed to look up release: %w", err)
	}
	if live != nil {
		decision := DecisionLiveDuplicate
		if live.URL() != event.URL {
			live.Payload = payload
			if err := g.db.UpdateRelease(live); err != nil {
				return "", false, fmt.Errorf("failed to update release: %w", err)
			}
			if err := g.db.DeleteMissingReleases(event.Name, event.Source); err != nil {
				return "", false, fmt.Errorf("failed to clear missing release: %w", err)
			}
			g.logger.WithField("name", event.Name).Info("Release URL updated")
			decision = DecisionLiveUpdated
		}

		missing, err := g.db.FindMissingRelease(event.Name, event.Source)
		if err != nil {
			return "", false, fmt.Errorf("failed to look up missing release: %w", err)
		}
		return decision, missing == nil, nil
	}

	now := time.Now()
	if g.filtered(event) {
		if err := g.db.CreateArchivedRelease(&models.ArchivedRelease{
			Name:       event.Name,
			Source:     event.Source,
			Payload:    payload,
			AddedAt:    event.AnnouncedAt,
			ArchivedAt: now,
		}); err != nil {
			return "", false, fmt.Errorf("failed to archive release: %w", err)
		}
		g.logger.WithField("name", event.Name).Info("Release auto-archived")
		return DecisionAutoArchived, false, nil
	}

	if err := g.db.CreateRelease(&models.Release{
		Name:    event.Name,
		Source:  event.Source,
		Payload: payload,
		AddedAt: event.AnnouncedAt,
	}); err != nil {
		return "", false, fmt.Errorf("failed to store release: %w", err)
	}
	g.logger.WithFields(logrus.Fields{
		"name":     event.Name,
		"category": event.Category,
	}).Info("New release")
	return DecisionNew, true, nil
}
