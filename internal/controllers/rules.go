package controllers

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// compileAlternation joins patterns into one anchored alternation
// ^((p1)|(p2)...)  with a trailing $ when anchorEnd is set. Each pattern is
// passed through wrap first. Patterns that do not compile on their own are
// skipped with a warning. Returns nil when nothing is left, which callers
// treat as "matches nothing".
func compileAlternation(patterns []string, wrap func(string) string, anchorEnd bool, logger *logrus.Logger) *regexp.Regexp {
	var parts []string
	for _, pattern := range patterns {
		if _, err := regexp.Compile(pattern); err != nil {
			logger.WithError(err).WithField("pattern", pattern).Warn("Skipping invalid rule")
			continue
		}
		if wrap != nil {
			pattern = wrap(pattern)
		}
		parts = append(parts, pattern)
	}

	if len(parts) == 0 {
		return nil
	}

	expr := "^((" + strings.Join(parts, ")|(") + "))"
	if anchorEnd {
		expr += "$"
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		// every part compiled alone, so only wrapping can break it
		logger.WithError(err).Error("Failed to compile combined rule set")
		return nil
	}
	return re
}
