// Package parser turns raw announce log lines into release events.
// Each tracker announce format is a Parser registered under the module tag
// of the log sources that carry it.
package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amaumene/announcarr/internal/models"
)

// Parser extracts a release event from a log line.
// It returns false when the line is not a release announcement.
type Parser interface {
	Parse(line string) (*models.Event, bool)
}

// Registry maps a source module tag to its parser
type Registry map[string]Parser

// Lookup returns the parser for a module tag
func (r Registry) Lookup(module string) (Parser, error) {
	p, ok := r[module]
	if !ok {
		return nil, fmt.Errorf("no parser registered for module %q", module)
	}
	return p, nil
}

// Constructor builds the parser of one source module
type Constructor func(source, passKey, downloadBase string) (Parser, error)

// formats maps a module tag to the announce format its logs carry
var formats = map[string]Constructor{
	"pt": func(source, passKey, downloadBase string) (Parser, error) {
		return NewPolishTracker(source, passKey, downloadBase)
	},
}

// Register adds a parser for module to the registry
func (r Registry) Register(module, passKey, downloadBase string) error {
	build, ok := formats[module]
	if !ok {
		return fmt.Errorf("unknown announce format for module %q", module)
	}
	p, err := build(module, passKey, downloadBase)
	if err != nil {
		return err
	}
	r[module] = p
	return nil
}

var (
	numericTimeRegex = regexp.MustCompile(`^[0-9]+$`)
	dmyTimeRegex     = regexp.MustCompile(`^(\d+)/(\d+)/(\d+) (\d+):(\d+):(\d+)`)
	clockOnlyRegex   = regexp.MustCompile(`^(\d\d):(\d\d)`)
)

// numericLayouts are the accepted word-format timestamps by length
var numericLayouts = map[int]string{
	14: "20060102150405",
	12: "200601021504",
	8:  "20060102",
}

// ParseAnnounceTime interprets the timestamp prefix of a log line:
//   - all digits: a word-format timestamp (YYYYMMDD[hhmm[ss]])
//   - D/M/Y H:M:S: rearranged to year, month, day order
//   - HH:MM only: a partial log line, yields now
func ParseAnnounceTime(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)

	if numericTimeRegex.MatchString(s) {
		layout, ok := numericLayouts[len(s)]
		if !ok {
			return time.Time{}, false
		}
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}

	if m := dmyTimeRegex.FindStringSubmatch(s); m != nil {
		fields := make([]int, 0, 6)
		for _, idx := range []int{3, 2, 1, 4, 5, 6} {
			n, err := strconv.Atoi(m[idx])
			if err != nil {
				return time.Time{}, false
			}
			fields = append(fields, n)
		}
		if fields[0] < 100 {
			fields[0] += 2000
		}
		stamp := fmt.Sprintf("%04d%02d%02d%02d%02d%02d", fields[0], fields[1], fields[2], fields[3], fields[4], fields[5])
		t, err := time.ParseInLocation("20060102150405", stamp, time.Local)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}

	if clockOnlyRegex.MatchString(s) {
		return now, true
	}

	return time.Time{}, false
}

var sizeRegex = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*(\S*)$`)

// ParseSize normalizes a human size string to bytes.
// TB, GB and MB are binary multiples; kB is matched case-insensitively;
// any other suffix leaves the numeric value as is.
func ParseSize(s string) (int64, bool) {
	m := sizeRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}

	multiplier := 1.0
	switch unit := m[2]; {
	case unit == "TB":
		multiplier = 1 << 40
	case unit == "GB":
		multiplier = 1 << 30
	case unit == "MB":
		multiplier = 1 << 20
	case strings.EqualFold(unit, "kB"):
		multiplier = 1 << 10
	}

	return int64(math.Round(value * multiplier)), true
}
