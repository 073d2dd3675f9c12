package models

import "errors"

// ErrDuplicate is returned when a write would break a uniqueness constraint.
// During normal operation it means an invariant was corrupted.
var ErrDuplicate = errors.New("duplicate record")

// AdlType selects which auto-download matcher an entry belongs to
type AdlType string

const (
	AdlTypeTV      AdlType = "tv"
	AdlTypeGeneric AdlType = "generic"
)

// ParseAdlType validates a user supplied entry type
func ParseAdlType(s string) (AdlType, error) {
	switch AdlType(s) {
	case AdlTypeTV, AdlTypeGeneric:
		return AdlType(s), nil
	}
	return "", errors.New("adl type must be \"tv\" or \"generic\"")
}

// Quality is the label recorded in download history
type Quality string

// TV quality vocabulary, best first. QualitySkip marks a release that was
// deliberately not fetched; QualitySingle marks an exact-name history row.
const (
	Quality720p    Quality = "720p"
	Quality720i    Quality = "720i"
	Quality1080p   Quality = "1080p"
	Quality1080i   Quality = "1080i"
	QualityXviD    Quality = "XviD"
	QualityUnknown Quality = "unknown"

	QualitySkip   Quality = "skip"
	QualitySingle Quality = "single"
)

// HistoryEntry is a supplementary download history row recorded together with
// a successful download, e.g. a TV episode signature. Force marks a repaired
// re-release that must be fetched even when an equal or better row exists.
type HistoryEntry struct {
	Name    string  `json:"name"`
	Quality Quality `json:"quality"`
	Force   bool    `json:"force,omitempty"`
}
