package models

import "time"

// Release is a live (not archived) release, unique on (Name, Source)
type Release struct {
	ID     uint64 `boltholdKey:"ID"`
	Name   string `boltholdIndex:"Name"`
	Source string

	Payload string // serialized Event

	AddedAt   time.Time
	UpdatedAt time.Time
}

// URL returns the download URL of the stored event
func (r *Release) URL() string { return payloadURL(r.Payload) }

// ArchivedRelease is the terminal record for releases excluded by filters.
// Shares the (Name, Source) uniqueness with Release.
type ArchivedRelease struct {
	ID     uint64 `boltholdKey:"ID"`
	Name   string `boltholdIndex:"Name"`
	Source string

	Payload string

	AddedAt    time.Time
	ArchivedAt time.Time
	UpdatedAt  time.Time
}

// URL returns the download URL of the stored event
func (r *ArchivedRelease) URL() string { return payloadURL(r.Payload) }

// MissingRelease marks a release whose fetch failed permanently
type MissingRelease struct {
	ID     uint64 `boltholdKey:"ID"`
	Name   string `boltholdIndex:"Name"`
	Source string
	Log    string

	CreatedAt time.Time
}

// DownloadHistory marks a release name, or a TV episode signature, as
// fetched or skipped. Unique on Name.
type DownloadHistory struct {
	ID      uint64 `boltholdKey:"ID"`
	Name    string `boltholdIndex:"Name"`
	Quality Quality

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeferredDownload is a transiently failed download waiting for a retry.
// Unique on URL while pending.
type DeferredDownload struct {
	ID     uint64 `boltholdKey:"ID"`
	URL    string `boltholdIndex:"URL"`
	Name   string
	Source string

	Payload       string
	Supplementary []HistoryEntry // recorded alongside the release on success
	Log           string

	RetryCount int
	LastTryAt  time.Time
	CreatedAt  time.Time
}

// Event decodes the deferred event
func (d *DeferredDownload) Event() (*Event, error) { return DecodeEvent(d.Payload) }

// FilterRule is a user-authored release name pattern used for auto-archiving
type FilterRule struct {
	ID      uint64 `boltholdKey:"ID"`
	Pattern string

	CreatedAt time.Time
}

// AdlEntry is a user-authored auto-download pattern fragment
type AdlEntry struct {
	ID      uint64  `boltholdKey:"ID"`
	Type    AdlType `boltholdIndex:"Type"`
	Pattern string

	CreatedAt time.Time
}
