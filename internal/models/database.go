package models

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
}

// recordTypes lists every record kind held by the store, in provisioning order
var recordTypes = []interface{}{
	&Release{},
	&ArchivedRelease{},
	&MissingRelease{},
	&DownloadHistory{},
	&DeferredDownload{},
	&FilterRule{},
	&AdlEntry{},
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Encoder: json.Marshal,
		Decoder: json.Unmarshal,
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Ping checks that the store answers a read transaction
func (db *Database) Ping() error {
	return db.store.Bolt().View(func(tx *bbolt.Tx) error { return nil })
}

// Provision creates the bucket of every record kind and rebuilds its indexes.
// Safe to run on an existing database.
func (db *Database) Provision() error {
	err := db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		for _, record := range recordTypes {
			name := reflect.TypeOf(record).Elem().Name()
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, record := range recordTypes {
		if err := db.store.ReIndex(record, nil); err != nil {
			return fmt.Errorf("failed to reindex %T: %w", record, err)
		}
	}
	return nil
}

func releaseKey(name, source string) *bolthold.Query {
	return bolthold.Where("Name").Eq(name).And("Source").Eq(source)
}

// ensureReleaseKeyFree enforces (name, source) uniqueness across live and
// archived releases inside a write transaction.
func (db *Database) ensureReleaseKeyFree(tx *bbolt.Tx, name, source string) error {
	var live []Release
	if err := db.store.TxFind(tx, &live, releaseKey(name, source)); err != nil {
		return err
	}
	var archived []ArchivedRelease
	if err := db.store.TxFind(tx, &archived, releaseKey(name, source)); err != nil {
		return err
	}
	if len(live) > 0 || len(archived) > 0 {
		return fmt.Errorf("%w: release %s/%s", ErrDuplicate, source, name)
	}
	return nil
}

// Release operations

// FindRelease returns the live release for (name, source), or nil
func (db *Database) FindRelease(name, source string) (*Release, error) {
	var releases []*Release
	if err := db.store.Find(&releases, releaseKey(name, source)); err != nil {
		return nil, err
	}
	if len(releases) == 0 {
		return nil, nil
	}
	return releases[0], nil
}

// CreateRelease stores a new live release
func (db *Database) CreateRelease(release *Release) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		if err := db.ensureReleaseKeyFree(tx, release.Name, release.Source); err != nil {
			return err
		}
		release.UpdatedAt = time.Now()
		return db.store.TxInsert(tx, bolthold.NextSequence(), release)
	})
}

// UpdateRelease updates an existing live release
func (db *Database) UpdateRelease(release *Release) error {
	release.UpdatedAt = time.Now()
	return db.store.Update(release.ID, release)
}

// FindArchivedRelease returns the archived release for (name, source), or nil
func (db *Database) FindArchivedRelease(name, source string) (*ArchivedRelease, error) {
	var releases []*ArchivedRelease
	if err := db.store.Find(&releases, releaseKey(name, source)); err != nil {
		return nil, err
	}
	if len(releases) == 0 {
		return nil, nil
	}
	return releases[0], nil
}

// CreateArchivedRelease stores a new archived release
func (db *Database) CreateArchivedRelease(release *ArchivedRelease) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		if err := db.ensureReleaseKeyFree(tx, release.Name, release.Source); err != nil {
			return err
		}
		release.UpdatedAt = time.Now()
		return db.store.TxInsert(tx, bolthold.NextSequence(), release)
	})
}

// UpdateArchivedRelease updates an existing archived release
func (db *Database) UpdateArchivedRelease(release *ArchivedRelease) error {
	release.UpdatedAt = time.Now()
	return db.store.Update(release.ID, release)
}

// Missing release operations

// FindMissingRelease returns the missing marker for (name, source), or nil
func (db *Database) FindMissingRelease(name, source string) (*MissingRelease, error) {
	var missing []*MissingRelease
	if err := db.store.Find(&missing, releaseKey(name, source)); err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		return nil, nil
	}
	return missing[0], nil
}

// CreateMissingRelease records a permanent fetch failure
func (db *Database) CreateMissingRelease(missing *MissingRelease) error {
	missing.CreatedAt = time.Now()
	return db.store.Insert(bolthold.NextSequence(), missing)
}

// DeleteMissingReleases removes every missing marker for (name, source)
func (db *Database) DeleteMissingReleases(name, source string) error {
	return db.store.DeleteMatching(&MissingRelease{}, releaseKey(name, source))
}

// Download history operations

// FindHistory returns the history row for name, or nil
func (db *Database) FindHistory(name string) (*DownloadHistory, error) {
	var rows []*DownloadHistory
	if err := db.store.Find(&rows, bolthold.Where("Name").Eq(name)); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// CreateHistory inserts a history row; an existing row for name is an integrity error
func (db *Database) CreateHistory(name string, quality Quality) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var rows []DownloadHistory
		if err := db.store.TxFind(tx, &rows, bolthold.Where("Name").Eq(name)); err != nil {
			return err
		}
		if len(rows) > 0 {
			return fmt.Errorf("%w: download history %s", ErrDuplicate, name)
		}
		now := time.Now()
		return db.store.TxInsert(tx, bolthold.NextSequence(), &DownloadHistory{
			Name:      name,
			Quality:   quality,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
}

// SaveHistory inserts a history row or updates the quality of the existing one
func (db *Database) SaveHistory(name string, quality Quality) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var rows []*DownloadHistory
		if err := db.store.TxFind(tx, &rows, bolthold.Where("Name").Eq(name)); err != nil {
			return err
		}
		now := time.Now()
		if len(rows) > 0 {
			row := rows[0]
			row.Quality = quality
			row.UpdatedAt = now
			return db.store.TxUpdate(tx, row.ID, row)
		}
		return db.store.TxInsert(tx, bolthold.NextSequence(), &DownloadHistory{
			Name:      name,
			Quality:   quality,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
}

// Deferred download operations

// FindDeferredByURL returns the pending deferred download for url, or nil
func (db *Database) FindDeferredByURL(url string) (*DeferredDownload, error) {
	var deferred []*DeferredDownload
	if err := db.store.Find(&deferred, bolthold.Where("URL").Eq(url)); err != nil {
		return nil, err
	}
	if len(deferred) == 0 {
		return nil, nil
	}
	return deferred[0], nil
}

// CreateDeferred queues a deferred download; a pending entry for the same URL
// is an integrity error.
func (db *Database) CreateDeferred(deferred *DeferredDownload) error {
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var existing []DeferredDownload
		if err := db.store.TxFind(tx, &existing, bolthold.Where("URL").Eq(deferred.URL)); err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: deferred download %s", ErrDuplicate, deferred.URL)
		}
		now := time.Now()
		deferred.CreatedAt = now
		if deferred.LastTryAt.IsZero() {
			deferred.LastTryAt = now
		}
		return db.store.TxInsert(tx, bolthold.NextSequence(), deferred)
	})
}

// UpdateDeferred persists retry bookkeeping of a deferred download
func (db *Database) UpdateDeferred(deferred *DeferredDownload) error {
	return db.store.Update(deferred.ID, deferred)
}

// DeleteDeferred removes a deferred download by ID
func (db *Database) DeleteDeferred(id uint64) error {
	return db.store.Delete(id, &DeferredDownload{})
}

// GetDeferredDownloads returns all pending deferred downloads, oldest first
func (db *Database) GetDeferredDownloads() ([]*DeferredDownload, error) {
	var deferred []*DeferredDownload
	if err := db.store.Find(&deferred, nil); err != nil {
		return nil, err
	}
	sort.Slice(deferred, func(i, j int) bool {
		return deferred[i].ID < deferred[j].ID
	})
	return deferred, nil
}

// Rule operations

// GetFilterRules returns all filter rules
func (db *Database) GetFilterRules() ([]*FilterRule, error) {
	var rules []*FilterRule
	err := db.store.Find(&rules, nil)
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, err
}

// CreateFilterRule stores a new filter rule
func (db *Database) CreateFilterRule(pattern string) error {
	return db.store.Insert(bolthold.NextSequence(), &FilterRule{
		Pattern:   pattern,
		CreatedAt: time.Now(),
	})
}

// GetAdlEntries returns all auto-download entries of the given type
func (db *Database) GetAdlEntries(adlType AdlType) ([]*AdlEntry, error) {
	var entries []*AdlEntry
	err := db.store.Find(&entries, bolthold.Where("Type").Eq(adlType))
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, err
}

// CreateAdlEntry stores a new auto-download entry
func (db *Database) CreateAdlEntry(adlType AdlType, pattern string) error {
	return db.store.Insert(bolthold.NextSequence(), &AdlEntry{
		Type:      adlType,
		Pattern:   pattern,
		CreatedAt: time.Now(),
	})
}

// Stats holds record counts per kind
type Stats struct {
	Releases         int `json:"releases"`
	ArchivedReleases int `json:"archived_releases"`
	MissingReleases  int `json:"missing_releases"`
	DownloadHistory  int `json:"download_history"`
	Deferred         int `json:"deferred_downloads"`
	FilterRules      int `json:"filter_rules"`
	AdlEntries       int `json:"adl_entries"`
}

// GetStats counts the records of every kind
func (db *Database) GetStats() (*Stats, error) {
	stats := &Stats{}
	targets := []struct {
		record interface{}
		count  *int
	}{
		{&Release{}, &stats.Releases},
		{&ArchivedRelease{}, &stats.ArchivedReleases},
		{&MissingRelease{}, &stats.MissingReleases},
		{&DownloadHistory{}, &stats.DownloadHistory},
		{&DeferredDownload{}, &stats.Deferred},
		{&FilterRule{}, &stats.FilterRules},
		{&AdlEntry{}, &stats.AdlEntries},
	}
	for _, target := range targets {
		n, err := db.store.Count(target.record, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to count %T: %w", target.record, err)
		}
		*target.count = int(n)
	}
	return stats, nil
}
