package client

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"
)

const journalPrefix = "/uploads"

// JournalEntry remembers which server session a source was being sent to
type JournalEntry struct {
	Fingerprint string    `json:"fingerprint"`
	UploadID    string    `json:"upload_id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ChunkSize   int64     `json:"chunk_size"`
	StartedAt   time.Time `json:"started_at"`
}

// Journal persists in-progress uploads so a restarted client can resume them
type Journal struct {
	store *dslvl.Datastore
}

// OpenJournal opens or creates the LevelDB journal under dir
func OpenJournal(dir string) (*Journal, error) {
	store, err := dslvl.NewDatastore(filepath.Join(dir, "uploads"), nil)
	if err != nil {
		return nil, err
	}
	return &Journal{store: store}, nil
}

func journalKey(fingerprint string) ds.Key {
	return ds.NewKey(journalPrefix).ChildString(fingerprint)
}

// Lookup returns the entry for fingerprint, or nil when none is recorded
func (j *Journal) Lookup(ctx context.Context, fingerprint string) (*JournalEntry, error) {
	b, err := j.store.Get(ctx, journalKey(fingerprint))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry JournalEntry
	if err := json.Unmarshal(b, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Record stores entry under its fingerprint
func (j *Journal) Record(ctx context.Context, entry *JournalEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return j.store.Put(ctx, journalKey(entry.Fingerprint), b)
}

// Forget drops the entry for fingerprint. Missing entries are not an error.
func (j *Journal) Forget(ctx context.Context, fingerprint string) error {
	err := j.store.Delete(ctx, journalKey(fingerprint))
	if errors.Is(err, ds.ErrNotFound) {
		return nil
	}
	return err
}

// All lists every recorded entry
func (j *Journal) All(ctx context.Context) ([]*JournalEntry, error) {
	res, err := j.store.Query(ctx, dsq.Query{Prefix: journalPrefix})
	if err != nil {
		return nil, err
	}
	defer res.Close()

	entries := make([]*JournalEntry, 0)
	for r := range res.Next() {
		if r.Error != nil {
			return entries, r.Error
		}
		var entry JournalEntry
		if err := json.Unmarshal(r.Value, &entry); err != nil {
			return entries, err
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// Close releases the underlying database
func (j *Journal) Close() error {
	return j.store.Close()
}
