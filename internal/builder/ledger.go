package builder

import (
	"encoding/binary"
	"os"

	bolt "go.etcd.io/bbolt"

	"github.com/praetorian-labs/phrasematch/internal/matcherrors"
)

var dedupBucket = []byte("seen_phrase_ids")

// diskLedger is a bbolt-backed DedupLedger for phrase streams too large to
// hold their seen-id set in RAM. Keys are the 4-byte big-endian phrase id;
// values are empty — bbolt's bucket is used purely as a set.
type diskLedger struct {
	db   *bolt.DB
	path string
}

// NewDiskLedger opens (creating if absent) a bbolt database at path to back
// a build's duplicate-id dedup ledger. The caller must Close it when the
// build finishes; Close also removes the database file, since the ledger
// is build-scoped working state, not a persisted artifact.
func NewDiskLedger(path string) (DedupLedger, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, matcherrors.Wrap(matcherrors.IO, path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dedupBucket)
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, matcherrors.Wrap(matcherrors.IO, path, err)
	}
	return &diskLedger{db: db, path: path}, nil
}

func (l *diskLedger) SeenOrMark(id uint32) bool {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], id)

	var seen bool
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dedupBucket)
		if b.Get(key[:]) != nil {
			seen = true
			return nil
		}
		return b.Put(key[:], []byte{})
	})
	if err != nil {
		// bbolt write failures here (disk full, read-only fs) are treated as
		// "not a duplicate" rather than aborting the whole build; the
		// condition will resurface as an I/O error on the next artifact
		// write, which does abort the build.
		return false
	}
	return seen
}

func (l *diskLedger) Close() error {
	err := l.db.Close()
	os.Remove(l.path) //nolint:errcheck // best-effort cleanup of build-scoped scratch file
	return err
}
