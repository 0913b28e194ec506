// Package store persists a bus controller's acquired device id across
// restarts, so a device does not have to re-run ID acquisition on every
// boot.
package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pjon-go/pjon/pkg/bus"
	"github.com/pjon-go/pjon/pkg/protocol"
)

// ErrNotFound names the condition of no identity saved yet for a given
// bus id. LoadDeviceID does not return it: it reports that case as
// found == false with a nil error.
var ErrNotFound = errors.New("store: not found")

var bucketIdentity = []byte("identity")

// BoltStore implements bus.IdentityStore on top of a local BoltDB file.
type BoltStore struct {
	db *bolt.DB
}

var _ bus.IdentityStore = (*BoltStore)(nil)

// Open opens or creates a BoltDB database at path.
func Open(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIdentity)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func identityKey(busID protocol.BusID) []byte {
	return []byte(hex.EncodeToString(busID[:]))
}

// SaveDeviceID implements bus.IdentityStore.
func (s *BoltStore) SaveDeviceID(busID protocol.BusID, id protocol.DeviceID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIdentity)
		if b == nil {
			return fmt.Errorf("store: bucket %q not found", bucketIdentity)
		}
		return b.Put(identityKey(busID), []byte{byte(id)})
	})
}

// LoadDeviceID implements bus.IdentityStore.
func (s *BoltStore) LoadDeviceID(busID protocol.BusID) (protocol.DeviceID, bool, error) {
	var id protocol.DeviceID
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIdentity)
		if b == nil {
			return nil
		}
		data := b.Get(identityKey(busID))
		if data == nil {
			return nil
		}
		id = protocol.DeviceID(data[0])
		found = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return id, found, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
