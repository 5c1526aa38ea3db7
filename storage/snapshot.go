package storage

import "github.com/tolelom/tolchain/core"

// SnapshotStore is the disk key-value persistence collaborator (spec
// §6, "out of scope... treated as a key-value snapshot store with
// save(kind, bytes) / load(kind) -> bytes?"). Records are keyed by a
// caller-chosen kind; cmd/node stores only the peer directory, under
// "peers".
type SnapshotStore struct {
	db DB
}

// NewSnapshotStore wraps db as a SnapshotStore.
func NewSnapshotStore(db DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save persists data under kind.
func (s *SnapshotStore) Save(kind string, data []byte) error {
	return s.db.Set([]byte("snapshot:"+kind), data)
}

// Load returns the bytes saved under kind, or ok=false if nothing was
// ever saved under that kind.
func (s *SnapshotStore) Load(kind string) ([]byte, bool, error) {
	data, err := s.db.Get([]byte("snapshot:" + kind))
	if err == core.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
