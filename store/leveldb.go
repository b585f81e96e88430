package store

import (
	"context"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/patriciaforestry/mpf"
)

// LevelDB is a disk-backed mpf.Store wrapping a single goleveldb
// database handle. It mirrors database/mpt's own LevelDB-backed state
// store: a thin adapter that translates Hash keys to raw bytes and
// reports leveldb.ErrNotFound as the Store contract's "not found"
// return rather than as an error.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if absent) a LevelDB database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Close releases the underlying database handle.
func (l *LevelDB) Close() error { return l.db.Close() }

func (l *LevelDB) Get(_ context.Context, key mpf.Hash) ([]byte, bool, error) {
	v, err := l.db.Get(keyBytes(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (l *LevelDB) Put(_ context.Context, key mpf.Hash, value []byte) error {
	return l.db.Put(keyBytes(key), value, nil)
}

func (l *LevelDB) Delete(_ context.Context, key mpf.Hash) error {
	return l.db.Delete(keyBytes(key), nil)
}

func (l *LevelDB) Exists(_ context.Context, key mpf.Hash) (bool, error) {
	return l.db.Has(keyBytes(key), nil)
}

func (l *LevelDB) Batch(_ context.Context, ops []mpf.Op) error {
	batch := new(leveldb.Batch)
	for _, op := range ops {
		if op.Tombstone {
			batch.Delete(keyBytes(op.Key))
			continue
		}
		batch.Put(keyBytes(op.Key), op.Value)
	}
	return l.db.Write(batch, nil)
}

var _ mpf.Store = (*LevelDB)(nil)
