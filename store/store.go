// Package store provides concrete mpf.Store implementations: an
// in-memory map for tests and small datasets, and a LevelDB-backed
// store for anything persisted to disk. Both depend only on mpf's Hash
// type and Store/Op interfaces, the "accept interfaces, return structs"
// direction that keeps this package free of an import cycle back into
// mpf.
package store

import "github.com/patriciaforestry/mpf"

// keyBytes is the on-disk representation of an mpf.Hash: the raw 32
// bytes, used as a LevelDB key directly. Memory keys its map by the
// mpf.Hash value itself.
func keyBytes(h mpf.Hash) []byte {
	b := make([]byte, 32)
	copy(b, h.Bytes())
	return b
}
