package leveldb

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/Conflux-Chain/confura-pending-cache/types"
	"github.com/ethereum/go-ethereum/common"
)

const (
	prefixTrace   = "t2r" // trace id -> trace record
	prefixActions = "t2a" // trace id -> classified actions
	prefixExpiry  = "exp" // ttl class + anchor + trace id -> nil (ordered expiry index)
)

// KeyPool is used to pool LevelDB database keys for memory saving.
type KeyPool struct {
	sync.Pool

	prefixLen int
}

// NewKeyPool creates a new key pool with given prefix and key size.
func NewKeyPool(prefix string, size int) *KeyPool {
	var pool KeyPool

	pool.New = func() any {
		buf := make([]byte, len(prefix)+size)
		copy(buf, []byte(prefix))
		return &buf
	}

	pool.prefixLen = len(prefix)

	return &pool
}

// Get returns a pooled or newly created database key for the given id.
//
// The returned key is of pointer type and requires a Put call to return
// it to the pool once the database operation completed.
func (pool *KeyPool) Get(id common.Hash) *[]byte {
	buf := pool.Pool.Get().(*[]byte)
	copy((*buf)[pool.prefixLen:], id[:])
	return buf
}

// Put returns a pooled database key to the pool.
func (pool *KeyPool) Put(key *[]byte) {
	pool.Pool.Put(key)
}

// expiryKey builds an ordered expiry index key. Keys of the same TTL class
// sort by anchor timestamp, so an expiry scan is a single range iteration
// terminated at the class threshold.
func expiryKey(class types.TTLClass, anchor time.Time, id common.Hash) []byte {
	key := make([]byte, len(prefixExpiry)+1+8+common.HashLength)
	copy(key, []byte(prefixExpiry))
	key[len(prefixExpiry)] = byte(class)
	binary.BigEndian.PutUint64(key[len(prefixExpiry)+1:], uint64(anchor.UnixNano()))
	copy(key[len(prefixExpiry)+9:], id[:])
	return key
}

// expiryRange returns the key range covering all expiry index entries of the
// given class with an anchor at or before the threshold.
func expiryRange(class types.TTLClass, threshold time.Time) (start, limit []byte) {
	start = make([]byte, len(prefixExpiry)+1)
	copy(start, []byte(prefixExpiry))
	start[len(prefixExpiry)] = byte(class)

	limit = make([]byte, len(prefixExpiry)+1+8)
	copy(limit, start)
	binary.BigEndian.PutUint64(limit[len(prefixExpiry)+1:], uint64(threshold.UnixNano())+1)
	return
}

// expiryEntryID extracts the trace id from an expiry index key.
func expiryEntryID(key []byte) common.Hash {
	return common.BytesToHash(key[len(prefixExpiry)+9:])
}
