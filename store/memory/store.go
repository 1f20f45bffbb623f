package memory

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Conflux-Chain/confura-pending-cache/store"
	"github.com/Conflux-Chain/confura-pending-cache/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mcuadros/go-defaults"
	"github.com/pkg/errors"
)

var _ store.Store = (*Store)(nil)

// Config holds the configurations for the in-memory trace store.
type Config struct {
	// Shards is the number of lock shards, must be a power of two.
	Shards int `default:"64"`
}

func DefaultConfig() (config Config) {
	defaults.SetDefaults(&config)
	return
}

// shard holds a slice of the id space under one lock. A trace and its
// actions always live in the same shard, so eviction of both is atomic
// with respect to readers.
type shard struct {
	mu      sync.RWMutex
	traces  map[common.Hash]types.Trace
	actions map[common.Hash][]types.Action
}

// Store is a sharded in-memory trace cache. Per-shard locking keeps
// emulation and classification throughput independent of each other.
type Store struct {
	shards  []*shard
	mask    uint32
	entries atomic.Int64
	metrics Metrics
}

func NewStore(config Config) (*Store, error) {
	if config.Shards <= 0 || config.Shards&(config.Shards-1) != 0 {
		return nil, errors.Errorf("shard count must be a positive power of two, got %v", config.Shards)
	}

	shards := make([]*shard, config.Shards)
	for i := range shards {
		shards[i] = &shard{
			traces:  make(map[common.Hash]types.Trace),
			actions: make(map[common.Hash][]types.Action),
		}
	}

	return &Store{
		shards: shards,
		mask:   uint32(config.Shards - 1),
	}, nil
}

func MustNewStore(config Config) *Store {
	s, err := NewStore(config)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Store) shardFor(id common.Hash) *shard {
	return s.shards[binary.BigEndian.Uint32(id[:4])&s.mask]
}

// Put implements the store.Store interface.
func (s *Store) Put(trace types.Trace) error {
	sh := s.shardFor(trace.ID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if prev, ok := sh.traces[trace.ID]; ok {
		// the completed record is authoritative, late re-emulation must not
		// downgrade its class
		if prev.State == types.StateCompleted && trace.State == types.StateSynthetic {
			return nil
		}

		// re-emulation overwrites in place, the eviction countdown is untouched
		trace.CreatedAt = prev.CreatedAt
		if prev.TTLClass == trace.TTLClass {
			trace.ClassUpdatedAt = prev.ClassUpdatedAt
		}
	} else {
		s.metrics.Entries().Update(s.entries.Add(1))
	}
	sh.traces[trace.ID] = trace

	s.metrics.PayloadSize().Update(payloadSize(&trace))

	return nil
}

// Get implements the store.Store interface.
func (s *Store) Get(id common.Hash) (types.Trace, bool, error) {
	sh := s.shardFor(id)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	trace, ok := sh.traces[id]
	return trace, ok, nil
}

// GetBatch implements the store.Store interface.
func (s *Store) GetBatch(ids []common.Hash) ([]types.Trace, error) {
	traces := make([]types.Trace, 0, len(ids))

	for _, id := range ids {
		if trace, ok, _ := s.Get(id); ok {
			traces = append(traces, trace)
		}
	}

	return traces, nil
}

// Transition implements the store.Store interface.
func (s *Store) Transition(id common.Hash, state types.TraceState, class types.TTLClass) error {
	sh := s.shardFor(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	trace, ok := sh.traces[id]
	if !ok {
		return store.ErrNotFound
	}

	if err := trace.ValidateTransition(state, class); err != nil {
		return errors.WithMessage(store.ErrInvalidTransition, err.Error())
	}

	now := time.Now()
	trace.State = state
	trace.TTLClass = class
	trace.ClassUpdatedAt = now
	trace.LastTouchedAt = now
	sh.traces[id] = trace

	return nil
}

// PutActions implements the store.Store interface.
func (s *Store) PutActions(id common.Hash, actions []types.Action) error {
	sh := s.shardFor(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.traces[id]; !ok {
		return store.ErrNotFound
	}

	sh.actions[id] = actions
	return nil
}

// GetActions implements the store.Store interface.
func (s *Store) GetActions(id common.Hash) ([]types.Action, error) {
	sh := s.shardFor(id)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	return sh.actions[id], nil
}

// ScanExpired implements the store.Store interface.
func (s *Store) ScanExpired(now time.Time, policy types.TTLPolicy) ([]common.Hash, error) {
	var expired []common.Hash

	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, trace := range sh.traces {
			if !trace.Deadline(policy).After(now) {
				expired = append(expired, id)
			}
		}
		sh.mu.RUnlock()
	}

	return expired, nil
}

// Remove implements the store.Store interface.
func (s *Store) Remove(id common.Hash) error {
	sh := s.shardFor(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.traces[id]; ok {
		s.metrics.Entries().Update(s.entries.Add(-1))
	}

	delete(sh.traces, id)
	delete(sh.actions, id)

	return nil
}

// Close implements the io.Closer interface.
func (s *Store) Close() error {
	return nil
}
