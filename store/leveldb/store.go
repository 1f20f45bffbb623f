package leveldb

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Conflux-Chain/confura-pending-cache/store"
	"github.com/Conflux-Chain/confura-pending-cache/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mcuadros/go-defaults"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	dberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var _ store.Store = (*Store)(nil)

// Config holds the configurations for the LevelDB trace store.
type Config struct {
	// LevelDB database path.
	Path string `default:"pending-cache-db"`
}

func DefaultConfig() (config Config) {
	defaults.SetDefaults(&config)
	return
}

// Store is a persistent trace store backed by a LevelDB database, so the
// pending cache survives process restarts. Records and classified actions
// are keyed by trace id, with an ordered index for expiry scans.
type Store struct {
	db *leveldb.DB

	// guards compound read-modify-write sequences across the record,
	// actions and expiry index keyspaces
	mu sync.RWMutex

	// use object pools for memory saving
	keyTracePool   *KeyPool
	keyActionsPool *KeyPool

	metrics Metrics
}

// NewStore opens or creates a DB for the given path.
//
// If corruption is detected for an existing DB, it will try to recover it.
func NewStore(config Config, options ...opt.Options) (*Store, error) {
	var opt *opt.Options
	if len(options) > 0 {
		opt = &options[0]
	}

	// open or create database
	db, err := leveldb.OpenFile(config.Path, opt)
	if dberrors.IsCorrupted(err) {
		// try to recover database
		logrus.WithError(err).WithField("path", config.Path).Warn("Failed to open corrupted file, try to recover")
		db, err = leveldb.RecoverFile(config.Path, opt)
		if err != nil {
			return nil, errors.WithMessagef(err, "Failed to recover file %v", config.Path)
		}
	} else if err != nil {
		return nil, errors.WithMessagef(err, "Failed to open file %v", config.Path)
	}

	return &Store{
		db: db,

		keyTracePool:   NewKeyPool(prefixTrace, common.HashLength),
		keyActionsPool: NewKeyPool(prefixActions, common.HashLength),
	}, nil
}

// Close closes the underlying LevelDB database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put implements the store.Store interface.
func (s *Store) Put(trace types.Trace) error {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, found, err := s.readTrace(trace.ID)
	if err != nil {
		return err
	}

	// the completed record is authoritative, late re-emulation must not
	// downgrade its class
	if found && prev.State == types.StateCompleted && trace.State == types.StateSynthetic {
		return nil
	}

	batch := new(leveldb.Batch)

	if found {
		// re-emulation overwrites in place, the eviction countdown is untouched
		trace.CreatedAt = prev.CreatedAt
		if prev.TTLClass == trace.TTLClass {
			trace.ClassUpdatedAt = prev.ClassUpdatedAt
		} else {
			batch.Delete(expiryKey(prev.TTLClass, prev.ClassUpdatedAt, prev.ID))
			batch.Put(expiryKey(trace.TTLClass, trace.ClassUpdatedAt, trace.ID), nil)
		}
	} else {
		batch.Put(expiryKey(trace.TTLClass, trace.ClassUpdatedAt, trace.ID), nil)
	}

	if err := s.writeTrace(batch, &trace); err != nil {
		return err
	}

	if err := s.db.Write(batch, nil); err != nil {
		return errors.WithMessage(err, "Failed to write trace batch")
	}

	s.metrics.Write().UpdateSince(start)
	return nil
}

// Get implements the store.Store interface.
func (s *Store) Get(id common.Hash) (types.Trace, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.readTrace(id)
}

// GetBatch implements the store.Store interface.
func (s *Store) GetBatch(ids []common.Hash) ([]types.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	traces := make([]types.Trace, 0, len(ids))
	for _, id := range ids {
		trace, found, err := s.readTrace(id)
		if err != nil {
			return nil, err
		}
		if found {
			traces = append(traces, trace)
		}
	}

	return traces, nil
}

// Transition implements the store.Store interface.
func (s *Store) Transition(id common.Hash, state types.TraceState, class types.TTLClass) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trace, found, err := s.readTrace(id)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}

	if err := trace.ValidateTransition(state, class); err != nil {
		return errors.WithMessage(store.ErrInvalidTransition, err.Error())
	}

	batch := new(leveldb.Batch)
	batch.Delete(expiryKey(trace.TTLClass, trace.ClassUpdatedAt, id))

	now := time.Now()
	trace.State = state
	trace.TTLClass = class
	trace.ClassUpdatedAt = now
	trace.LastTouchedAt = now

	batch.Put(expiryKey(trace.TTLClass, trace.ClassUpdatedAt, id), nil)
	if err := s.writeTrace(batch, &trace); err != nil {
		return err
	}

	return errors.WithMessage(s.db.Write(batch, nil), "Failed to write transition batch")
}

// PutActions implements the store.Store interface.
func (s *Store) PutActions(id common.Hash, actions []types.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found, err := s.readTrace(id); err != nil {
		return err
	} else if !found {
		return store.ErrNotFound
	}

	encoded, err := json.Marshal(actions)
	if err != nil {
		return errors.WithMessage(err, "Failed to json marshal actions")
	}

	key := s.keyActionsPool.Get(id)
	defer s.keyActionsPool.Put(key)

	return errors.WithMessage(s.db.Put(*key, encoded, nil), "Failed to write actions")
}

// GetActions implements the store.Store interface.
func (s *Store) GetActions(id common.Hash) ([]types.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := s.keyActionsPool.Get(id)
	defer s.keyActionsPool.Put(key)

	encoded, err := s.db.Get(*key, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithMessage(err, "Failed to read actions")
	}

	var actions []types.Action
	if err := json.Unmarshal(encoded, &actions); err != nil {
		return nil, errors.WithMessage(err, "Failed to json unmarshal actions")
	}

	return actions, nil
}

// ScanExpired implements the store.Store interface.
func (s *Store) ScanExpired(now time.Time, policy types.TTLPolicy) ([]common.Hash, error) {
	start := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []common.Hash

	for _, class := range []types.TTLClass{types.ClassSynthetic, types.ClassCompleted} {
		from, limit := expiryRange(class, now.Add(-policy.Duration(class)))

		iter := s.db.NewIterator(&util.Range{Start: from, Limit: limit}, nil)
		for iter.Next() {
			expired = append(expired, expiryEntryID(iter.Key()))
		}
		iter.Release()

		if err := iter.Error(); err != nil {
			return nil, errors.WithMessagef(err, "Failed to scan %v expiry index", class)
		}
	}

	s.metrics.Scan().UpdateSince(start)
	return expired, nil
}

// Remove implements the store.Store interface.
func (s *Store) Remove(id common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trace, found, err := s.readTrace(id)
	if err != nil {
		return err
	}
	if !found {
		// removing an absent id is a no-op
		return nil
	}

	traceKey := s.keyTracePool.Get(id)
	defer s.keyTracePool.Put(traceKey)
	actionsKey := s.keyActionsPool.Get(id)
	defer s.keyActionsPool.Put(actionsKey)

	batch := new(leveldb.Batch)
	batch.Delete(*traceKey)
	batch.Delete(*actionsKey)
	batch.Delete(expiryKey(trace.TTLClass, trace.ClassUpdatedAt, id))

	return errors.WithMessage(s.db.Write(batch, nil), "Failed to write removal batch")
}

func (s *Store) readTrace(id common.Hash) (types.Trace, bool, error) {
	key := s.keyTracePool.Get(id)
	defer s.keyTracePool.Put(key)

	encoded, err := s.db.Get(*key, nil)
	if err == leveldb.ErrNotFound {
		return types.Trace{}, false, nil
	}
	if err != nil {
		return types.Trace{}, false, errors.WithMessage(err, "Failed to read trace")
	}

	var trace types.Trace
	if err := json.Unmarshal(encoded, &trace); err != nil {
		return types.Trace{}, false, errors.WithMessage(err, "Failed to json unmarshal trace")
	}

	return trace, true, nil
}

func (s *Store) writeTrace(batch *leveldb.Batch, trace *types.Trace) error {
	encoded, err := json.Marshal(trace)
	if err != nil {
		return errors.WithMessage(err, "Failed to json marshal trace")
	}

	key := s.keyTracePool.Get(trace.ID)
	defer s.keyTracePool.Put(key)

	batch.Put(*key, encoded)
	return nil
}
