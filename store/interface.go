package store

import (
	"io"
	"time"

	"github.com/Conflux-Chain/confura-pending-cache/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound indicates the operation referenced a trace id absent from
	// the store, typically because eviction won a race. Callers are expected
	// to skip the id rather than fail.
	ErrNotFound = errors.New("trace not found")

	// ErrInvalidTransition indicates an attempted state transition other
	// than synthetic -> completed.
	ErrInvalidTransition = errors.New("invalid trace transition")
)

// Store is the shared trace and action cache.
//
// All operations are safe under concurrent invocation from any number of
// callers. Operations on the same trace id are serialized, so concurrent
// upserts resolve to exactly one of the written records.
type Store interface {
	io.Closer

	// Put upserts the trace record. For an existing id the payload and state
	// are overwritten in place while CreatedAt is preserved, and the eviction
	// anchor is preserved if the TTL class is unchanged. A synthetic upsert
	// over an existing completed record is ignored, as the completed record
	// is authoritative and the TTL class never downgrades.
	Put(trace types.Trace) error

	// Get returns the trace record with the given id if cached.
	Get(id common.Hash) (types.Trace, bool, error)

	// GetBatch returns the cached records among the given ids. Absent ids are
	// skipped silently, so the result may be shorter than the input.
	GetBatch(ids []common.Hash) ([]types.Trace, error)

	// Transition reclassifies a synthetic trace as completed and restarts its
	// eviction countdown. It returns ErrNotFound for an absent id and
	// ErrInvalidTransition for any transition other than synthetic -> completed.
	Transition(id common.Hash, state types.TraceState, class types.TTLClass) error

	// PutActions replaces the classified actions of the given trace.
	// It returns ErrNotFound if the trace is not cached.
	PutActions(id common.Hash, actions []types.Action) error

	// GetActions returns the classified actions of the given trace, or nil
	// if the trace has none or is not cached.
	GetActions(id common.Hash) ([]types.Action, error)

	// ScanExpired returns the ids of all traces whose eviction deadline under
	// the given policy is not after now.
	ScanExpired(now time.Time, policy types.TTLPolicy) ([]common.Hash, error)

	// Remove evicts the trace and its actions atomically with respect to
	// readers. Removing an absent id is a no-op.
	Remove(id common.Hash) error
}
