package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// TraceState is the lifecycle state of a cached trace.
type TraceState uint8

const (
	StatePending TraceState = iota
	StateSynthetic
	StateCompleted
	StateEvicted
)

// String implements the fmt.Stringer interface.
func (s TraceState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSynthetic:
		return "synthetic"
	case StateCompleted:
		return "completed"
	case StateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// TTLClass determines which expiry policy applies to a trace.
type TTLClass uint8

const (
	ClassSynthetic TTLClass = iota
	ClassCompleted
)

// String implements the fmt.Stringer interface.
func (c TTLClass) String() string {
	if c == ClassCompleted {
		return "completed"
	}
	return "synthetic"
}

// TTLPolicy holds the configured expiry durations per TTL class.
type TTLPolicy struct {
	Synthetic time.Duration `default:"1m"`
	Completed time.Duration `default:"10m"`
}

// Duration returns the expiry duration for the given TTL class.
func (p TTLPolicy) Duration(class TTLClass) time.Duration {
	if class == ClassCompleted {
		return p.Completed
	}
	return p.Synthetic
}

// CallFrame is one node of an emulated or observed execution tree.
type CallFrame struct {
	Type     string          `json:"type"` // call, delegatecall, staticcall, create
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"` // nil for contract creation
	Value    *hexutil.Big    `json:"value,omitempty"`
	Input    hexutil.Bytes   `json:"input,omitempty"`
	Output   hexutil.Bytes   `json:"output,omitempty"`
	GasUsed  hexutil.Uint64  `json:"gasUsed"`
	Error    string          `json:"error,omitempty"`
	Children []CallFrame     `json:"calls,omitempty"`
}

// Failed returns true if execution of this frame reverted or aborted.
func (f *CallFrame) Failed() bool {
	return len(f.Error) > 0
}

// Trace is the emulated or confirmed execution result of one external message.
type Trace struct {
	ID       common.Hash `json:"id"`
	State    TraceState  `json:"state"`
	TTLClass TTLClass    `json:"ttlClass"`
	Payload  CallFrame   `json:"payload"`

	// CreatedAt is assigned when the trace id is first cached and preserved
	// across re-emulations and the synthetic -> completed transition.
	CreatedAt time.Time `json:"createdAt"`

	// LastTouchedAt is updated on every upsert.
	LastTouchedAt time.Time `json:"lastTouchedAt"`

	// ClassUpdatedAt anchors the eviction countdown for the current TTL class.
	// It equals CreatedAt until the trace transitions to completed.
	ClassUpdatedAt time.Time `json:"classUpdatedAt"`
}

// Deadline returns the moment the trace expires under the given policy.
func (t *Trace) Deadline(policy TTLPolicy) time.Time {
	return t.ClassUpdatedAt.Add(policy.Duration(t.TTLClass))
}

// NewSyntheticTrace constructs a synthetic trace for an emulated pending message.
func NewSyntheticTrace(id common.Hash, payload CallFrame, now time.Time) Trace {
	return Trace{
		ID:             id,
		State:          StateSynthetic,
		TTLClass:       ClassSynthetic,
		Payload:        payload,
		CreatedAt:      now,
		LastTouchedAt:  now,
		ClassUpdatedAt: now,
	}
}

// NewCompletedTrace constructs a completed trace from a confirmed-trace notification.
func NewCompletedTrace(id common.Hash, payload CallFrame, now time.Time) Trace {
	trace := NewSyntheticTrace(id, payload, now)
	trace.State = StateCompleted
	trace.TTLClass = ClassCompleted
	return trace
}

// ValidateTransition checks whether the trace may move to the given state and class.
// The only legal reclassification is synthetic -> completed.
func (t *Trace) ValidateTransition(state TraceState, class TTLClass) error {
	if t.State != StateSynthetic || state != StateCompleted || class != ClassCompleted {
		return errors.Errorf("illegal transition from (%v, %v) to (%v, %v)", t.State, t.TTLClass, state, class)
	}
	return nil
}

// DeriveTraceID computes a stable trace id from the raw message bytes.
func DeriveTraceID(raw []byte) common.Hash {
	return crypto.Keccak256Hash(raw)
}
