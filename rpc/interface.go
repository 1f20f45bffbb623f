package rpc

import (
	"github.com/Conflux-Chain/confura-pending-cache/types"
	"github.com/ethereum/go-ethereum/common"
)

type Interface interface {
	// GetTrace returns the trace for the given id. If not found, returns nil.
	GetTrace(id common.Hash) (types.Lazy[*types.Trace], error)

	// GetActions returns the classified actions for the given id. If not found, returns nil.
	GetActions(id common.Hash) (types.Lazy[[]types.Action], error)

	// GetTraceWithActions returns the trace together with its actions for the given id. If not found, returns nil.
	GetTraceWithActions(id common.Hash) (types.Lazy[*types.TraceWithActions], error)
}
