package rpc

import (
	"github.com/Conflux-Chain/confura-pending-cache/store"
	"github.com/Conflux-Chain/confura-pending-cache/types"
	"github.com/ethereum/go-ethereum/common"
)

var _ Interface = (*Api)(nil)

// Api is the pending namespace RPC implementation.
type Api struct {
	cache store.Store
}

func NewApi(cache store.Store) *Api {
	return &Api{cache}
}

func (api *Api) GetTrace(id common.Hash) (types.Lazy[*types.Trace], error) {
	trace, ok, err := api.cache.Get(id)

	metrics.GetTraceHitCache().Mark(err == nil && ok)

	if err != nil || !ok {
		return types.Lazy[*types.Trace]{}, err
	}

	return types.NewLazy(&trace)
}

func (api *Api) GetActions(id common.Hash) (types.Lazy[[]types.Action], error) {
	actions, err := api.cache.GetActions(id)
	if err != nil || len(actions) == 0 {
		return types.Lazy[[]types.Action]{}, err
	}

	return types.NewLazy(actions)
}

func (api *Api) GetTraceWithActions(id common.Hash) (types.Lazy[*types.TraceWithActions], error) {
	trace, ok, err := api.cache.Get(id)
	if err != nil || !ok {
		return types.Lazy[*types.TraceWithActions]{}, err
	}

	actions, err := api.cache.GetActions(id)
	if err != nil {
		return types.Lazy[*types.TraceWithActions]{}, err
	}

	return types.NewLazy(&types.TraceWithActions{Trace: trace, Actions: actions})
}
