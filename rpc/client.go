package rpc

import (
	"github.com/Conflux-Chain/confura-pending-cache/types"
	"github.com/ethereum/go-ethereum/common"
	providers "github.com/openweb3/go-rpc-provider/provider_wrapper"
)

var _ Interface = (*Client)(nil)

// Client is the RPC client to interact with the RPC server.
type Client struct {
	*providers.MiddlewarableProvider

	url string
}

// NewClient creates a new client instance.
func NewClient(url string, option ...providers.Option) (*Client, error) {
	var opt providers.Option
	if len(option) > 0 {
		opt = option[0]
	}

	provider, err := providers.NewProviderWithOption(url, opt)
	if err != nil {
		return nil, err
	}

	return &Client{provider, url}, nil
}

// String returns the URL of the RPC server.
func (c *Client) String() string {
	return c.url
}

func (c *Client) GetTrace(id common.Hash) (types.Lazy[*types.Trace], error) {
	return providers.Call[types.Lazy[*types.Trace]](c, "pending_getTrace", id)
}

func (c *Client) GetActions(id common.Hash) (types.Lazy[[]types.Action], error) {
	return providers.Call[types.Lazy[[]types.Action]](c, "pending_getActions", id)
}

func (c *Client) GetTraceWithActions(id common.Hash) (types.Lazy[*types.TraceWithActions], error) {
	return providers.Call[types.Lazy[*types.TraceWithActions]](c, "pending_getTraceWithActions", id)
}
