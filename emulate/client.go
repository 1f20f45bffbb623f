package emulate

import (
	"context"
	"io"
	"time"

	"github.com/Conflux-Chain/confura-pending-cache/types"
	providers "github.com/openweb3/go-rpc-provider/provider_wrapper"
	ethTypes "github.com/openweb3/web3go/types"
	"github.com/pkg/errors"
)

var (
	_ Source  = (*Client)(nil)
	_ Backend = (*Client)(nil)
)

// Source produces candidate pending messages from a mempool-like origin.
type Source interface {
	io.Closer

	// Poll returns the currently observed pending messages.
	Poll(ctx context.Context) ([]types.PendingMessage, error)
}

// Backend emulates the execution of one pending message against the most
// recent known chain state.
type Backend interface {
	Emulate(ctx context.Context, msg types.PendingMessage) (types.CallFrame, error)
}

// Client implements both Source and Backend against a fullnode endpoint.
type Client struct {
	*providers.MiddlewarableProvider

	url string
}

// NewClient creates a fullnode client for the given RPC endpoint.
func NewClient(url string, option ...providers.Option) (*Client, error) {
	var opt providers.Option
	if len(option) > 0 {
		opt = option[0]
	}

	provider, err := providers.NewProviderWithOption(url, opt)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create rpc provider for endpoint %v", url)
	}

	return &Client{provider, url}, nil
}

// String returns the fullnode endpoint URL.
func (c *Client) String() string {
	return c.url
}

// Close releases any held resources, such as network connections.
func (c *Client) Close() error {
	c.MiddlewarableProvider.Close()
	return nil
}

// Poll implements the Source interface by querying the node's pending
// transaction pool.
func (c *Client) Poll(ctx context.Context) ([]types.PendingMessage, error) {
	var txs []ethTypes.TransactionDetail
	if err := c.CallContext(ctx, &txs, "eth_pendingTransactions"); err != nil {
		return nil, errors.WithMessage(err, "failed to query pending transactions")
	}

	messages := make([]types.PendingMessage, 0, len(txs))
	for i := range txs {
		messages = append(messages, types.NewPendingMessage(&txs[i]))
	}

	return messages, nil
}

// Emulate implements the Backend interface via a call-tracing execution of
// the message on top of the latest state.
func (c *Client) Emulate(ctx context.Context, msg types.PendingMessage) (types.CallFrame, error) {
	call := map[string]interface{}{
		"from": msg.From,
	}
	if msg.To != nil {
		call["to"] = *msg.To
	}
	if msg.Value != nil {
		call["value"] = msg.Value
	}
	if len(msg.Input) > 0 {
		call["data"] = msg.Input
	}
	if msg.Gas > 0 {
		call["gas"] = msg.Gas
	}

	tracer := map[string]interface{}{"tracer": "callTracer"}
	if deadline, ok := ctx.Deadline(); ok {
		tracer["timeout"] = time.Until(deadline).String()
	}

	var frame types.CallFrame
	err := c.CallContext(ctx, &frame, "debug_traceCall", call, "latest", tracer)
	return frame, errors.WithMessage(err, "failed to trace call")
}
