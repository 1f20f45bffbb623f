package emulate

import (
	"time"

	"github.com/Conflux-Chain/go-conflux-util/health"
)

// Config holds the configurations for the trace emulator.
type Config struct {
	// Blockchain RPC endpoint used for both the pending-transaction source
	// and the emulation backend.
	RpcEndpoint string

	// Workers is the size of the emulation worker pool.
	Workers int `default:"4"`

	// QueueSize is the buffered pending-message queue between the source
	// poll loop and the workers. Messages beyond the buffer are dropped,
	// they will be re-observed on a later poll or confirmed on chain.
	QueueSize int `default:"1024"`

	// PollInterval specifies how often to poll the pending-transaction source.
	PollInterval time.Duration `default:"500ms"`

	// EmulationTimeout bounds a single emulation call.
	EmulationTimeout time.Duration `default:"3s"`

	// Freshness is the window within which a re-observed message is not
	// emulated again.
	Freshness time.Duration `default:"10s"`

	// DedupCacheSize is the capacity of the recently-emulated id cache.
	DedupCacheSize int `default:"8192"`

	Health health.TimedCounterConfig
}
