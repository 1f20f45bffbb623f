package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyPassThrough(t *testing.T) {
	trace := NewSyntheticTrace(common.HexToHash("0x01"), CallFrame{Type: "call"}, time.Now())

	lazy, err := NewLazy(&trace)
	require.NoError(t, err)

	encoded, err := json.Marshal(lazy)
	require.NoError(t, err)

	// a received value re-marshals to the exact bytes it arrived as
	var received Lazy[*Trace]
	require.NoError(t, json.Unmarshal(encoded, &received))

	reEncoded, err := json.Marshal(received)
	require.NoError(t, err)
	assert.Equal(t, encoded, reEncoded)

	decoded, err := received.Load()
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.Equal(t, trace.ID, decoded.ID)
	assert.Equal(t, StateSynthetic, decoded.State)
}

func TestLazyZeroValue(t *testing.T) {
	var lazy Lazy[*Trace]

	decoded, err := lazy.Load()
	require.NoError(t, err)
	assert.Nil(t, decoded)

	encoded, err := json.Marshal(lazy)
	require.NoError(t, err)
	assert.Equal(t, []byte("null"), encoded)
}
