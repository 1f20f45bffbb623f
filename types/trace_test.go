package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestTraceStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "synthetic", StateSynthetic.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "evicted", StateEvicted.String())
	assert.Equal(t, "unknown", TraceState(100).String())
}

func TestTTLPolicyDuration(t *testing.T) {
	policy := TTLPolicy{Synthetic: time.Minute, Completed: 10 * time.Minute}

	assert.Equal(t, time.Minute, policy.Duration(ClassSynthetic))
	assert.Equal(t, 10*time.Minute, policy.Duration(ClassCompleted))
}

func TestTraceDeadline(t *testing.T) {
	now := time.Now()
	policy := TTLPolicy{Synthetic: time.Minute, Completed: 10 * time.Minute}

	trace := NewSyntheticTrace(common.HexToHash("0x01"), CallFrame{}, now)
	assert.Equal(t, now.Add(time.Minute), trace.Deadline(policy))

	// completed countdown anchors at the transition moment, not creation
	trace.State = StateCompleted
	trace.TTLClass = ClassCompleted
	trace.ClassUpdatedAt = now.Add(30 * time.Second)
	assert.Equal(t, now.Add(30*time.Second+10*time.Minute), trace.Deadline(policy))
	assert.Equal(t, now, trace.CreatedAt)
}

func TestValidateTransition(t *testing.T) {
	now := time.Now()

	trace := NewSyntheticTrace(common.HexToHash("0x01"), CallFrame{}, now)
	assert.NoError(t, trace.ValidateTransition(StateCompleted, ClassCompleted))
	assert.Error(t, trace.ValidateTransition(StateSynthetic, ClassSynthetic))
	assert.Error(t, trace.ValidateTransition(StateEvicted, ClassCompleted))

	completed := NewCompletedTrace(common.HexToHash("0x02"), CallFrame{}, now)
	assert.Error(t, completed.ValidateTransition(StateCompleted, ClassCompleted))
}

func TestPendingMessageTraceID(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03}

	// explicit hash wins
	hash := common.HexToHash("0xab")
	msg := PendingMessage{Hash: hash, Raw: raw}
	assert.Equal(t, hash, msg.TraceID())

	// otherwise derived from raw bytes, deterministically
	msg2 := PendingMessage{Raw: raw}
	assert.Equal(t, DeriveTraceID(raw), msg2.TraceID())
	assert.Equal(t, msg2.TraceID(), msg2.TraceID())
}

func TestCallFrameJsonRoundTrip(t *testing.T) {
	to := common.HexToAddress("0x25ab3efd52e6470681ce037cd546dc60726948d3")
	frame := CallFrame{
		Type:    "call",
		From:    common.HexToAddress("0x2d26b1202078e49d036d59451f0da60f645e6df6"),
		To:      &to,
		Input:   []byte{0xa9, 0x05, 0x9c, 0xbb},
		GasUsed: 21000,
		Children: []CallFrame{
			{Type: "staticcall", From: to, Error: "execution reverted"},
		},
	}

	encoded, err := json.Marshal(frame)
	assert.NoError(t, err)

	var decoded CallFrame
	assert.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, frame.Type, decoded.Type)
	assert.Equal(t, frame.From, decoded.From)
	assert.Equal(t, *frame.To, *decoded.To)
	assert.Len(t, decoded.Children, 1)
	assert.True(t, decoded.Children[0].Failed())
	assert.False(t, decoded.Failed())
}
