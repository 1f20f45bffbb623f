package leveldb

import (
	"testing"
	"time"

	"github.com/Conflux-Chain/confura-pending-cache/store"
	"github.com/Conflux-Chain/confura-pending-cache/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *Store {
	s, err := NewStore(Config{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestTrace(id byte, now time.Time) types.Trace {
	return types.NewSyntheticTrace(common.BytesToHash([]byte{id}), types.CallFrame{Type: "call"}, now)
}

func TestStoreRoundTrip(t *testing.T) {
	s := createTestStore(t)
	now := time.Now()

	trace := createTestTrace(1, now)
	to := common.HexToAddress("0x25ab3efd52e6470681ce037cd546dc60726948d3")
	trace.Payload.To = &to
	require.NoError(t, s.Put(trace))

	got, found, err := s.Get(trace.ID)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, trace.ID, got.ID)
	assert.Equal(t, types.StateSynthetic, got.State)
	assert.Equal(t, to, *got.Payload.To)
	assert.Equal(t, now.UnixNano(), got.CreatedAt.UnixNano())

	_, found, err = s.Get(common.HexToHash("0xdead"))
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestStorePutPreservesCreatedAt(t *testing.T) {
	s := createTestStore(t)
	now := time.Now()

	trace := createTestTrace(1, now)
	require.NoError(t, s.Put(trace))

	again := createTestTrace(1, now.Add(time.Second))
	again.Payload.Type = "staticcall"
	require.NoError(t, s.Put(again))

	got, found, err := s.Get(trace.ID)
	assert.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "staticcall", got.Payload.Type)
	assert.Equal(t, now.UnixNano(), got.CreatedAt.UnixNano())
	assert.Equal(t, now.UnixNano(), got.ClassUpdatedAt.UnixNano())
}

func TestStorePutKeepsCompletedClass(t *testing.T) {
	s := createTestStore(t)
	policy := types.TTLPolicy{Synthetic: time.Minute, Completed: 10 * time.Minute}

	trace := createTestTrace(1, time.Now().Add(-2*time.Minute))
	require.NoError(t, s.Put(trace))
	require.NoError(t, s.Transition(trace.ID, types.StateCompleted, types.ClassCompleted))

	// a message re-observed after the freshness window must not downgrade
	// the completed record back to synthetic
	late := createTestTrace(1, time.Now())
	late.Payload.Type = "delegatecall"
	require.NoError(t, s.Put(late))

	got, found, err := s.Get(trace.ID)
	assert.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.StateCompleted, got.State)
	assert.Equal(t, types.ClassCompleted, got.TTLClass)
	assert.Equal(t, "call", got.Payload.Type)

	// the expiry index still tracks the completed countdown only
	expired, err := s.ScanExpired(time.Now(), policy)
	assert.NoError(t, err)
	assert.Empty(t, expired)
}

func TestStoreTransitionMovesExpiryIndex(t *testing.T) {
	s := createTestStore(t)
	policy := types.TTLPolicy{Synthetic: time.Minute, Completed: 10 * time.Minute}
	created := time.Now().Add(-2 * time.Minute)

	trace := createTestTrace(1, created)
	require.NoError(t, s.Put(trace))

	// expired under the synthetic policy
	expired, err := s.ScanExpired(time.Now(), policy)
	assert.NoError(t, err)
	assert.Equal(t, []common.Hash{trace.ID}, expired)

	require.NoError(t, s.Transition(trace.ID, types.StateCompleted, types.ClassCompleted))

	// countdown restarted under the completed policy
	expired, err = s.ScanExpired(time.Now(), policy)
	assert.NoError(t, err)
	assert.Empty(t, expired)

	got, found, _ := s.Get(trace.ID)
	require.True(t, found)
	assert.Equal(t, types.StateCompleted, got.State)
	assert.Equal(t, created.UnixNano(), got.CreatedAt.UnixNano())

	err = s.Transition(trace.ID, types.StateCompleted, types.ClassCompleted)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	err = s.Transition(common.HexToHash("0xdead"), types.StateCompleted, types.ClassCompleted)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStoreActionsLifecycle(t *testing.T) {
	s := createTestStore(t)
	trace := createTestTrace(1, time.Now())
	require.NoError(t, s.Put(trace))

	err := s.PutActions(common.HexToHash("0xdead"), nil)
	assert.ErrorIs(t, err, store.ErrNotFound)

	actions := []types.Action{{TraceID: trace.ID, Kind: types.ActionTokenTransfer, Attributes: map[string]string{"token": "0xfe97"}}}
	require.NoError(t, s.PutActions(trace.ID, actions))

	got, err := s.GetActions(trace.ID)
	assert.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.ActionTokenTransfer, got[0].Kind)
	assert.Equal(t, "0xfe97", got[0].Attributes["token"])

	// removal evicts trace, actions and index together
	require.NoError(t, s.Remove(trace.ID))

	_, found, _ := s.Get(trace.ID)
	assert.False(t, found)

	got, err = s.GetActions(trace.ID)
	assert.NoError(t, err)
	assert.Empty(t, got)

	expired, err := s.ScanExpired(time.Now().Add(time.Hour), types.TTLPolicy{Synthetic: time.Minute, Completed: time.Minute})
	assert.NoError(t, err)
	assert.Empty(t, expired)

	assert.NoError(t, s.Remove(trace.ID))
}

func TestStoreReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStore(Config{Path: dir})
	require.NoError(t, err)

	trace := createTestTrace(1, time.Now())
	require.NoError(t, s.Put(trace))
	require.NoError(t, s.Close())

	// pending cache survives restart
	s, err = NewStore(Config{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.Get(trace.ID)
	assert.NoError(t, err)
	assert.True(t, found)
}
