package classify

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/Conflux-Chain/confura-pending-cache/channel"
	"github.com/Conflux-Chain/confura-pending-cache/store/memory"
	"github.com/Conflux-Chain/confura-pending-cache/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestConfig() Config {
	return Config{
		BatchSize:     100,
		BatchWindow:   200 * time.Millisecond,
		RetryInterval: 10 * time.Millisecond,
	}
}

func createTestFixtures(t *testing.T) (*memory.Store, *channel.MemoryBus) {
	t.Helper()

	cache := memory.MustNewStore(memory.Config{Shards: 4})
	bus := channel.NewMemoryBus(channel.MemoryBusConfig{BufferSize: 64})

	t.Cleanup(func() {
		assert.NoError(t, bus.Close())
		assert.NoError(t, cache.Close())
	})

	return cache, bus
}

func putSyntheticTrace(t *testing.T, cache *memory.Store, seq int64) common.Hash {
	t.Helper()

	id := common.BigToHash(big.NewInt(seq))
	trace := types.NewSyntheticTrace(id, types.CallFrame{
		Type:  "call",
		From:  testFrom,
		To:    &testTo,
		Value: (*hexutil.Big)(big.NewInt(seq)),
	}, time.Now())
	require.NoError(t, cache.Put(trace))

	return id
}

func drainReady(t *testing.T, ready <-chan channel.Message, want int, deadline time.Duration) []channel.Message {
	t.Helper()

	var got []channel.Message
	timeout := time.After(deadline)
	for len(got) < want {
		select {
		case msg := <-ready:
			got = append(got, msg)
		case <-timeout:
			t.Fatalf("got %v of %v actions-ready events before deadline", len(got), want)
		}
	}
	return got
}

func TestClassifierBatchesWithinWindow(t *testing.T) {
	cache, bus := createTestFixtures(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready, err := bus.Subscribe(ctx, channel.TopicActionsReady, "test-sink")
	require.NoError(t, err)

	classifier := NewPendingsClassifier(createTestConfig(), cache, bus)

	var wg sync.WaitGroup
	wg.Add(1)
	go classifier.Run(ctx, &wg)
	time.Sleep(20 * time.Millisecond)

	// 5 events within 50ms of each other land in one window flush
	start := time.Now()
	for i := int64(1); i <= 5; i++ {
		id := putSyntheticTrace(t, cache, i)
		require.NoError(t, bus.Publish(ctx, channel.TopicTraceReady, channel.Message{ID: id}))
		time.Sleep(10 * time.Millisecond)
	}

	got := drainReady(t, ready, 5, time.Second)
	elapsed := time.Since(start)

	// nothing is published before the window elapses
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)

	for _, msg := range got {
		actions, err := cache.GetActions(msg.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, actions)
	}

	cancel()
	wg.Wait()
}

func TestClassifierFlushesOnBatchSize(t *testing.T) {
	cache, bus := createTestFixtures(t)

	conf := createTestConfig()
	conf.BatchSize = 3
	conf.BatchWindow = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready, err := bus.Subscribe(ctx, channel.TopicActionsReady, "test-sink")
	require.NoError(t, err)

	classifier := NewPendingsClassifier(conf, cache, bus)

	var wg sync.WaitGroup
	wg.Add(1)
	go classifier.Run(ctx, &wg)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	for i := int64(1); i <= 3; i++ {
		id := putSyntheticTrace(t, cache, i)
		require.NoError(t, bus.Publish(ctx, channel.TopicTraceReady, channel.Message{ID: id}))
	}

	drainReady(t, ready, 3, time.Second)
	assert.Less(t, time.Since(start), 5*time.Second)

	cancel()
	wg.Wait()
}

func TestClassifierDeduplicatesBatchIds(t *testing.T) {
	cache, bus := createTestFixtures(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready, err := bus.Subscribe(ctx, channel.TopicActionsReady, "test-sink")
	require.NoError(t, err)

	classifier := NewPendingsClassifier(createTestConfig(), cache, bus)

	var wg sync.WaitGroup
	wg.Add(1)
	go classifier.Run(ctx, &wg)
	time.Sleep(20 * time.Millisecond)

	id := putSyntheticTrace(t, cache, 1)
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(ctx, channel.TopicTraceReady, channel.Message{ID: id}))
	}

	drainReady(t, ready, 1, time.Second)

	select {
	case msg := <-ready:
		t.Fatalf("unexpected extra actions-ready for %v", msg.ID)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	wg.Wait()
}

func TestClassifierSkipsEvictedTrace(t *testing.T) {
	cache, bus := createTestFixtures(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready, err := bus.Subscribe(ctx, channel.TopicActionsReady, "test-sink")
	require.NoError(t, err)

	classifier := NewPendingsClassifier(createTestConfig(), cache, bus)

	var wg sync.WaitGroup
	wg.Add(1)
	go classifier.Run(ctx, &wg)
	time.Sleep(20 * time.Millisecond)

	present := putSyntheticTrace(t, cache, 1)
	evicted := common.BigToHash(big.NewInt(2))

	require.NoError(t, bus.Publish(ctx, channel.TopicTraceReady, channel.Message{ID: evicted}))
	require.NoError(t, bus.Publish(ctx, channel.TopicTraceReady, channel.Message{ID: present}))

	got := drainReady(t, ready, 1, time.Second)
	assert.Equal(t, present, got[0].ID)

	cancel()
	wg.Wait()
}

func TestClassifierIsolatesFailingTrace(t *testing.T) {
	cache, bus := createTestFixtures(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready, err := bus.Subscribe(ctx, channel.TopicActionsReady, "test-sink")
	require.NoError(t, err)

	classifier := NewPendingsClassifier(createTestConfig(), cache, bus)

	var wg sync.WaitGroup
	wg.Add(1)
	go classifier.Run(ctx, &wg)
	time.Sleep(20 * time.Millisecond)

	// empty execution tree fails classification, the good trace still flows
	bad := common.BigToHash(big.NewInt(1))
	require.NoError(t, cache.Put(types.NewSyntheticTrace(bad, types.CallFrame{}, time.Now())))
	good := putSyntheticTrace(t, cache, 2)

	require.NoError(t, bus.Publish(ctx, channel.TopicTraceReady, channel.Message{ID: bad}))
	require.NoError(t, bus.Publish(ctx, channel.TopicTraceReady, channel.Message{ID: good}))

	got := drainReady(t, ready, 1, time.Second)
	assert.Equal(t, good, got[0].ID)

	badActions, err := cache.GetActions(bad)
	require.NoError(t, err)
	assert.Empty(t, badActions)

	cancel()
	wg.Wait()
}

func TestClassifierFlushesPendingBatchOnShutdown(t *testing.T) {
	cache, bus := createTestFixtures(t)

	conf := createTestConfig()
	conf.BatchWindow = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	classifier := NewPendingsClassifier(conf, cache, bus)

	var wg sync.WaitGroup
	wg.Add(1)
	go classifier.Run(ctx, &wg)
	time.Sleep(20 * time.Millisecond)

	first := putSyntheticTrace(t, cache, 1)
	second := putSyntheticTrace(t, cache, 2)
	require.NoError(t, bus.Publish(ctx, channel.TopicTraceReady, channel.Message{ID: first}))
	require.NoError(t, bus.Publish(ctx, channel.TopicTraceReady, channel.Message{ID: second}))
	time.Sleep(50 * time.Millisecond)

	cancel()
	wg.Wait()

	for _, id := range []common.Hash{first, second} {
		actions, err := cache.GetActions(id)
		require.NoError(t, err)
		assert.NotEmpty(t, actions)
	}
}

func TestPendingsClassifierIgnoresCompletedTraces(t *testing.T) {
	cache, bus := createTestFixtures(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready, err := bus.Subscribe(ctx, channel.TopicActionsReady, "test-sink")
	require.NoError(t, err)

	classifier := NewPendingsClassifier(createTestConfig(), cache, bus)

	var wg sync.WaitGroup
	wg.Add(1)
	go classifier.Run(ctx, &wg)
	time.Sleep(20 * time.Millisecond)

	id := common.BigToHash(big.NewInt(1))
	trace := types.NewCompletedTrace(id, types.CallFrame{
		Type: "call", From: testFrom, To: &testTo, Value: (*hexutil.Big)(big.NewInt(7)),
	}, time.Now())
	require.NoError(t, cache.Put(trace))

	require.NoError(t, bus.Publish(ctx, channel.TopicTraceReady, channel.Message{ID: id}))

	select {
	case msg := <-ready:
		t.Fatalf("unexpected actions-ready for %v", msg.ID)
	case <-time.After(400 * time.Millisecond):
	}

	cancel()
	wg.Wait()
}
