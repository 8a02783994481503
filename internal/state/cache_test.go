package state

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vmelnikov/launchcore/internal/domain"
)

type mockReader struct {
	mu    sync.Mutex
	calls int64
	err   error
	delay time.Duration
	sold  int64
}

func (m *mockReader) SaleState(ctx context.Context, token common.Address) (*domain.TokenSaleState, error) {
	atomic.AddInt64(&m.calls, 1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &domain.TokenSaleState{
		Address:      token,
		SoldAmount:   big.NewInt(m.sold),
		RaisedAmount: big.NewInt(0),
		IsOpen:       true,
	}, nil
}

var testToken = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestGet_CachesWithinTTL(t *testing.T) {
	reader := &mockReader{sold: 100}
	cache := NewCache(reader, time.Minute, zaptest.NewLogger(t))

	first, err := cache.Get(context.Background(), testToken)
	require.NoError(t, err)
	second, err := cache.Get(context.Background(), testToken)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt64(&reader.calls),
		"two gets within TTL must trigger exactly one read")
	assert.Equal(t, first.SoldAmount, second.SoldAmount)
}

func TestGet_RefreshesAfterTTL(t *testing.T) {
	reader := &mockReader{sold: 100}
	cache := NewCache(reader, time.Minute, zaptest.NewLogger(t))

	now := time.Now()
	cache.clock = func() time.Time { return now }

	_, err := cache.Get(context.Background(), testToken)
	require.NoError(t, err)

	cache.clock = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = cache.Get(context.Background(), testToken)
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt64(&reader.calls))
}

func TestGet_CollapsesConcurrentRefreshes(t *testing.T) {
	reader := &mockReader{sold: 100, delay: 50 * time.Millisecond}
	cache := NewCache(reader, time.Minute, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background(), testToken)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt64(&reader.calls),
		"concurrent misses must collapse to one in-flight read")
}

func TestInvalidate_ForcesReread(t *testing.T) {
	reader := &mockReader{sold: 100}
	cache := NewCache(reader, time.Minute, zaptest.NewLogger(t))

	_, err := cache.Get(context.Background(), testToken)
	require.NoError(t, err)

	cache.Invalidate(testToken)

	reader.mu.Lock()
	reader.sold = 200
	reader.mu.Unlock()

	fresh, err := cache.Get(context.Background(), testToken)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt64(&reader.calls))
	assert.EqualValues(t, 200, fresh.SoldAmount.Int64())
}

func TestGet_PropagatesReadFailure(t *testing.T) {
	reader := &mockReader{sold: 100}
	cache := NewCache(reader, time.Minute, zaptest.NewLogger(t))

	_, err := cache.Get(context.Background(), testToken)
	require.NoError(t, err)

	cache.Invalidate(testToken)
	reader.mu.Lock()
	reader.err = errors.New("rpc unavailable")
	reader.mu.Unlock()

	_, err = cache.Get(context.Background(), testToken)
	assert.Error(t, err, "read failure must propagate, not be retried")

	// Last-known-good is still offered, tagged stale.
	snap, ok := cache.LastKnownGood(testToken)
	require.False(t, ok, "invalidate dropped the entry; no stale data remains")
	assert.Nil(t, snap)
}

func TestLastKnownGood_TagsStale(t *testing.T) {
	reader := &mockReader{sold: 100}
	cache := NewCache(reader, time.Minute, zaptest.NewLogger(t))

	_, err := cache.Get(context.Background(), testToken)
	require.NoError(t, err)

	snap, ok := cache.LastKnownGood(testToken)
	require.True(t, ok)
	assert.True(t, snap.Stale)
}

func TestGet_ReturnsCopies(t *testing.T) {
	reader := &mockReader{sold: 100}
	cache := NewCache(reader, time.Minute, zaptest.NewLogger(t))

	first, err := cache.Get(context.Background(), testToken)
	require.NoError(t, err)
	first.SoldAmount.SetInt64(999)

	second, err := cache.Get(context.Background(), testToken)
	require.NoError(t, err)
	assert.EqualValues(t, 100, second.SoldAmount.Int64(),
		"mutating a returned snapshot must not corrupt the cache")
}
