package conc

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestPool(t *testing.T) {
	pool := NewPool[int](4, WithPreAlloc(true))
	defer pool.Release()
	assert.Equal(t, 4, pool.Cap())

	futures := make([]*Future[int], 0, 16)
	for i := 0; i < 16; i++ {
		i := i
		futures = append(futures, pool.Submit(func() (int, error) {
			return i * i, nil
		}))
	}
	require.NoError(t, AwaitAll(futures...))
	for i, f := range futures {
		assert.True(t, f.Done())
		assert.Equal(t, i*i, f.Value())
	}
}

func TestPool_ErrorAndPreHandler(t *testing.T) {
	var calls atomic.Int32
	pool := NewPool[string](2, WithPreHandler(func() { calls.Inc() }))
	defer pool.Release()

	errBoom := errors.New("boom")
	ok := pool.Submit(func() (string, error) { return "ok", nil })
	bad := pool.Submit(func() (string, error) { return "", errBoom })

	err := AwaitAll(ok, bad)
	assert.ErrorIs(t, err, errBoom)
	v, err := ok.Await()
	assert.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.False(t, bad.OK())
	assert.Equal(t, int32(2), calls.Load())
}

func TestPool_ConcealPanic(t *testing.T) {
	var handled atomic.Bool
	pool := NewPool[int](1, WithConcealPanic(true), WithPanicHandler(func(any) { handled.Store(true) }))
	defer pool.Release()

	f := pool.Submit(func() (int, error) { panic("round trip exploded") })
	select {
	case <-f.Inner():
	case <-time.After(5 * time.Second):
		t.Fatal("future not finished")
	}
	assert.ErrorContains(t, f.Err(), "round trip exploded")
	assert.Eventually(t, handled.Load, time.Second, 10*time.Millisecond)
}
