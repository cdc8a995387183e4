package cancel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_CancelOrder(t *testing.T) {
	tok := New()

	var order []int
	for i := range 3 {
		require.True(t, tok.Subscribe(func() { order = append(order, i) }))
	}
	assert.Equal(t, 3, tok.Len())

	tok.Cancel()
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.True(t, tok.Cancelled())
	assert.Equal(t, 0, tok.Len())

	// Second cancel must not refire.
	tok.Cancel()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestToken_SubscribeAfterCancel(t *testing.T) {
	tok := New()
	tok.Cancel()

	called := false
	assert.False(t, tok.Subscribe(func() { called = true }))
	tok.Cancel()
	assert.False(t, called)
}

func TestToken_Context(t *testing.T) {
	t.Run("cancelled by token", func(t *testing.T) {
		tok := New()
		ctx, release := tok.Context(context.Background())
		defer release()

		require.NoError(t, ctx.Err())
		tok.Cancel()
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("already spent", func(t *testing.T) {
		tok := New()
		tok.Cancel()
		ctx, release := tok.Context(context.Background())
		defer release()
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})
}

func TestToken_ConcurrentSubscribe(t *testing.T) {
	tok := New()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fired int
	)
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok.Subscribe(func() {
				mu.Lock()
				fired++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	tok.Cancel()
	assert.Equal(t, 64, fired)
}
