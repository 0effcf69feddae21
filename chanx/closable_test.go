package chanx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClosable_Send(t *testing.T) {
	c := NewClosable[int](1)
	assert.NoError(t, c.Send(-12))
	assert.ErrorIs(t, c.TrySend(900), ErrBuffFull)
}

func TestClosable_TrySendWithClose(t *testing.T) {
	c := NewClosable[int](2)
	require.NoError(t, c.TrySend(1))
	c.Close()
	c.Close() // idempotent

	assert.ErrorIs(t, c.TrySend(2), ErrClosed)
	assert.ErrorIs(t, c.Send(3), ErrClosed)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done must be closed after Close")
	}
}

func TestClosable_CloseReleasesBlockedSender(t *testing.T) {
	c := NewClosable[int](0)
	errc := make(chan error, 1)
	go func() { errc <- c.Send(1) }()

	time.Sleep(5 * time.Millisecond)
	c.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked Send was not released by Close")
	}
}

func TestClosable_SendContext(t *testing.T) {
	c := NewClosable[int](0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, c.SendContext(ctx, 1), context.DeadlineExceeded)
}

func TestClosable_ConcurrentSendAndClose(t *testing.T) {
	for range 50 {
		c := NewClosable[int](1)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				// Either outcome is fine; a panic is not.
				_ = c.Send(i)
			}()
		}
		go func() {
			for range c.Chan() {
			}
		}()
		c.Close()
		wg.Wait()
	}
}
