package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratus/pkg/models"
)

const blockWait = 50 * time.Millisecond

func dataBuffer(id int64) *DataBuffer {
	return NewDataBuffer(id, models.MustSchema("x"), []models.Row{{id}})
}

// returnsWithin reports whether fn returns before d elapses
func returnsWithin(d time.Duration, fn func()) (<-chan struct{}, bool) {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
		return done, true
	case <-time.After(d):
		return done, false
	}
}

func TestNewConnectorValidation(t *testing.T) {
	_, err := NewConnector("c", 0, 1, 1)
	assert.True(t, IsCapacity(err))

	_, err = NewConnector("c", 2, 3, 1)
	assert.True(t, IsCapacity(err))

	_, err = NewConnector("c", 2, 1, 0)
	assert.True(t, IsCapacity(err))

	c, err := NewConnector("c", 4, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Cap())
	assert.Equal(t, 2, c.NumProducers())
	assert.Equal(t, 3, c.NumConsumers())
}

func TestConnectorFIFO(t *testing.T) {
	c, err := NewConnector("fifo", 8, 1, 1)
	require.NoError(t, err)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, c.Push(dataBuffer(i)))
	}
	assert.Equal(t, 5, c.Len())
	for i := int64(0); i < 5; i++ {
		buf, err := c.Pop()
		require.NoError(t, err)
		assert.Equal(t, i, buf.ID())
	}
}

func TestConnectorBlocksWhenFull(t *testing.T) {
	const capacity = 3
	c, err := NewConnector("full", capacity, 1, 1)
	require.NoError(t, err)

	for i := 0; i < capacity; i++ {
		_, ok := returnsWithin(blockWait, func() { assert.NoError(t, c.Push(dataBuffer(int64(i)))) })
		require.True(t, ok, "push %d should not block", i)
	}

	done, ok := returnsWithin(blockWait, func() { assert.NoError(t, c.Push(dataBuffer(99))) })
	require.False(t, ok, "push beyond capacity should block")

	buf, err := c.Pop()
	require.NoError(t, err)
	assert.Equal(t, int64(0), buf.ID())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked push was not released by a pop")
	}
	assert.Equal(t, capacity, c.Len())
}

func TestConnectorEOFIsIdempotent(t *testing.T) {
	c, err := NewConnector("eof", 2, 1, 1)
	require.NoError(t, err)
	require.NoError(t, c.Push(dataBuffer(1)))
	require.NoError(t, c.Push(EOF()))

	buf, err := c.Pop()
	require.NoError(t, err)
	assert.Equal(t, int64(1), buf.ID())

	for i := 0; i < 3; i++ {
		buf, err = c.Pop()
		require.NoError(t, err)
		assert.True(t, buf.IsEOF())
	}

	// A close after termination does not turn EOF into an error
	c.Close(ReasonCancelled)
	buf, err = c.Pop()
	require.NoError(t, err)
	assert.True(t, buf.IsEOF())
}

func TestConnectorRejectsPushAfterEOF(t *testing.T) {
	c, err := NewConnector("after-eof", 2, 1, 1)
	require.NoError(t, err)
	require.NoError(t, c.Push(EOF()))

	err = c.Push(dataBuffer(1))
	require.True(t, IsClosed(err))
	reason, ok := ClosedReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonEndOfData, reason)
}

func TestConnectorWaitsForEveryProducerEOF(t *testing.T) {
	c, err := NewConnector("fan", 4, 2, 1)
	require.NoError(t, err)
	require.NoError(t, c.Push(EOF()))
	require.NoError(t, c.Push(dataBuffer(7)))

	buf, err := c.Pop()
	require.NoError(t, err)
	assert.Equal(t, int64(7), buf.ID())

	_, ok := returnsWithin(blockWait, func() { _, _ = c.Pop() })
	assert.False(t, ok, "pop should block until the second producer ends")

	require.NoError(t, c.Push(EOF()))
	buf, err = c.Pop()
	require.NoError(t, err)
	assert.True(t, buf.IsEOF())
}

func TestConnectorCloseReleasesBlockedProducer(t *testing.T) {
	c, err := NewConnector("close-push", 1, 1, 1)
	require.NoError(t, err)
	require.NoError(t, c.Push(dataBuffer(1)))

	var pushErr error
	done, ok := returnsWithin(blockWait, func() { pushErr = c.Push(dataBuffer(2)) })
	require.False(t, ok)

	c.Close(ReasonCancelled)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close did not release the blocked producer")
	}
	require.True(t, IsClosed(pushErr))
	reason, _ := ClosedReason(pushErr)
	assert.Equal(t, ReasonCancelled, reason)
}

func TestConnectorCloseReleasesBlockedConsumers(t *testing.T) {
	c, err := NewConnector("close-pop", 2, 1, 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Pop()
		}()
	}
	time.Sleep(blockWait)
	c.Close(ReasonUpstreamError)
	c.Close(ReasonCancelled)
	wg.Wait()

	for _, err := range errs {
		require.True(t, IsClosed(err))
		reason, _ := ClosedReason(err)
		assert.Equal(t, ReasonUpstreamError, reason)
	}
	closed, reason := c.Closed()
	assert.True(t, closed)
	assert.Equal(t, ReasonUpstreamError, reason)
}

func TestDataBufferRelease(t *testing.T) {
	buf := NewPooledDataBuffer(3, models.MustSchema("a"), 4)
	buf.Append(models.Row{1})
	assert.Equal(t, 1, buf.NumRows())
	buf.Release()
	assert.Equal(t, 0, buf.NumRows())

	EOF().Release()
	assert.True(t, EOF().IsEOF())
	assert.True(t, EOE().IsEOE())
	assert.True(t, EOE().IsControl())
	assert.False(t, buf.IsControl())
}
