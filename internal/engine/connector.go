package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ajitpratap0/stratus/pkg/metrics"
)

// Connector is a bounded FIFO of data buffers between an operator's
// producing workers and its parent's consuming workers.
//
// Each producer ends its stream by pushing EOF. When the last producer's EOF
// arrives the connector becomes terminated: consumers drain the remaining
// buffers and then see the EOF marker on every further Pop. Close cancels the
// connector; blocked and later callers get a ClosedError with the close
// reason.
type Connector struct {
	name      string
	capacity  int
	producers int
	consumers int

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	ring     []*DataBuffer
	head     int
	count    int

	eofReceived int
	eofQueued   bool
	eofPopped   bool
	closed      bool
	reason      Reason

	pushed prometheus.Counter
	popped prometheus.Counter
	depth  prometheus.Gauge
}

// NewConnector creates a connector holding at most capacity buffers
func NewConnector(name string, capacity, producers, consumers int) (*Connector, error) {
	if capacity < 1 {
		return nil, CapacityError("connector %q: capacity must be at least 1, got %d", name, capacity)
	}
	if producers < 1 || consumers < 1 {
		return nil, CapacityError("connector %q: needs at least one producer and one consumer, got %d/%d",
			name, producers, consumers)
	}
	if capacity < producers {
		return nil, CapacityError("connector %q: capacity %d is smaller than its %d producers",
			name, capacity, producers)
	}
	c := &Connector{
		name:      name,
		capacity:  capacity,
		producers: producers,
		consumers: consumers,
		ring:      make([]*DataBuffer, capacity),
		pushed:    metrics.BuffersPushed.WithLabelValues(name),
		popped:    metrics.BuffersPopped.WithLabelValues(name),
		depth:     metrics.ConnectorDepth.WithLabelValues(name),
	}
	c.notEmpty = sync.NewCond(&c.mu)
	c.notFull = sync.NewCond(&c.mu)
	return c, nil
}

// Name returns the connector name, which is the producing operator's name
func (c *Connector) Name() string { return c.name }

// Cap returns the capacity
func (c *Connector) Cap() int { return c.capacity }

// NumProducers returns the number of producing workers
func (c *Connector) NumProducers() int { return c.producers }

// NumConsumers returns the number of consuming workers
func (c *Connector) NumConsumers() int { return c.consumers }

// Len returns the number of buffers waiting
func (c *Connector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Closed reports whether Close was called and with which reason
func (c *Connector) Closed() (bool, Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.reason
}

// Push enqueues buf, blocking while the connector is full. Pushing EOF
// records the end of one producer's stream.
func (c *Connector) Push(buf *DataBuffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if buf.IsEOF() {
		if c.closed {
			return ClosedError(c.name, c.reason)
		}
		if c.eofQueued {
			return ClosedError(c.name, ReasonEndOfData)
		}
		c.eofReceived++
		if c.eofReceived >= c.producers {
			c.eofQueued = true
			c.notEmpty.Broadcast()
		}
		return nil
	}

	for {
		if c.closed {
			return ClosedError(c.name, c.reason)
		}
		if c.eofQueued {
			return ClosedError(c.name, ReasonEndOfData)
		}
		if c.count < c.capacity {
			break
		}
		c.notFull.Wait()
	}

	c.ring[(c.head+c.count)%c.capacity] = buf
	c.count++
	c.pushed.Inc()
	c.depth.Set(float64(c.count))
	c.notEmpty.Signal()
	return nil
}

// Pop dequeues the oldest buffer, blocking while the connector is empty.
// Once EOF has been returned every later Pop returns it again.
func (c *Connector) Pop() (*DataBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.eofPopped {
			return EOF(), nil
		}
		if c.closed {
			return nil, ClosedError(c.name, c.reason)
		}
		if c.count > 0 {
			buf := c.ring[c.head]
			c.ring[c.head] = nil
			c.head = (c.head + 1) % c.capacity
			c.count--
			c.popped.Inc()
			c.depth.Set(float64(c.count))
			c.notFull.Signal()
			return buf, nil
		}
		if c.eofQueued {
			c.eofPopped = true
			return EOF(), nil
		}
		c.notEmpty.Wait()
	}
}

// Close cancels the connector and wakes every blocked caller. Buffers still
// queued are released. Only the first call has an effect.
func (c *Connector) Close(reason Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.reason = reason
	for c.count > 0 {
		c.ring[c.head].Release()
		c.ring[c.head] = nil
		c.head = (c.head + 1) % c.capacity
		c.count--
	}
	c.depth.Set(0)
	c.notEmpty.Broadcast()
	c.notFull.Broadcast()
}
