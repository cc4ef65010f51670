// Package pool provides typed object pooling for Stratus.
// It wraps sync.Pool with type safety, reset hooks and statistics, and
// exposes pre-configured pools for the row slices that flow through
// connectors.
//
// Example usage:
//
//	rows := pool.GetRowSlice(64)
//	rows = append(rows, row)
//	...
//	pool.PutRowSlice(rows)
//
//	// Using custom pools
//	myPool := pool.New(
//	    func() *MyType { return &MyType{} },
//	    func(obj *MyType) { obj.Reset() },
//	)
//	obj := myPool.Get()
//	defer myPool.Put(obj)
package pool

import (
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/stratus/pkg/models"
)

// Pool represents a generic object pool with type safety.
// It wraps sync.Pool with additional features like statistics tracking
// and automatic reset functionality. The pool is safe for concurrent use.
//
// Type parameter T can be any type, but pointer types are recommended
// for efficiency.
type Pool[T any] struct {
	pool  sync.Pool
	new   func() T
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		hits      int64
		misses    int64
	}
}

// New creates a new typed pool with custom allocation and reset functions.
// The new function is called when the pool is empty and a new object is needed.
// The reset function is called before returning an object to the pool.
func New[T any](new func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{
		new:   new,
		reset: reset,
	}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		atomic.AddInt64(&p.stats.misses, 1)
		return new()
	}
	return p
}

// Get retrieves an object from the pool, allocating one if the pool is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	before := atomic.LoadInt64(&p.stats.misses)
	obj := p.pool.Get().(T)
	if atomic.LoadInt64(&p.stats.misses) == before {
		atomic.AddInt64(&p.stats.hits, 1)
	}
	return obj
}

// Put returns an object to the pool for reuse, running the reset hook first.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns allocation count, objects in use, cache hits and misses.
func (p *Pool[T]) Stats() (allocated, inUse, hits, misses int64) {
	return atomic.LoadInt64(&p.stats.allocated),
		atomic.LoadInt64(&p.stats.inUse),
		atomic.LoadInt64(&p.stats.hits),
		atomic.LoadInt64(&p.stats.misses)
}

const defaultRowSliceCap = 64

var rowSlicePool = New(
	func() *[]models.Row {
		s := make([]models.Row, 0, defaultRowSliceCap)
		return &s
	},
	func(s *[]models.Row) {
		clear(*s)
		*s = (*s)[:0]
	},
)

// GetRowSlice returns an empty row slice with at least the given capacity.
func GetRowSlice(capacity int) []models.Row {
	sp := rowSlicePool.Get()
	if cap(*sp) < capacity {
		// Grow the borrowed slice so the object stays accounted as in use
		// until PutRowSlice.
		*sp = make([]models.Row, 0, capacity)
	}
	return (*sp)[:0]
}

// PutRowSlice returns a row slice for reuse. The caller must not touch the
// slice afterwards.
func PutRowSlice(rows []models.Row) {
	if rows == nil {
		return
	}
	rowSlicePool.Put(&rows)
}

// RowSliceStats reports statistics of the shared row slice pool
func RowSliceStats() (allocated, inUse, hits, misses int64) {
	return rowSlicePool.Stats()
}
