package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/stratus/pkg/models"
)

func TestPoolStats(t *testing.T) {
	p := New(
		func() *[]int {
			s := make([]int, 0, 4)
			return &s
		},
		func(s *[]int) { *s = (*s)[:0] },
	)

	a := p.Get()
	*a = append(*a, 1, 2)
	allocated, inUse, _, misses := p.Stats()
	assert.Equal(t, int64(1), allocated)
	assert.Equal(t, int64(1), inUse)
	assert.Equal(t, int64(1), misses)

	p.Put(a)
	_, inUse, _, _ = p.Stats()
	assert.Equal(t, int64(0), inUse)
	assert.Empty(t, *a, "reset runs before the object is pooled")
}

func TestGetRowSliceGrowsBorrowedSlice(t *testing.T) {
	_, before, _, _ := RowSliceStats()

	rows := GetRowSlice(4 * defaultRowSliceCap)
	assert.Empty(t, rows)
	assert.GreaterOrEqual(t, cap(rows), 4*defaultRowSliceCap)
	_, inUse, _, _ := RowSliceStats()
	assert.Equal(t, before+1, inUse)

	rows = append(rows, models.Row{1})
	PutRowSlice(rows)
	_, after, _, _ := RowSliceStats()
	assert.Equal(t, before, after)
}
