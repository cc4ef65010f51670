package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratus/pkg/errors"
)

func drain(t *testing.T, s Sampler) []int64 {
	t.Helper()
	var out []int64
	for {
		ids, err := s.Next()
		if errors.Is(err, ErrExhausted) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ids...)
	}
}

func TestSequential(t *testing.T) {
	s := NewSequential(2, 5)
	s.SetSamplesPerBuffer(2)
	require.NoError(t, s.Init(10))
	assert.Equal(t, int64(5), s.NumSamples())

	first, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, first)
	assert.Equal(t, []int64{4, 5, 6}, drain(t, s))

	require.NoError(t, s.Reset())
	assert.Equal(t, []int64{2, 3, 4, 5, 6}, drain(t, s))
}

func TestSequentialRejectsStartPastEnd(t *testing.T) {
	s := NewSequential(10, 0)
	err := s.Init(10)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSampler))
}

func TestNextBeforeInit(t *testing.T) {
	_, err := NewSequential(0, 0).Next()
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrExhausted))
}

func TestRandomIsSeededPermutation(t *testing.T) {
	a := NewRandom(7, false, 0)
	b := NewRandom(7, false, 0)
	require.NoError(t, a.Init(20))
	require.NoError(t, b.Init(20))

	ea, eb := drain(t, a), drain(t, b)
	assert.Equal(t, ea, eb)
	assert.ElementsMatch(t, seq(20), ea)

	require.NoError(t, a.Reset())
	next := drain(t, a)
	assert.ElementsMatch(t, seq(20), next)
	assert.NotEqual(t, ea, next)
}

func TestRandomWithReplacement(t *testing.T) {
	r := NewRandom(1, true, 50)
	require.NoError(t, r.Init(3))
	ids := drain(t, r)
	assert.Len(t, ids, 50)
	for _, id := range ids {
		assert.True(t, id >= 0 && id < 3)
	}
}

func TestRandomWithoutReplacementTooMany(t *testing.T) {
	assert.Error(t, NewRandom(1, false, 5).Init(3))
}

func TestSubset(t *testing.T) {
	s := NewSubset([]int64{4, 1, 3}, false, 0)
	require.NoError(t, s.Init(5))
	assert.Equal(t, []int64{4, 1, 3}, drain(t, s))

	assert.Error(t, NewSubset([]int64{9}, false, 0).Init(5))

	shuffled := NewSubset([]int64{0, 1, 2, 3, 4, 5}, true, 3)
	require.NoError(t, shuffled.Init(6))
	assert.ElementsMatch(t, seq(6), drain(t, shuffled))
}

func TestDistributedPartitions(t *testing.T) {
	var all []int64
	for shard := 0; shard < 3; shard++ {
		d := NewDistributed(3, shard, true, 42)
		require.NoError(t, d.Init(9))
		ids := drain(t, d)
		assert.Len(t, ids, 3)
		all = append(all, ids...)
	}
	assert.ElementsMatch(t, seq(9), all)
}

func TestDistributedPadsShortShards(t *testing.T) {
	d := NewDistributed(4, 3, false, 0)
	require.NoError(t, d.Init(10))
	assert.Equal(t, []int64{3, 7, 1}, drain(t, d))

	assert.Error(t, NewDistributed(2, 2, false, 0).Init(10))
}

func TestFromOptions(t *testing.T) {
	s, err := FromOptions("random", map[string]interface{}{"seed": "11", "num_samples": 4})
	require.NoError(t, err)
	r, ok := s.(*Random)
	require.True(t, ok)
	assert.Equal(t, int64(11), r.Seed)
	assert.Equal(t, int64(4), r.Count)

	_, err = FromOptions("weighted", nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	_, err = FromOptions("sequential", map[string]interface{}{"num_sample": 4})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestCloneIsIndependent(t *testing.T) {
	for _, s := range []Sampler{
		NewSequential(2, 0),
		NewRandom(5, false, 0),
		NewSubset([]int64{1, 3, 5, 7}, true, 9),
		NewDistributed(2, 1, true, 4),
	} {
		t.Run(s.String(), func(t *testing.T) {
			s.SetSamplesPerBuffer(2)
			require.NoError(t, s.Init(8))
			first := drain(t, s)

			c := s.Clone()
			assert.Equal(t, s.String(), c.String())
			_, err := c.Next()
			assert.Error(t, err, "a clone starts uninitialized")

			require.NoError(t, c.Init(8))
			ids, err := c.Next()
			require.NoError(t, err)
			assert.Len(t, ids, 2)
			assert.Equal(t, first, append(ids, drain(t, c)...))

			_, err = s.Next()
			assert.ErrorIs(t, err, ErrExhausted, "advancing the clone leaves the original alone")
		})
	}
}

func seq(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i)
	}
	return out
}
