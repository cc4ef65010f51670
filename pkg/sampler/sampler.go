// Package sampler produces the index selections that drive source operators.
// A sampler is initialized with the number of rows of the loaded table and
// then hands out indices one buffer's worth at a time until the epoch is
// exhausted; Reset starts the next epoch.
package sampler

import (
	"fmt"
	"math/rand"

	"github.com/ajitpratap0/stratus/pkg/config"
	"github.com/ajitpratap0/stratus/pkg/errors"
)

// ErrExhausted is returned by Next at the end of an epoch
var ErrExhausted = errors.New(errors.ErrorTypeSampler, "sampler exhausted")

// DefaultSamplesPerBuffer is used until SetSamplesPerBuffer is called
const DefaultSamplesPerBuffer = 64

// Sampler selects row indices for a source operator. Implementations are not
// safe for concurrent use. A sampler attached to several operators is a
// policy: each source advances its own Clone.
type Sampler interface {
	// Init prepares the first epoch over a table of numRows rows
	Init(numRows int64) error
	// Next returns the indices of the next buffer or ErrExhausted
	Next() ([]int64, error)
	// Reset starts a new epoch
	Reset() error
	// NumSamples returns the number of indices per epoch
	NumSamples() int64
	// SetSamplesPerBuffer sets how many indices Next returns at most
	SetSamplesPerBuffer(n int)
	// Clone returns an uninitialized sampler with the same settings
	Clone() Sampler
	String() string
}

// cursor hands out an epoch's indices in chunks
type cursor struct {
	ids       []int64
	pos       int
	perBuffer int
	numRows   int64
	ready     bool
}

// SetSamplesPerBuffer sets the chunk size Next hands out; n <= 0 is ignored
func (c *cursor) SetSamplesPerBuffer(n int) {
	if n > 0 {
		c.perBuffer = n
	}
}

// NumSamples returns the size of the current epoch's selection
func (c *cursor) NumSamples() int64 {
	return int64(len(c.ids))
}

// Next returns the next chunk of indices or ErrExhausted
func (c *cursor) Next() ([]int64, error) {
	if !c.ready {
		return nil, errors.New(errors.ErrorTypeSampler, "sampler used before Init")
	}
	if c.pos >= len(c.ids) {
		return nil, ErrExhausted
	}
	n := c.perBuffer
	if n <= 0 {
		n = DefaultSamplesPerBuffer
	}
	end := c.pos + n
	if end > len(c.ids) {
		end = len(c.ids)
	}
	out := make([]int64, end-c.pos)
	copy(out, c.ids[c.pos:end])
	c.pos = end
	return out, nil
}

func (c *cursor) start(numRows int64, ids []int64) {
	c.numRows = numRows
	c.ids = ids
	c.pos = 0
	c.ready = true
}

// Sequential walks rows in order starting at Start. A Count of 0 takes
// every remaining row.
type Sequential struct {
	cursor
	Start int64 `mapstructure:"start"`
	Count int64 `mapstructure:"num_samples"`
}

// NewSequential creates a sequential sampler
func NewSequential(start, numSamples int64) *Sequential {
	return &Sequential{Start: start, Count: numSamples}
}

// Init builds the first epoch's selection
func (s *Sequential) Init(numRows int64) error {
	if s.Start < 0 || s.Count < 0 {
		return errors.Newf(errors.ErrorTypeSampler, "sequential: start and num_samples must be non-negative")
	}
	if numRows > 0 && s.Start >= numRows {
		return errors.Newf(errors.ErrorTypeSampler, "sequential: start %d is past the last row (%d rows)", s.Start, numRows)
	}
	end := numRows
	if s.Count > 0 && s.Start+s.Count < end {
		end = s.Start + s.Count
	}
	ids := make([]int64, 0, maxInt64(end-s.Start, 0))
	for i := s.Start; i < end; i++ {
		ids = append(ids, i)
	}
	s.start(numRows, ids)
	return nil
}

// Reset starts the next epoch
func (s *Sequential) Reset() error {
	s.pos = 0
	return nil
}

// Clone returns an uninitialized copy with the same settings
func (s *Sequential) Clone() Sampler {
	return &Sequential{cursor: cursor{perBuffer: s.perBuffer}, Start: s.Start, Count: s.Count}
}

func (s *Sequential) String() string {
	return fmt.Sprintf("sequential(start=%d, num_samples=%d)", s.Start, s.Count)
}

// Random draws a fresh permutation each epoch. With Replacement it draws
// Count indices independently.
type Random struct {
	cursor
	Seed        int64 `mapstructure:"seed"`
	Replacement bool  `mapstructure:"replacement"`
	Count       int64 `mapstructure:"num_samples"`
	epoch       int64
}

// NewRandom creates a random sampler
func NewRandom(seed int64, replacement bool, numSamples int64) *Random {
	return &Random{Seed: seed, Replacement: replacement, Count: numSamples}
}

// Init builds the first epoch's selection
func (r *Random) Init(numRows int64) error {
	if r.Count < 0 {
		return errors.Newf(errors.ErrorTypeSampler, "random: num_samples must be non-negative")
	}
	if r.Count > numRows && !r.Replacement {
		return errors.Newf(errors.ErrorTypeSampler, "random: num_samples %d exceeds %d rows without replacement",
			r.Count, numRows)
	}
	r.epoch = 0
	r.start(numRows, r.draw(numRows))
	return nil
}

func (r *Random) draw(numRows int64) []int64 {
	rng := rand.New(rand.NewSource(r.Seed + r.epoch))
	n := r.Count
	if n == 0 {
		n = numRows
	}
	ids := make([]int64, 0, n)
	if numRows == 0 {
		return ids
	}
	if r.Replacement {
		for i := int64(0); i < n; i++ {
			ids = append(ids, rng.Int63n(numRows))
		}
		return ids
	}
	for _, v := range rng.Perm(int(numRows))[:n] {
		ids = append(ids, int64(v))
	}
	return ids
}

// Reset starts the next epoch
func (r *Random) Reset() error {
	if !r.ready {
		return errors.New(errors.ErrorTypeSampler, "random: Reset before Init")
	}
	r.epoch++
	r.start(r.numRows, r.draw(r.numRows))
	return nil
}

// Clone returns an uninitialized copy with the same settings
func (r *Random) Clone() Sampler {
	return &Random{cursor: cursor{perBuffer: r.perBuffer}, Seed: r.Seed, Replacement: r.Replacement, Count: r.Count}
}

func (r *Random) String() string {
	return fmt.Sprintf("random(seed=%d, replacement=%t, num_samples=%d)", r.Seed, r.Replacement, r.Count)
}

// Subset samples a fixed list of indices, optionally shuffled per epoch
type Subset struct {
	cursor
	Indices []int64 `mapstructure:"indices"`
	Shuffle bool    `mapstructure:"shuffle"`
	Seed    int64   `mapstructure:"seed"`
	epoch   int64
}

// NewSubset creates a subset sampler
func NewSubset(indices []int64, shuffle bool, seed int64) *Subset {
	return &Subset{Indices: indices, Shuffle: shuffle, Seed: seed}
}

// Init builds the first epoch's selection
func (s *Subset) Init(numRows int64) error {
	for _, i := range s.Indices {
		if i < 0 || i >= numRows {
			return errors.Newf(errors.ErrorTypeSampler, "subset: index %d out of range [0, %d)", i, numRows)
		}
	}
	s.epoch = 0
	s.start(numRows, s.order())
	return nil
}

func (s *Subset) order() []int64 {
	ids := make([]int64, len(s.Indices))
	copy(ids, s.Indices)
	if s.Shuffle {
		rng := rand.New(rand.NewSource(s.Seed + s.epoch))
		rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	}
	return ids
}

// Reset starts the next epoch
func (s *Subset) Reset() error {
	s.epoch++
	s.start(s.numRows, s.order())
	return nil
}

// Clone returns an uninitialized copy with the same settings
func (s *Subset) Clone() Sampler {
	indices := make([]int64, len(s.Indices))
	copy(indices, s.Indices)
	return &Subset{cursor: cursor{perBuffer: s.perBuffer}, Indices: indices, Shuffle: s.Shuffle, Seed: s.Seed}
}

func (s *Subset) String() string {
	return fmt.Sprintf("subset(%d indices, shuffle=%t)", len(s.Indices), s.Shuffle)
}

// Distributed gives shard ShardID of NumShards an equal slice of the rows.
// Every shard must use the same seed so the shards partition one permutation.
// Short shards wrap around to the start of the permutation.
type Distributed struct {
	cursor
	NumShards int   `mapstructure:"num_shards"`
	ShardID   int   `mapstructure:"shard_id"`
	Shuffle   bool  `mapstructure:"shuffle"`
	Seed      int64 `mapstructure:"seed"`
	epoch     int64
}

// NewDistributed creates a distributed sampler
func NewDistributed(numShards, shardID int, shuffle bool, seed int64) *Distributed {
	return &Distributed{NumShards: numShards, ShardID: shardID, Shuffle: shuffle, Seed: seed}
}

// Init builds the first epoch's selection
func (d *Distributed) Init(numRows int64) error {
	if d.NumShards < 1 {
		return errors.Newf(errors.ErrorTypeSampler, "distributed: num_shards must be at least 1")
	}
	if d.ShardID < 0 || d.ShardID >= d.NumShards {
		return errors.Newf(errors.ErrorTypeSampler, "distributed: shard_id %d out of range [0, %d)", d.ShardID, d.NumShards)
	}
	d.epoch = 0
	d.start(numRows, d.shard(numRows))
	return nil
}

func (d *Distributed) shard(numRows int64) []int64 {
	perm := make([]int64, numRows)
	for i := range perm {
		perm[i] = int64(i)
	}
	if d.Shuffle {
		rng := rand.New(rand.NewSource(d.Seed + d.epoch))
		rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
	}
	if numRows == 0 {
		return perm
	}
	per := (numRows + int64(d.NumShards) - 1) / int64(d.NumShards)
	ids := make([]int64, 0, per)
	for k := int64(0); k < per; k++ {
		ids = append(ids, perm[(k*int64(d.NumShards)+int64(d.ShardID))%numRows])
	}
	return ids
}

// Reset starts the next epoch
func (d *Distributed) Reset() error {
	d.epoch++
	d.start(d.numRows, d.shard(d.numRows))
	return nil
}

// Clone returns an uninitialized copy with the same settings
func (d *Distributed) Clone() Sampler {
	return &Distributed{
		cursor:    cursor{perBuffer: d.perBuffer},
		NumShards: d.NumShards,
		ShardID:   d.ShardID,
		Shuffle:   d.Shuffle,
		Seed:      d.Seed,
	}
}

func (d *Distributed) String() string {
	return fmt.Sprintf("distributed(shard %d/%d, shuffle=%t)", d.ShardID, d.NumShards, d.Shuffle)
}

// FromOptions builds a sampler from its type name and decoded options, as
// found in pipeline files.
func FromOptions(kind string, options map[string]interface{}) (Sampler, error) {
	var s Sampler
	switch kind {
	case "sequential":
		s = &Sequential{}
	case "random":
		s = &Random{}
	case "subset":
		s = &Subset{}
	case "distributed":
		s = &Distributed{NumShards: 1}
	default:
		return nil, errors.Newf(errors.ErrorTypeNotFound, "unknown sampler %q", kind)
	}
	if len(options) > 0 {
		if err := config.DecodeOptions(options, s); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, fmt.Sprintf("invalid %s sampler options", kind))
		}
	}
	return s, nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
