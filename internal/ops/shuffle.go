package ops

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/ajitpratap0/stratus/internal/engine"
	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/models"
)

// ShuffleOptions configures a shuffle operator
type ShuffleOptions struct {
	BufferSize int `mapstructure:"buffer_size"`
	// Seed fixes the shuffle order; 0 uses the tree seed, or the clock when
	// that is 0 as well
	Seed int64 `mapstructure:"seed"`
}

// ShuffleOp keeps up to BufferSize rows and emits a uniformly chosen one for
// every row that arrives once the buffer is full. The buffer drains at the
// end of every epoch.
type ShuffleOp struct {
	engine.PipelineOp
	opts          ShuffleOptions
	seed          int64
	rowsPerBuffer int
	out           *models.Schema
}

// NewShuffleOp creates a shuffle operator
func NewShuffleOp(name string, connectorSize int, opts ShuffleOptions) (*ShuffleOp, error) {
	if opts.BufferSize < 2 {
		return nil, errors.Newf(errors.ErrorTypeConfiguration, "shuffle: buffer_size must be at least 2, got %d", opts.BufferSize)
	}
	return &ShuffleOp{PipelineOp: engine.NewPipelineOp("shuffle", name, connectorSize), opts: opts}, nil
}

func newShuffleFromParams(p Params) (engine.Operator, error) {
	if err := noPlugins("shuffle", p); err != nil {
		return nil, err
	}
	var opts ShuffleOptions
	if err := decodeOptions("shuffle", p.Options, &opts); err != nil {
		return nil, err
	}
	return NewShuffleOp(p.Name, p.ConnectorSize, opts)
}

// Seed returns the seed resolved during preparation
func (s *ShuffleOp) Seed() int64 { return s.seed }

// PrepareNodePreAction resolves the seed and rows per buffer
func (s *ShuffleOp) PrepareNodePreAction(ctx *engine.PreContext) error {
	s.seed = s.opts.Seed
	if s.seed == 0 {
		if n, ok := scopeInt(ctx.Lookup(engine.ScopeSeed)); ok {
			s.seed = n
		}
	}
	if s.seed == 0 {
		s.seed = time.Now().UnixNano()
	}
	s.rowsPerBuffer = s.opts.BufferSize
	if n, ok := scopeInt(ctx.Lookup(engine.ScopeRowsPerBuffer)); ok && n > 0 {
		s.rowsPerBuffer = int(n)
	}
	return nil
}

// PrepareNodePostAction adopts the child schema
func (s *ShuffleOp) PrepareNodePostAction(ctx *engine.PostContext) error {
	if schemas := ctx.ChildSchemas(); len(schemas) > 0 {
		s.out = schemas[0]
	}
	return nil
}

// OutputSchema is the child's schema
func (s *ShuffleOp) OutputSchema() *models.Schema { return s.out }

// Run emits rows from a shuffle reservoir and drains it at each epoch end
func (s *ShuffleOp) Run(ctx context.Context, w *engine.Worker) error {
	rng := rand.New(rand.NewSource(s.seed))
	reservoir := make([]models.Row, 0, s.opts.BufferSize)
	var (
		schema *models.Schema
		out    *engine.DataBuffer
		id     int64
	)
	emit := func(r models.Row) error {
		if out == nil {
			out = engine.NewPooledDataBuffer(id, schema, s.rowsPerBuffer)
			id++
		}
		out.Append(r)
		if out.NumRows() < s.rowsPerBuffer {
			return nil
		}
		full := out
		out = nil
		return w.Push(full)
	}
	flushOut := func() error {
		if out == nil {
			return nil
		}
		partial := out
		out = nil
		return w.Push(partial)
	}
	drain := func() error {
		rng.Shuffle(len(reservoir), func(i, j int) { reservoir[i], reservoir[j] = reservoir[j], reservoir[i] })
		for _, r := range reservoir {
			if err := emit(r); err != nil {
				return err
			}
		}
		reservoir = reservoir[:0]
		return flushOut()
	}

	for {
		buf, err := w.Pop()
		if err != nil {
			return err
		}
		if buf.IsEOF() {
			return drain()
		}
		if buf.IsEOE() {
			if err := drain(); err != nil {
				return err
			}
			if err := w.PushEOE(); err != nil {
				return err
			}
			continue
		}
		if schema != nil && !schema.Equal(buf.Schema()) {
			if err := drain(); err != nil {
				buf.Release()
				return err
			}
		}
		schema = buf.Schema()
		for _, r := range buf.Rows() {
			if len(reservoir) < s.opts.BufferSize {
				reservoir = append(reservoir, r)
				continue
			}
			j := rng.Intn(len(reservoir))
			victim := reservoir[j]
			reservoir[j] = r
			if err := emit(victim); err != nil {
				buf.Release()
				return err
			}
		}
		buf.Release()
	}
}

// Print adds the buffer size and seed
func (s *ShuffleOp) Print(w io.Writer, showAll bool) {
	s.PipelineOp.Print(w, showAll)
	if showAll {
		fmt.Fprintf(w, "  buffer_size: %d\n", s.opts.BufferSize)
		fmt.Fprintf(w, "  seed: %d\n", s.seed)
	}
}
