package ops

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/stratus/internal/engine"
	"github.com/ajitpratap0/stratus/internal/loader"
	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/models"
	"github.com/ajitpratap0/stratus/pkg/sampler"
)

// SourceOptions configures a source operator
type SourceOptions struct {
	// RowsPerBuffer overrides the value published by the tree
	RowsPerBuffer int `mapstructure:"rows_per_buffer"`
}

// SourceOp is a leaf that loads a table during preparation and emits the
// rows its sampler selects, one epoch after another. Each epoch ends with
// an end-of-epoch buffer; the number of epochs comes from ancestor repeat
// operators.
type SourceOp struct {
	engine.PipelineOp
	loader        loader.Loader
	opts          SourceOptions
	table         *models.Table
	selection     sampler.Sampler
	rowsPerBuffer int
	numRepeats    int64
}

// NewSourceOp creates a source over l. A nil sampler walks every row in order.
func NewSourceOp(name string, connectorSize int, l loader.Loader, s sampler.Sampler, opts SourceOptions) *SourceOp {
	op := &SourceOp{
		PipelineOp: engine.NewPipelineOp("source", name, connectorSize),
		loader:     l,
		opts:       opts,
		numRepeats: 1,
	}
	if s == nil {
		s = sampler.NewSequential(0, 0)
	}
	op.SetSampler(s)
	return op
}

func newSourceFromParams(p Params) (engine.Operator, error) {
	if p.Loader == nil {
		return nil, errors.New(errors.ErrorTypeConfiguration, "source operator requires a loader")
	}
	var opts SourceOptions
	if err := decodeOptions("source", p.Options, &opts); err != nil {
		return nil, err
	}
	if opts.RowsPerBuffer < 0 {
		return nil, errors.New(errors.ErrorTypeConfiguration, "rows_per_buffer cannot be negative")
	}
	return NewSourceOp(p.Name, p.ConnectorSize, p.Loader, p.Sampler, opts), nil
}

// MaxChildren returns 0; a source is always a leaf
func (s *SourceOp) MaxChildren() int { return 0 }

// OutputSchema returns the loaded table's schema; nil before preparation
func (s *SourceOp) OutputSchema() *models.Schema {
	if s.table == nil {
		return nil
	}
	return s.table.Schema
}

// NumRepeats returns the resolved epoch count; -1 repeats forever
func (s *SourceOp) NumRepeats() int64 { return s.numRepeats }

// PrepareNodePreAction loads the table and initializes this source's
// sampler for the epoch count published by ancestors
func (s *SourceOp) PrepareNodePreAction(ctx *engine.PreContext) error {
	s.rowsPerBuffer = s.opts.RowsPerBuffer
	if s.rowsPerBuffer == 0 {
		n, ok := scopeInt(ctx.Lookup(engine.ScopeRowsPerBuffer))
		if !ok || n <= 0 {
			return engine.ConfigurationError("source %q has no positive %s", s.Name(), engine.ScopeRowsPerBuffer)
		}
		s.rowsPerBuffer = int(n)
	}
	if n, ok := scopeInt(ctx.Lookup(engine.ScopeNumRepeats)); ok {
		s.numRepeats = n
	}

	table, err := s.loader.Load(ctx.Context())
	if err != nil {
		return errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("loader %s failed", s.loader.Name()))
	}
	if err := table.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("loader %s returned an inconsistent table", s.loader.Name()))
	}
	s.table = table

	// The attached sampler may be shared with other sources; this source
	// advances its own copy.
	smp := s.Sampler().Clone()
	if err := smp.Init(table.NumRows()); err != nil {
		return err
	}
	smp.SetSamplesPerBuffer(s.rowsPerBuffer)
	if s.numRepeats < 0 && smp.NumSamples() == 0 {
		return engine.ConfigurationError("source %q repeats forever over an empty selection", s.Name())
	}
	s.selection = smp

	ctx.Logger().Info("source loaded",
		zap.String("loader", s.loader.Name()),
		zap.Int64("rows", table.NumRows()),
		zap.Int64("samples_per_epoch", smp.NumSamples()),
		zap.Int64("num_repeats", s.numRepeats))
	return nil
}

// Run emits every epoch's selection followed by an end-of-epoch buffer
func (s *SourceOp) Run(ctx context.Context, w *engine.Worker) error {
	smp := s.selection
	var id int64
	for epoch := int64(0); s.numRepeats < 0 || epoch < s.numRepeats; epoch++ {
		if epoch > 0 {
			if err := smp.Reset(); err != nil {
				return err
			}
		}
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			ids, err := smp.Next()
			if errors.Is(err, sampler.ErrExhausted) {
				break
			}
			if err != nil {
				return err
			}
			buf := engine.NewPooledDataBuffer(id, s.table.Schema, len(ids))
			for _, i := range ids {
				buf.Append(s.table.Rows[i].Clone())
			}
			if err := w.Push(buf); err != nil {
				buf.Release()
				return err
			}
			id++
		}
		if err := w.PushEOE(); err != nil {
			return err
		}
	}
	return nil
}

// Print adds the loader and resolved settings
func (s *SourceOp) Print(w io.Writer, showAll bool) {
	s.PipelineOp.Print(w, showAll)
	if !showAll {
		return
	}
	fmt.Fprintf(w, "  loader: %s\n", s.loader.Name())
	fmt.Fprintf(w, "  rows_per_buffer: %d\n", s.rowsPerBuffer)
	fmt.Fprintf(w, "  num_repeats: %d\n", s.numRepeats)
}
