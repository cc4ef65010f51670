package ops

import (
	"context"
	"fmt"
	"io"

	"github.com/ajitpratap0/stratus/internal/engine"
	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/models"
)

// BatchOptions configures a batch operator
type BatchOptions struct {
	BatchSize     int  `mapstructure:"batch_size"`
	DropRemainder bool `mapstructure:"drop_remainder"`
}

// BatchOp groups BatchSize consecutive rows into one row whose columns hold
// the values of the group, as []interface{}. A short group at the end of an
// epoch is emitted unless DropRemainder is set; batches never span epochs.
type BatchOp struct {
	engine.PipelineOp
	opts BatchOptions
	out  *models.Schema
}

// NewBatchOp creates a batch operator
func NewBatchOp(name string, connectorSize int, opts BatchOptions) (*BatchOp, error) {
	if opts.BatchSize <= 0 {
		return nil, errors.Newf(errors.ErrorTypeConfiguration, "batch: batch_size must be positive, got %d", opts.BatchSize)
	}
	return &BatchOp{PipelineOp: engine.NewPipelineOp("batch", name, connectorSize), opts: opts}, nil
}

func newBatchFromParams(p Params) (engine.Operator, error) {
	if err := noPlugins("batch", p); err != nil {
		return nil, err
	}
	var opts BatchOptions
	if err := decodeOptions("batch", p.Options, &opts); err != nil {
		return nil, err
	}
	return NewBatchOp(p.Name, p.ConnectorSize, opts)
}

// PrepareNodePostAction adopts the child schema as the output schema
func (b *BatchOp) PrepareNodePostAction(ctx *engine.PostContext) error {
	if schemas := ctx.ChildSchemas(); len(schemas) > 0 {
		b.out = schemas[0]
	}
	return nil
}

// OutputSchema is the child's schema: batching keeps column names
func (b *BatchOp) OutputSchema() *models.Schema { return b.out }

// Run stacks rows into batches and flushes a partial batch at each epoch
// end unless drop_remainder is set
func (b *BatchOp) Run(ctx context.Context, w *engine.Worker) error {
	var (
		schema  *models.Schema
		pending []models.Row
		id      int64
	)
	flush := func(final bool) error {
		if len(pending) == 0 || (final && b.opts.DropRemainder && len(pending) < b.opts.BatchSize) {
			pending = pending[:0]
			return nil
		}
		out := engine.NewDataBuffer(id, schema, []models.Row{stack(pending, schema.Len())})
		id++
		pending = pending[:0]
		return w.Push(out)
	}

	for {
		buf, err := w.Pop()
		if err != nil {
			return err
		}
		if buf.IsEOF() {
			return flush(true)
		}
		if buf.IsEOE() {
			if err := flush(true); err != nil {
				return err
			}
			if err := w.PushEOE(); err != nil {
				return err
			}
			continue
		}
		if schema != nil && !schema.Equal(buf.Schema()) && len(pending) > 0 {
			buf.Release()
			return errors.Newf(errors.ErrorTypeData, "batch %q: schema changed from %s to %s within a batch",
				b.Name(), schema, buf.Schema())
		}
		schema = buf.Schema()
		for _, row := range buf.Rows() {
			pending = append(pending, row)
			if len(pending) == b.opts.BatchSize {
				if err := flush(false); err != nil {
					buf.Release()
					return err
				}
			}
		}
		buf.Release()
	}
}

// stack turns rows into one row of per-column value slices
func stack(rows []models.Row, width int) models.Row {
	out := make(models.Row, width)
	for c := 0; c < width; c++ {
		col := make([]interface{}, len(rows))
		for r, row := range rows {
			col[r] = row[c]
		}
		out[c] = col
	}
	return out
}

// Print adds the batch settings
func (b *BatchOp) Print(w io.Writer, showAll bool) {
	b.PipelineOp.Print(w, showAll)
	if showAll {
		fmt.Fprintf(w, "  batch_size: %d\n", b.opts.BatchSize)
		fmt.Fprintf(w, "  drop_remainder: %t\n", b.opts.DropRemainder)
	}
}
