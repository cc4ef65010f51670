package ops

import (
	"context"
	"fmt"
	"io"

	"github.com/ajitpratap0/stratus/internal/engine"
	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/models"
)

// TakeOptions configures a take operator
type TakeOptions struct {
	Count int64 `mapstructure:"count"`
}

// TakeOp forwards at most Count rows. Once the limit is reached it ends its
// output and closes its input, which stops the subtree below it.
type TakeOp struct {
	engine.PipelineOp
	count int64
	out   *models.Schema
}

// NewTakeOp creates a take operator
func NewTakeOp(name string, connectorSize int, count int64) (*TakeOp, error) {
	if count < 0 {
		return nil, errors.Newf(errors.ErrorTypeConfiguration, "take: count cannot be negative, got %d", count)
	}
	return &TakeOp{PipelineOp: engine.NewPipelineOp("take", name, connectorSize), count: count}, nil
}

func newTakeFromParams(p Params) (engine.Operator, error) {
	if err := noPlugins("take", p); err != nil {
		return nil, err
	}
	var opts TakeOptions
	if err := decodeOptions("take", p.Options, &opts); err != nil {
		return nil, err
	}
	return NewTakeOp(p.Name, p.ConnectorSize, opts.Count)
}

// PrepareNodePostAction adopts the child schema
func (t *TakeOp) PrepareNodePostAction(ctx *engine.PostContext) error {
	if schemas := ctx.ChildSchemas(); len(schemas) > 0 {
		t.out = schemas[0]
	}
	return nil
}

// OutputSchema is the child's schema
func (t *TakeOp) OutputSchema() *models.Schema { return t.out }

// Run forwards rows up to the count, then ends its stream and cancels
// its subtree
func (t *TakeOp) Run(ctx context.Context, w *engine.Worker) error {
	remaining := t.count
	for remaining > 0 {
		buf, err := w.Pop()
		if err != nil {
			return err
		}
		if buf.IsEOF() {
			return nil
		}
		if buf.IsEOE() {
			if err := w.PushEOE(); err != nil {
				return err
			}
			continue
		}
		if int64(buf.NumRows()) > remaining {
			rows := make([]models.Row, remaining)
			copy(rows, buf.Rows()[:remaining])
			id, schema := buf.ID(), buf.Schema()
			buf.Release()
			buf = engine.NewDataBuffer(id, schema, rows)
		}
		remaining -= int64(buf.NumRows())
		if err := w.Push(buf); err != nil {
			return err
		}
	}
	if err := w.PushEOF(); err != nil {
		return err
	}
	w.CloseInputs(engine.ReasonCancelled)
	return nil
}

// Print adds the count
func (t *TakeOp) Print(w io.Writer, showAll bool) {
	t.PipelineOp.Print(w, showAll)
	if showAll {
		fmt.Fprintf(w, "  count: %d\n", t.count)
	}
}
