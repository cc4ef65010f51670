package ops

import (
	"context"
	"fmt"
	"io"

	"github.com/ajitpratap0/stratus/internal/engine"
	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/models"
)

// ZipOp joins its children row by row, concatenating their columns in child
// order. Column names must not collide. An epoch ends when any child ends
// its epoch; the surplus rows of the other children are discarded up to
// their own end of epoch. The output ends when any child ends.
type ZipOp struct {
	engine.PipelineOp
	out *models.Schema
}

// NewZipOp creates a zip operator
func NewZipOp(name string, connectorSize int) *ZipOp {
	return &ZipOp{PipelineOp: engine.NewPipelineOp("zip", name, connectorSize)}
}

func newZipFromParams(p Params) (engine.Operator, error) {
	if err := noPlugins("zip", p); err != nil {
		return nil, err
	}
	if err := decodeOptions("zip", p.Options, &struct{}{}); err != nil {
		return nil, err
	}
	return NewZipOp(p.Name, p.ConnectorSize), nil
}

// MaxChildren returns -1; zip accepts any number of inputs
func (z *ZipOp) MaxChildren() int { return -1 }

// OutputSchema returns the joined schema when every child's schema is known
func (z *ZipOp) OutputSchema() *models.Schema { return z.out }

// PrepareNodePostAction joins the child schemas, which must be disjoint
func (z *ZipOp) PrepareNodePostAction(ctx *engine.PostContext) error {
	schemas := ctx.ChildSchemas()
	if len(schemas) < 2 {
		return engine.ConfigurationError("zip %q needs at least 2 children, has %d", z.Name(), len(schemas))
	}
	for _, s := range schemas {
		if s == nil {
			return nil
		}
	}
	joined, err := joinSchemas(schemas)
	if err != nil {
		return engine.ConfigurationError("zip %q: %v", z.Name(), err)
	}
	z.out = joined
	return nil
}

func joinSchemas(schemas []*models.Schema) (*models.Schema, error) {
	var names []string
	for _, s := range schemas {
		names = append(names, s.Columns()...)
	}
	joined, err := models.NewSchema(names...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "children share column names")
	}
	return joined, nil
}

// zipInput tracks one child's unconsumed rows
type zipInput struct {
	rows   []models.Row
	schema *models.Schema
	atEOE  bool
}

// Run concatenates one row from each child per output row
func (z *ZipOp) Run(ctx context.Context, w *engine.Worker) error {
	inputs := make([]*zipInput, w.NumInputs())
	for i := range inputs {
		inputs[i] = &zipInput{}
	}
	var (
		id     int64
		joined *models.Schema
		from   []*models.Schema
	)

	for {
		// Fill every queue, or learn that its child ended the epoch.
		epochDone := false
		for i, in := range inputs {
			for len(in.rows) == 0 && !in.atEOE {
				buf, err := w.PopFrom(i)
				if err != nil {
					return err
				}
				switch {
				case buf.IsEOF():
					return z.finish(w)
				case buf.IsEOE():
					in.atEOE = true
				default:
					in.schema = buf.Schema()
					in.rows = append(in.rows, buf.Rows()...)
					buf.Release()
				}
			}
			if in.atEOE {
				epochDone = true
			}
		}

		if epochDone {
			for i, in := range inputs {
				for !in.atEOE {
					buf, err := w.PopFrom(i)
					if err != nil {
						return err
					}
					if buf.IsEOF() {
						return z.finish(w)
					}
					in.atEOE = buf.IsEOE()
					buf.Release()
				}
				in.rows = nil
				in.atEOE = false
			}
			if err := w.PushEOE(); err != nil {
				return err
			}
			continue
		}

		if !sameSchemas(from, inputs) {
			schemas := make([]*models.Schema, len(inputs))
			for i, in := range inputs {
				schemas[i] = in.schema
			}
			s, err := joinSchemas(schemas)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("zip %q", z.Name()))
			}
			joined, from = s, schemas
		}

		n := len(inputs[0].rows)
		for _, in := range inputs[1:] {
			if len(in.rows) < n {
				n = len(in.rows)
			}
		}
		out := engine.NewPooledDataBuffer(id, joined, n)
		id++
		for r := 0; r < n; r++ {
			row := make(models.Row, 0, joined.Len())
			for _, in := range inputs {
				row = append(row, in.rows[r]...)
			}
			out.Append(row)
		}
		for _, in := range inputs {
			in.rows = in.rows[n:]
		}
		if err := w.Push(out); err != nil {
			out.Release()
			return err
		}
	}
}

// finish ends the output at the first child EOF and stops the other children
func (z *ZipOp) finish(w *engine.Worker) error {
	if err := w.PushEOF(); err != nil {
		return err
	}
	w.CloseInputs(engine.ReasonCancelled)
	return nil
}

func sameSchemas(from []*models.Schema, inputs []*zipInput) bool {
	if len(from) != len(inputs) {
		return false
	}
	for i, in := range inputs {
		if from[i] != in.schema {
			return false
		}
	}
	return true
}

// Print adds the joined columns
func (z *ZipOp) Print(w io.Writer, showAll bool) {
	z.PipelineOp.Print(w, showAll)
	if showAll && z.out != nil {
		fmt.Fprintf(w, "  columns: %s\n", z.out)
	}
}
