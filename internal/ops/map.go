package ops

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ajitpratap0/stratus/internal/engine"
	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/models"
)

// MapOptions configures a map operator
type MapOptions struct {
	InputColumns []string `mapstructure:"input_columns"`
	// OutputColumns renames the transformed columns; defaults to InputColumns
	OutputColumns []string    `mapstructure:"output_columns"`
	Operations    []Operation `mapstructure:"operations"`
}

// MapOp applies a chain of transforms to selected columns. Its workers pop
// from the same child connector, so buffers may leave in a different order
// than they arrived.
type MapOp struct {
	engine.ParallelOp
	opts MapOptions
	fn   Transform
	out  *models.Schema

	mu    sync.Mutex
	plans map[*models.Schema]*mapPlan
}

type mapPlan struct {
	schema *models.Schema
	cols   []int
}

// NewMapOp creates a map operator
func NewMapOp(name string, connectorSize, workers int, opts MapOptions) (*MapOp, error) {
	if len(opts.InputColumns) == 0 {
		return nil, errors.New(errors.ErrorTypeConfiguration, "map: input_columns is required")
	}
	if len(opts.OutputColumns) == 0 {
		opts.OutputColumns = opts.InputColumns
	}
	if len(opts.OutputColumns) != len(opts.InputColumns) {
		return nil, errors.Newf(errors.ErrorTypeConfiguration, "map: %d output columns for %d input columns",
			len(opts.OutputColumns), len(opts.InputColumns))
	}
	if len(opts.Operations) == 0 {
		return nil, errors.New(errors.ErrorTypeConfiguration, "map: operations is required")
	}
	fn, err := compose(opts.Operations)
	if err != nil {
		return nil, err
	}
	return &MapOp{
		ParallelOp: engine.NewParallelOp("map", name, connectorSize, workers),
		opts:       opts,
		fn:         fn,
		plans:      make(map[*models.Schema]*mapPlan),
	}, nil
}

func newMapFromParams(p Params) (engine.Operator, error) {
	if err := noPlugins("map", p); err != nil {
		return nil, err
	}
	var opts MapOptions
	if err := decodeOptions("map", p.Options, &opts); err != nil {
		return nil, err
	}
	return NewMapOp(p.Name, p.ConnectorSize, p.Workers, opts)
}

// OutputSchema returns the mapped schema when the child's schema is known
func (m *MapOp) OutputSchema() *models.Schema { return m.out }

// PrepareNodePostAction checks the input columns against the child schema
func (m *MapOp) PrepareNodePostAction(ctx *engine.PostContext) error {
	schemas := ctx.ChildSchemas()
	if len(schemas) == 0 {
		return engine.ConfigurationError("map %q requires a child", m.Name())
	}
	if schemas[0] == nil {
		return nil
	}
	plan, err := m.planFor(schemas[0])
	if err != nil {
		return engine.ConfigurationError("map %q: %v", m.Name(), err)
	}
	m.out = plan.schema
	return nil
}

// planFor resolves column positions for an input schema. Plans are cached
// per schema since buffers of one stream share their schema.
func (m *MapOp) planFor(in *models.Schema) (*mapPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.plans[in]; ok {
		return p, nil
	}
	if in == nil {
		return nil, errors.New(errors.ErrorTypeData, "buffer has no schema")
	}
	names := in.Columns()
	cols := make([]int, len(m.opts.InputColumns))
	for k, c := range m.opts.InputColumns {
		i, ok := in.Index(c)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "input column %q not in %s", c, in)
		}
		cols[k] = i
		names[i] = m.opts.OutputColumns[k]
	}
	schema, err := models.NewSchema(names...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "output columns collide")
	}
	p := &mapPlan{schema: schema, cols: cols}
	m.plans[in] = p
	return p, nil
}

// Run applies the transform chain to every data buffer it pops
func (m *MapOp) Run(ctx context.Context, w *engine.Worker) error {
	for {
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
		out, err := m.apply(buf)
		buf.Release()
		if err != nil {
			return err
		}
		if err := w.Push(out); err != nil {
			out.Release()
			return err
		}
	}
}

func (m *MapOp) apply(buf *engine.DataBuffer) (*engine.DataBuffer, error) {
	plan, err := m.planFor(buf.Schema())
	if err != nil {
		return nil, err
	}
	out := engine.NewPooledDataBuffer(buf.ID(), plan.schema, buf.NumRows())
	for _, row := range buf.Rows() {
		for _, c := range plan.cols {
			v, err := m.fn(row[c])
			if err != nil {
				out.Release()
				return nil, errors.Wrap(err, errors.ErrorTypeData,
					fmt.Sprintf("map %q: column %q of buffer %d", m.Name(), buf.Schema().Column(c), buf.ID()))
			}
			row[c] = v
		}
		out.Append(row)
	}
	return out, nil
}

// Print adds the columns and operations
func (m *MapOp) Print(w io.Writer, showAll bool) {
	m.ParallelOp.Print(w, showAll)
	if !showAll {
		return
	}
	names := make([]string, len(m.opts.Operations))
	for i, o := range m.opts.Operations {
		names[i] = o.Name
	}
	fmt.Fprintf(w, "  columns: %s -> %s\n", strings.Join(m.opts.InputColumns, ","), strings.Join(m.opts.OutputColumns, ","))
	fmt.Fprintf(w, "  operations: %s\n", strings.Join(names, " | "))
}
