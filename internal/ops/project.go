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

// ProjectOptions configures a project operator
type ProjectOptions struct {
	Columns []string `mapstructure:"columns"`
}

// ProjectOp keeps the named columns, in the given order
type ProjectOp struct {
	engine.PipelineOp
	schema *models.Schema

	mu    sync.Mutex
	plans map[*models.Schema][]int
}

// NewProjectOp creates a project operator
func NewProjectOp(name string, connectorSize int, opts ProjectOptions) (*ProjectOp, error) {
	if len(opts.Columns) == 0 {
		return nil, errors.New(errors.ErrorTypeConfiguration, "project: columns is required")
	}
	schema, err := models.NewSchema(opts.Columns...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfiguration, "project: invalid columns")
	}
	return &ProjectOp{
		PipelineOp: engine.NewPipelineOp("project", name, connectorSize),
		schema:     schema,
		plans:      make(map[*models.Schema][]int),
	}, nil
}

func newProjectFromParams(p Params) (engine.Operator, error) {
	if err := noPlugins("project", p); err != nil {
		return nil, err
	}
	var opts ProjectOptions
	if err := decodeOptions("project", p.Options, &opts); err != nil {
		return nil, err
	}
	return NewProjectOp(p.Name, p.ConnectorSize, opts)
}

// OutputSchema returns the projected columns
func (p *ProjectOp) OutputSchema() *models.Schema { return p.schema }

// PrepareNodePostAction checks that every projected column exists
func (p *ProjectOp) PrepareNodePostAction(ctx *engine.PostContext) error {
	schemas := ctx.ChildSchemas()
	if len(schemas) == 0 || schemas[0] == nil {
		return nil
	}
	if _, err := p.indices(schemas[0]); err != nil {
		return engine.ConfigurationError("project %q: %v", p.Name(), err)
	}
	return nil
}

func (p *ProjectOp) indices(in *models.Schema) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx, ok := p.plans[in]; ok {
		return idx, nil
	}
	if in == nil {
		return nil, errors.New(errors.ErrorTypeData, "buffer has no schema")
	}
	idx := make([]int, p.schema.Len())
	for k := range idx {
		i, ok := in.Index(p.schema.Column(k))
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "column %q not in %s", p.schema.Column(k), in)
		}
		idx[k] = i
	}
	p.plans[in] = idx
	return idx, nil
}

// Run keeps the projected columns of each row
func (p *ProjectOp) Run(ctx context.Context, w *engine.Worker) error {
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
		idx, err := p.indices(buf.Schema())
		if err != nil {
			buf.Release()
			return err
		}
		out := engine.NewPooledDataBuffer(buf.ID(), p.schema, buf.NumRows())
		for _, row := range buf.Rows() {
			r := make(models.Row, len(idx))
			for k, i := range idx {
				r[k] = row[i]
			}
			out.Append(r)
		}
		buf.Release()
		if err := w.Push(out); err != nil {
			out.Release()
			return err
		}
	}
}

// Print adds the projected columns
func (p *ProjectOp) Print(w io.Writer, showAll bool) {
	p.PipelineOp.Print(w, showAll)
	if showAll {
		fmt.Fprintf(w, "  columns: %s\n", strings.Join(p.schema.Columns(), ","))
	}
}
