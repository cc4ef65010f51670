package engine

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/stratus/pkg/models"
	"github.com/ajitpratap0/stratus/pkg/sampler"
)

// Operator is one node of an execution tree.
//
// The tree runs a fixed base step before each preparation hook, so
// implementations only add their own setup. NumConsumers is the number of
// worker threads pulling from the operator's inputs and NumProducers the
// number pushing into its output connector.
type Operator interface {
	Name() string
	NumWorkers() int
	NumConsumers() int
	NumProducers() int
	// MaxChildren bounds the number of inputs: 0 for sources, -1 for
	// unbounded fan-in.
	MaxChildren() int
	PrepareNodePreAction(ctx *PreContext) error
	PrepareNodePostAction(ctx *PostContext) error
	Print(w io.Writer, showAll bool)
	// Run is one worker's loop. Returning nil ends the worker's stream; the
	// tree pushes EOF for it if the loop did not.
	Run(ctx context.Context, w *Worker) error
	Base() *BaseOp
}

// SchemaProvider is implemented by operators that know their output schema
// once prepared.
type SchemaProvider interface {
	OutputSchema() *models.Schema
}

// OpState tracks an operator through preparation
type OpState int

const (
	// OpUnprepared is the state of a freshly associated operator
	OpUnprepared OpState = iota
	// OpPreActionDone means the pre-order pass has visited the operator
	OpPreActionDone
	// OpPostActionDone means the post-order pass has validated the operator
	OpPostActionDone
	// OpReady means the operator's output connector exists
	OpReady
)

// String returns the state name used in logs and errors
func (s OpState) String() string {
	switch s {
	case OpUnprepared:
		return "unprepared"
	case OpPreActionDone:
		return "pre-action-done"
	case OpPostActionDone:
		return "post-action-done"
	case OpReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// BaseOp carries the state every operator shares. Concrete operators embed
// PipelineOp or ParallelOp, which embed BaseOp.
type BaseOp struct {
	kind          string
	name          string
	connectorSize int
	sampler       sampler.Sampler

	id     NodeID
	parent NodeID
	state  OpState
	out    *Connector
	logger *zap.Logger
}

// NewBaseOp creates the shared part of an operator. An empty name defaults
// to the kind.
func NewBaseOp(kind, name string, connectorSize int) BaseOp {
	if name == "" {
		name = kind
	}
	return BaseOp{
		kind:          kind,
		name:          name,
		connectorSize: connectorSize,
		id:            NoNode,
		parent:        NoNode,
		logger:        zap.NewNop(),
	}
}

// Base returns the shared operator state
func (b *BaseOp) Base() *BaseOp { return b }

// Name returns the operator's name, unique within its tree
func (b *BaseOp) Name() string { return b.name }

// Kind returns the operator type, e.g. "batch"
func (b *BaseOp) Kind() string { return b.kind }

// MaxChildren returns 1; sources and fan-in operators override it
func (b *BaseOp) MaxChildren() int { return 1 }

// ConnectorSize returns the capacity of the output connector
func (b *BaseOp) ConnectorSize() int { return b.connectorSize }

// SetConnectorSize changes the output capacity. It only has an effect
// before the post-action pass reaches the parent.
func (b *BaseOp) SetConnectorSize(n int) { b.connectorSize = n }

// Sampler returns the attached sampler, if any
func (b *BaseOp) Sampler() sampler.Sampler { return b.sampler }

// SetSampler attaches a sampler. Several operators may share one policy
// object; sources clone it before initializing, so the attached value is
// never advanced.
func (b *BaseOp) SetSampler(s sampler.Sampler) { b.sampler = s }

// ID returns the operator's node id in its tree
func (b *BaseOp) ID() NodeID { return b.id }

// ParentID returns the parent's node id, or NoNode for the root
func (b *BaseOp) ParentID() NodeID { return b.parent }

// State returns the preparation state
func (b *BaseOp) State() OpState { return b.state }

// Output returns the output connector; nil until the tree is prepared
func (b *BaseOp) Output() *Connector { return b.out }

// Logger returns a logger tagged with the operator name
func (b *BaseOp) Logger() *zap.Logger { return b.logger }

// PrepareNodePreAction does nothing; operators override it to read or
// publish scoped values
func (b *BaseOp) PrepareNodePreAction(*PreContext) error { return nil }

// PrepareNodePostAction does nothing; operators override it to validate
// their children
func (b *BaseOp) PrepareNodePostAction(*PostContext) error { return nil }

// Print renders the operator's identity and, with showAll, its connector
// and sampler settings.
func (b *BaseOp) Print(w io.Writer, showAll bool) {
	fmt.Fprintf(w, "[%d] %s: %s\n", b.id, b.kind, b.name)
	if !showAll {
		return
	}
	fmt.Fprintf(w, "  state: %s\n", b.state)
	fmt.Fprintf(w, "  connector_size: %d\n", b.connectorSize)
	if b.sampler != nil {
		fmt.Fprintf(w, "  sampler: %s\n", b.sampler)
	}
}

// PipelineOp is the single-worker variant: one worker consumes the inputs
// and produces the output.
type PipelineOp struct {
	BaseOp
}

// NewPipelineOp creates a single-worker operator base
func NewPipelineOp(kind, name string, connectorSize int) PipelineOp {
	return PipelineOp{BaseOp: NewBaseOp(kind, name, connectorSize)}
}

// NumWorkers returns 1
func (p *PipelineOp) NumWorkers() int { return 1 }

// NumConsumers returns 1
func (p *PipelineOp) NumConsumers() int { return 1 }

// NumProducers returns 1
func (p *PipelineOp) NumProducers() int { return 1 }

// Print adds the worker model to the base description
func (p *PipelineOp) Print(w io.Writer, showAll bool) {
	p.BaseOp.Print(w, showAll)
	if showAll {
		fmt.Fprintln(w, "  workers: 1 (pipeline)")
	}
}

// ParallelOp is the multi-worker variant: every worker pops from the same
// inputs and pushes into the same output.
type ParallelOp struct {
	BaseOp
	numWorkers int
}

// NewParallelOp creates a multi-worker operator base
func NewParallelOp(kind, name string, connectorSize, numWorkers int) ParallelOp {
	return ParallelOp{BaseOp: NewBaseOp(kind, name, connectorSize), numWorkers: numWorkers}
}

// NumWorkers returns the configured worker count
func (p *ParallelOp) NumWorkers() int { return p.numWorkers }

// NumConsumers returns the worker count; every worker pops from the inputs
func (p *ParallelOp) NumConsumers() int { return p.numWorkers }

// NumProducers returns the worker count; every worker pushes to the output
func (p *ParallelOp) NumProducers() int { return p.numWorkers }

// SetNumWorkers changes the worker count during the pre-action pass
func (p *ParallelOp) SetNumWorkers(n int) { p.numWorkers = n }

// Print adds the worker count to the base description
func (p *ParallelOp) Print(w io.Writer, showAll bool) {
	p.BaseOp.Print(w, showAll)
	if showAll {
		fmt.Fprintf(w, "  workers: %d (parallel)\n", p.numWorkers)
	}
}
