package ops

import (
	"context"
	"fmt"
	"io"

	"github.com/ajitpratap0/stratus/internal/engine"
)

// RepeatOptions configures a repeat operator
type RepeatOptions struct {
	// Count is the number of epochs; -1 repeats forever
	Count int64 `mapstructure:"count"`
}

// RepeatOp replays its subtree Count times. It does not buffer rows: it
// publishes the epoch count to the sources below it, which replay their
// samplers, and forwards what they produce.
type RepeatOp struct {
	engine.PipelineOp
	count     int64
	effective int64
}

// NewRepeatOp creates a repeat operator
func NewRepeatOp(name string, connectorSize int, count int64) *RepeatOp {
	return &RepeatOp{PipelineOp: engine.NewPipelineOp("repeat", name, connectorSize), count: count}
}

func newRepeatFromParams(p Params) (engine.Operator, error) {
	if err := noPlugins("repeat", p); err != nil {
		return nil, err
	}
	opts := RepeatOptions{Count: -1}
	if err := decodeOptions("repeat", p.Options, &opts); err != nil {
		return nil, err
	}
	return NewRepeatOp(p.Name, p.ConnectorSize, opts.Count), nil
}

// PrepareNodePreAction publishes the effective epoch count to descendants
func (r *RepeatOp) PrepareNodePreAction(ctx *engine.PreContext) error {
	if r.count == 0 || r.count < -1 {
		return engine.ConfigurationError("repeat %q: count must be positive or -1, got %d", r.Name(), r.count)
	}
	outer := int64(1)
	if n, ok := scopeInt(ctx.Lookup(engine.ScopeNumRepeats)); ok {
		outer = n
	}
	if outer < 0 || r.count < 0 {
		r.effective = -1
	} else {
		r.effective = outer * r.count
	}
	ctx.Publish(engine.ScopeNumRepeats, r.effective)
	return nil
}

// Run forwards every buffer unchanged
func (r *RepeatOp) Run(ctx context.Context, w *engine.Worker) error {
	return passThrough(w)
}

// Print adds the configured and effective counts
func (r *RepeatOp) Print(w io.Writer, showAll bool) {
	r.PipelineOp.Print(w, showAll)
	if showAll {
		fmt.Fprintf(w, "  count: %d (effective %d)\n", r.count, r.effective)
	}
}
