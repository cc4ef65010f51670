package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stratus/pkg/metrics"
	"github.com/ajitpratap0/stratus/pkg/observability"
)

// Prepare runs the two preparation passes. It may be called once, after the
// tree is fully linked. The first failing hook aborts preparation and its
// error, naming the operator and phase, is returned; the tree is then
// unusable.
func (t *ExecutionTree) Prepare(ctx context.Context) (err error) {
	t.mu.Lock()
	if t.state != TreeBuilding {
		state := t.state
		t.mu.Unlock()
		return ConfigurationError("prepare called on a tree in state %s", state)
	}
	if err := t.checkLinked(); err != nil {
		t.mu.Unlock()
		return err
	}
	t.state = TreePreparing
	t.mu.Unlock()

	timer := metrics.NewTimer("prepare")
	ctx, span := observability.StartSpan(ctx, "tree.prepare",
		attribute.String("stratus.tree_id", t.id),
		attribute.Int("stratus.operators", len(t.nodes)),
	)
	t.logger.Info("preparing execution tree", zap.Int("operators", len(t.nodes)))

	defer func() {
		span.End(err)
		metrics.PrepareLatency.WithLabelValues(metrics.Status(err)).Observe(timer.Stop().Seconds())

		t.mu.Lock()
		defer t.mu.Unlock()
		if err != nil {
			t.state = TreeFailed
			t.logger.Error("execution tree preparation failed", zap.Error(err))
			return
		}
		for _, n := range t.nodes {
			n.op.Base().state = OpReady
		}
		t.state = TreeReady
		observability.RecordTreePrepared(ctx, t.id)
		t.logger.Info("execution tree ready", zap.Duration("duration", timer.Stop()))
	}()

	if err = t.preOrder(ctx, t.root, nil); err != nil {
		return err
	}
	if err = t.postOrder(ctx, t.root); err != nil {
		return err
	}

	// The root has no parent to create its connector; the consumer is the
	// single reader.
	root := t.nodes[t.root].op
	if err = checkWorkers(root); err != nil {
		return phaseError(root, PhasePostAction, err)
	}
	out, err := NewConnector(root.Name(), root.Base().connectorSize, root.NumProducers(), 1)
	if err != nil {
		return phaseError(root, PhasePostAction, err)
	}
	root.Base().out = out
	t.rootOut = out
	return nil
}

// checkLinked verifies that a root is assigned and every operator hangs
// below it. Callers hold t.mu.
func (t *ExecutionTree) checkLinked() error {
	if len(t.nodes) == 0 {
		return ConfigurationError("execution tree has no operators")
	}
	if t.root == NoNode {
		return ConfigurationError("execution tree has no root")
	}
	reachable := 0
	stack := []NodeID{t.root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		reachable++
		stack = append(stack, t.nodes[id].children...)
	}
	if reachable != len(t.nodes) {
		for _, n := range t.nodes {
			if n.parent == NoNode && n.op.Base().id != t.root {
				return ConfigurationError("operator %q is not linked to the root", n.op.Name())
			}
		}
		return ConfigurationError("%d operators are not linked to the root", len(t.nodes)-reachable)
	}
	return nil
}

func (t *ExecutionTree) preOrder(ctx context.Context, id NodeID, parentScope *scope) error {
	n := t.nodes[id]
	op := n.op
	err := observability.TraceOperatorPhase(ctx, op.Name(), PhasePreAction, func(ctx context.Context) error {
		pc, err := t.basePreAction(ctx, id, parentScope)
		if err != nil {
			return err
		}
		return op.PrepareNodePreAction(pc)
	})
	if err != nil {
		return phaseError(op, PhasePreAction, err)
	}
	op.Base().state = OpPreActionDone

	for _, c := range n.children {
		if err := t.preOrder(ctx, c, n.scope); err != nil {
			return err
		}
	}
	return nil
}

// basePreAction is the setup every operator gets before its own pre-action
func (t *ExecutionTree) basePreAction(ctx context.Context, id NodeID, parentScope *scope) (*PreContext, error) {
	n := t.nodes[id]
	if st := n.op.Base().state; st != OpUnprepared {
		return nil, ConfigurationError("pre-action invoked in state %s", st)
	}
	if n.parent != NoNode && t.nodes[n.parent].op.Base().state != OpPreActionDone {
		return nil, ConfigurationError("pre-action invoked before the parent's pre-action")
	}
	if parentScope == nil {
		parentScope = newScope(nil)
		parentScope.values[ScopeSeed] = t.cfg.Execution.Seed
		parentScope.values[ScopeRowsPerBuffer] = t.cfg.Execution.RowsPerBuffer
	}
	n.scope = newScope(parentScope)
	return &PreContext{ctx: ctx, tree: t, id: id, scope: n.scope}, nil
}

func (t *ExecutionTree) postOrder(ctx context.Context, id NodeID) error {
	n := t.nodes[id]
	for _, c := range n.children {
		if err := t.postOrder(ctx, c); err != nil {
			return err
		}
	}

	op := n.op
	err := observability.TraceOperatorPhase(ctx, op.Name(), PhasePostAction, func(ctx context.Context) error {
		pc, err := t.basePostAction(ctx, id)
		if err != nil {
			return err
		}
		return op.PrepareNodePostAction(pc)
	})
	if err != nil {
		return phaseError(op, PhasePostAction, err)
	}
	op.Base().state = OpPostActionDone
	return nil
}

// basePostAction is the setup every operator gets before its own
// post-action: it validates the children and creates their connectors,
// each consumed by this operator's workers.
func (t *ExecutionTree) basePostAction(ctx context.Context, id NodeID) (*PostContext, error) {
	n := t.nodes[id]
	op := n.op
	if st := op.Base().state; st != OpPreActionDone {
		return nil, ConfigurationError("post-action invoked in state %s", st)
	}

	limit := op.MaxChildren()
	switch {
	case limit == 0 && len(n.children) > 0:
		return nil, ConfigurationError("source operator %q cannot have children, has %d", op.Name(), len(n.children))
	case limit > 0 && len(n.children) > limit:
		return nil, ConfigurationError("operator %q accepts at most %d children, has %d", op.Name(), limit, len(n.children))
	}

	consumers := op.NumConsumers()
	for _, cid := range n.children {
		child := t.nodes[cid].op
		if st := child.Base().state; st != OpPostActionDone {
			return nil, ConfigurationError("child %q has not completed its post-action (%s)", child.Name(), st)
		}
		if err := checkWorkers(child); err != nil {
			return nil, err
		}
		out, err := NewConnector(child.Name(), child.Base().connectorSize, child.NumProducers(), consumers)
		if err != nil {
			return nil, err
		}
		child.Base().out = out
	}
	return &PostContext{ctx: ctx, tree: t, id: id}, nil
}

func checkWorkers(op Operator) error {
	if op.NumWorkers() < 1 {
		return ConfigurationError("operator %q declares %d workers", op.Name(), op.NumWorkers())
	}
	if op.NumProducers() < 1 {
		return ConfigurationError("operator %q declares %d producers", op.Name(), op.NumProducers())
	}
	return nil
}
