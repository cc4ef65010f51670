package engine

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/metrics"
)

// Launch starts every operator's workers. The tree must be prepared.
// Cancelling ctx stops the tree as Stop does.
func (t *ExecutionTree) Launch(ctx context.Context) error {
	t.mu.Lock()
	if t.state != TreeReady {
		state := t.state
		t.mu.Unlock()
		return ConfigurationError("launch called on a tree in state %s", state)
	}
	t.state = TreeExecuting
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	workers := 0
	for _, n := range t.nodes {
		inputs := make([]*Connector, len(n.children))
		for i, c := range n.children {
			inputs[i] = t.nodes[c].op.Base().out
		}
		for i := 0; i < n.op.NumWorkers(); i++ {
			w := newWorker(i, n.op, inputs)
			t.group.Go(func() error { return t.runWorker(runCtx, w) })
			workers++
		}
	}
	t.mu.Unlock()

	t.logger.Info("execution tree launched", zap.Int("workers", workers))

	go func() {
		select {
		case <-ctx.Done():
			t.logger.Info("execution tree cancelled", zap.Error(ctx.Err()))
			t.closeAll(ReasonCancelled)
		case <-t.done:
		}
	}()

	go func() {
		err := t.group.Wait()
		t.mu.Lock()
		t.err = err
		if err != nil {
			t.state = TreeFailed
		} else {
			t.state = TreeFinished
		}
		t.mu.Unlock()
		close(t.done)
		cancel()
		if err != nil {
			t.logger.Error("execution tree failed", zap.Error(err))
		} else {
			t.logger.Info("execution tree finished")
		}
	}()
	return nil
}

// runWorker runs one worker loop and turns its outcome into an exit reason.
// A ClosedError or the launch context's own cancellation is an orderly exit;
// any other error or a panic tears the tree down.
func (t *ExecutionTree) runWorker(ctx context.Context, w *Worker) error {
	panicked, err := runOp(ctx, w)
	exit := WorkerExit{Operator: w.op.Name(), WorkerID: w.id, Reason: ReasonEndOfData}

	if err == nil {
		err = w.PushEOF()
	}
	switch {
	case panicked:
		exit.Reason = ReasonPanicked
		exit.Err = err
	case err == nil:
	case IsClosed(err):
		reason, _ := ClosedReason(err)
		if reason == ReasonEndOfData {
			reason = ReasonCancelled
		}
		exit.Reason = reason
		exit.Err = err
		w.CloseInputs(reason)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		exit.Reason = ReasonCancelled
		exit.Err = err
		w.CloseInputs(ReasonCancelled)
	default:
		exit.Reason = ReasonFailed
		exit.Err = err
	}
	t.recordExit(w, exit)

	if exit.Reason != ReasonFailed && exit.Reason != ReasonPanicked {
		return nil
	}
	t.closeAll(ReasonUpstreamError)
	return errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("operator %q worker %d failed", w.op.Name(), w.id)).
		WithDetail("operator", w.op.Name()).
		WithDetail("worker", w.id)
}

// runOp calls the operator's Run and turns a panic into an internal error
func runOp(ctx context.Context, w *Worker) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = errors.Newf(errors.ErrorTypeInternal, "panic: %v", r).
				WithDetail("stack", string(debug.Stack()))
		}
	}()
	return false, w.op.Run(ctx, w)
}

func (t *ExecutionTree) recordExit(w *Worker, exit WorkerExit) {
	t.mu.Lock()
	t.exits = append(t.exits, exit)
	t.mu.Unlock()

	metrics.WorkerExits.WithLabelValues(exit.Operator, exit.Reason.String()).Inc()
	fields := []zap.Field{zap.String("reason", exit.Reason.String())}
	switch exit.Reason {
	case ReasonEndOfData:
		w.logger.Debug("worker exited", fields...)
	case ReasonCancelled:
		w.logger.Info("worker exited", fields...)
	case ReasonUpstreamError:
		w.logger.Warn("worker exited", append(fields, zap.Error(exit.Err))...)
	default:
		w.logger.Error("worker exited", append(fields, zap.Error(exit.Err))...)
	}
}

// closeAll closes every connector in the tree
func (t *ExecutionTree) closeAll(reason Reason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range t.nodes {
		if out := n.op.Base().out; out != nil {
			out.Close(reason)
		}
	}
}

// Stop closes every connector with ReasonCancelled. Workers exit as they
// observe the closure; Wait returns once they have.
func (t *ExecutionTree) Stop() {
	t.logger.Info("stopping execution tree")
	t.closeAll(ReasonCancelled)
}

// Wait blocks until every worker has exited and returns the first worker
// failure. Cancellation is not a failure.
func (t *ExecutionTree) Wait() error {
	t.mu.Lock()
	state, launched := t.state, t.cancel != nil
	t.mu.Unlock()
	if state != TreeExecuting && state != TreeFinished && state != TreeFailed {
		return ConfigurationError("wait called on a tree in state %s", state)
	}
	if state == TreeFailed && !launched {
		return ConfigurationError("wait called on a tree that failed to prepare")
	}
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Exits returns the worker exits recorded so far
func (t *ExecutionTree) Exits() []WorkerExit {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]WorkerExit, len(t.exits))
	copy(out, t.exits)
	return out
}
