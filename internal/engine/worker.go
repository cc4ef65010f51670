package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/metrics"
)

// Worker is the handle an operator's Run loop uses to move buffers. Each
// worker goroutine gets its own.
type Worker struct {
	id      int
	op      Operator
	inputs  []*Connector
	output  *Connector
	logger  *zap.Logger
	eofSent bool
	rows    prometheus.Counter
}

// ID returns the worker's index within its operator
func (w *Worker) ID() int { return w.id }

// Logger returns a logger tagged with operator and worker id
func (w *Worker) Logger() *zap.Logger { return w.logger }

// NumInputs returns the number of child connectors
func (w *Worker) NumInputs() int { return len(w.inputs) }

// Pop pops from the first input
func (w *Worker) Pop() (*DataBuffer, error) {
	return w.PopFrom(0)
}

// PopFrom pops from input i
func (w *Worker) PopFrom(i int) (*DataBuffer, error) {
	if i < 0 || i >= len(w.inputs) {
		return nil, errors.Newf(errors.ErrorTypeInternal, "operator %q has no input %d", w.op.Name(), i)
	}
	return w.inputs[i].Pop()
}

// Push hands buf to the output connector
func (w *Worker) Push(buf *DataBuffer) error {
	if buf.IsEOF() {
		return w.PushEOF()
	}
	n := buf.NumRows()
	if err := w.output.Push(buf); err != nil {
		return err
	}
	w.rows.Add(float64(n))
	return nil
}

// PushEOE pushes the end-of-epoch marker
func (w *Worker) PushEOE() error {
	return w.output.Push(EOE())
}

// PushEOF ends this worker's output stream. Later calls are no-ops.
func (w *Worker) PushEOF() error {
	if w.eofSent {
		return nil
	}
	w.eofSent = true
	return w.output.Push(EOF())
}

// CloseInputs closes every child connector, stopping the subtree below
func (w *Worker) CloseInputs(reason Reason) {
	for _, in := range w.inputs {
		in.Close(reason)
	}
}

func newWorker(id int, op Operator, inputs []*Connector) *Worker {
	return &Worker{
		id:     id,
		op:     op,
		inputs: inputs,
		output: op.Base().out,
		logger: op.Base().logger.With(zap.Int("worker", id)),
		rows:   metrics.RowsProduced.WithLabelValues(op.Name()),
	}
}
