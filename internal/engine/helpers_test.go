package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/stratus/pkg/config"
	"github.com/ajitpratap0/stratus/pkg/models"
)

var testSchema = models.MustSchema("id")

// hookLog collects hook invocations across a tree
type hookLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *hookLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *hookLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// recordOp is a pass-through pipeline operator that records its hooks
type recordOp struct {
	PipelineOp
	log      *hookLog
	preErr   error
	postErr  error
	children int
	pre      func(*PreContext) error
}

func newRecordOp(name string, log *hookLog) *recordOp {
	return &recordOp{PipelineOp: NewPipelineOp("record", name, 4), log: log, children: 1}
}

func (o *recordOp) MaxChildren() int { return o.children }

func (o *recordOp) PrepareNodePreAction(ctx *PreContext) error {
	o.log.add("pre:" + o.Name())
	if o.pre != nil {
		if err := o.pre(ctx); err != nil {
			return err
		}
	}
	return o.preErr
}

func (o *recordOp) PrepareNodePostAction(*PostContext) error {
	o.log.add("post:" + o.Name())
	return o.postErr
}

func (o *recordOp) Print(w io.Writer, showAll bool) {
	o.PipelineOp.Print(w, showAll)
	if showAll {
		fmt.Fprintln(w, "  recorded: true")
	}
}

func (o *recordOp) Run(ctx context.Context, w *Worker) error {
	return forward(w)
}

// forward copies every buffer of the first input to the output
func forward(w *Worker) error {
	if w.NumInputs() == 0 {
		return nil
	}
	for {
		buf, err := w.Pop()
		if err != nil {
			return err
		}
		if buf.IsEOF() {
			return nil
		}
		if err := w.Push(buf); err != nil {
			return err
		}
	}
}

// passOp is a parallel pass-through operator
type passOp struct {
	ParallelOp
}

func newPassOp(name string, workers, connectorSize int) *passOp {
	return &passOp{ParallelOp: NewParallelOp("pass", name, connectorSize, workers)}
}

func (o *passOp) Run(ctx context.Context, w *Worker) error {
	return forward(w)
}

// countSource pushes n single-row buffers; n < 0 pushes forever
type countSource struct {
	PipelineOp
	n      int64
	pushed atomic.Int64
}

func newCountSource(name string, n int64, connectorSize int) *countSource {
	return &countSource{PipelineOp: NewPipelineOp("count", name, connectorSize), n: n}
}

func (s *countSource) MaxChildren() int { return 0 }

func (s *countSource) Run(ctx context.Context, w *Worker) error {
	for i := int64(0); s.n < 0 || i < s.n; i++ {
		if err := w.Push(NewDataBuffer(i, testSchema, []models.Row{{i}})); err != nil {
			return err
		}
		s.pushed.Add(1)
	}
	return nil
}

// failOp forwards after buffers and then fails
type failOp struct {
	PipelineOp
	after int
}

var errBoom = errors.New("boom")

func (o *failOp) Run(ctx context.Context, w *Worker) error {
	for i := 0; ; i++ {
		buf, err := w.Pop()
		if err != nil {
			return err
		}
		if buf.IsEOF() {
			return nil
		}
		if i == o.after {
			return errBoom
		}
		if err := w.Push(buf); err != nil {
			return err
		}
	}
}

// panicOp panics on its first data buffer
type panicOp struct {
	PipelineOp
}

func (o *panicOp) Run(ctx context.Context, w *Worker) error {
	if _, err := w.Pop(); err != nil {
		return err
	}
	var counts map[string]int
	counts["rows"]++
	return nil
}

// takeOneOp forwards one buffer, then stops its subtree
type takeOneOp struct {
	PipelineOp
}

func (o *takeOneOp) Run(ctx context.Context, w *Worker) error {
	buf, err := w.Pop()
	if err != nil {
		return err
	}
	if !buf.IsEOF() {
		if err := w.Push(buf); err != nil {
			return err
		}
	}
	w.CloseInputs(ReasonCancelled)
	return nil
}

func newTestTree(t *testing.T) *ExecutionTree {
	t.Helper()
	cfg := config.DefaultEngineConfig()
	cfg.Execution.Seed = 5
	return NewExecutionTree(cfg, zaptest.NewLogger(t))
}

// chain links ops so that each is the child of the previous one and makes
// the first the root
func chain(t *testing.T, tree *ExecutionTree, ops ...Operator) []NodeID {
	t.Helper()
	ids := make([]NodeID, len(ops))
	for i, op := range ops {
		id, err := tree.AssociateNode(op)
		require.NoError(t, err)
		ids[i] = id
		if i > 0 {
			require.NoError(t, tree.AddChild(ids[i-1], id))
		}
	}
	require.NoError(t, tree.AssignRoot(ids[0]))
	return ids
}

// drainIDs reads the root until EOF and returns the buffer ids
func drainIDs(t *testing.T, it *Iterator) []int64 {
	t.Helper()
	var ids []int64
	for {
		buf, err := it.Next()
		if errors.Is(err, io.EOF) {
			return ids
		}
		require.NoError(t, err)
		if !buf.IsControl() {
			ids = append(ids, buf.ID())
		}
	}
}
