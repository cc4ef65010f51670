package ops

import (
	"context"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/stratus/internal/engine"
	"github.com/ajitpratap0/stratus/pkg/config"
	"github.com/ajitpratap0/stratus/pkg/models"
)

// staticLoader serves a fixed table and counts loads
type staticLoader struct {
	table *models.Table
	loads atomic.Int32
}

func (l *staticLoader) Name() string { return "static" }

func (l *staticLoader) Load(context.Context) (*models.Table, error) {
	l.loads.Add(1)
	return l.table, nil
}

// rangeTable has n rows of (id, x) with x = id/2
func rangeTable(n int, columns ...string) *models.Table {
	if len(columns) == 0 {
		columns = []string{"id", "x"}
	}
	rows := make([]models.Row, n)
	for i := range rows {
		row := make(models.Row, len(columns))
		for j := range columns {
			if j == 0 {
				row[j] = int64(i)
			} else {
				row[j] = float64(i) / 2
			}
		}
		rows[i] = row
	}
	return &models.Table{Schema: models.MustSchema(columns...), Rows: rows}
}

func newSource(t *testing.T, n int, columns ...string) *SourceOp {
	t.Helper()
	return NewSourceOp("", 4, &staticLoader{table: rangeTable(n, columns...)}, nil, SourceOptions{})
}

func newTree(t *testing.T) *engine.ExecutionTree {
	t.Helper()
	cfg := config.DefaultEngineConfig()
	cfg.Execution.RowsPerBuffer = 4
	cfg.Execution.Seed = 11
	return engine.NewExecutionTree(cfg, zaptest.NewLogger(t))
}

// node describes a subtree for build
type node struct {
	op       engine.Operator
	children []node
}

func leaf(op engine.Operator) node { return node{op: op} }

func with(op engine.Operator, children ...node) node { return node{op: op, children: children} }

// build links the subtree and makes its top the root
func build(t *testing.T, tree *engine.ExecutionTree, n node) {
	t.Helper()
	require.NoError(t, tree.AssignRoot(link(t, tree, n)))
}

func link(t *testing.T, tree *engine.ExecutionTree, n node) engine.NodeID {
	t.Helper()
	id, err := tree.AssociateNode(n.op)
	require.NoError(t, err)
	for _, c := range n.children {
		require.NoError(t, tree.AddChild(id, link(t, tree, c)))
	}
	return id
}

// result is what a consumer saw from the root
type result struct {
	epochs  [][]models.Row
	sizes   []int
	schemas []*models.Schema
}

func (r result) rows() []models.Row {
	var out []models.Row
	for _, e := range r.epochs {
		out = append(out, e...)
	}
	return out
}

// execute prepares and runs the tree, collecting rows per epoch. Rows after
// the last end-of-epoch marker form a final epoch when there are any.
func execute(t *testing.T, tree *engine.ExecutionTree, root node) (result, error) {
	t.Helper()
	build(t, tree, root)
	ctx := context.Background()
	require.NoError(t, tree.Prepare(ctx))
	require.NoError(t, tree.Launch(ctx))
	it, err := tree.Iterator()
	require.NoError(t, err)

	var (
		res     result
		current []models.Row
	)
	for {
		buf, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = it.Close()
			return res, err
		}
		if buf.IsEOE() {
			res.epochs = append(res.epochs, current)
			current = nil
			continue
		}
		res.sizes = append(res.sizes, buf.NumRows())
		res.schemas = append(res.schemas, buf.Schema())
		for _, r := range buf.Rows() {
			current = append(current, r.Clone())
		}
		buf.Release()
	}
	if len(current) > 0 {
		res.epochs = append(res.epochs, current)
	}
	return res, tree.Wait()
}

func ids(rows []models.Row) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r[0].(int64)
	}
	return out
}

func seq(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i)
	}
	return out
}
