package ops

import (
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratus/internal/engine"
	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/models"
	"github.com/ajitpratap0/stratus/pkg/sampler"
)

func TestSourceEmitsOneEpoch(t *testing.T) {
	src := newSource(t, 10)
	res, err := execute(t, newTree(t), leaf(src))
	require.NoError(t, err)

	require.Len(t, res.epochs, 1)
	assert.Equal(t, seq(10), ids(res.epochs[0]))
	assert.Equal(t, []int{4, 4, 2}, res.sizes)
	assert.Equal(t, int64(1), src.NumRepeats())
	assert.Equal(t, int32(1), src.loader.(*staticLoader).loads.Load())
	assert.True(t, src.OutputSchema().Equal(models.MustSchema("id", "x")))
}

func TestSourceRowsPerBufferOption(t *testing.T) {
	src := NewSourceOp("src", 4, &staticLoader{table: rangeTable(5)}, nil, SourceOptions{RowsPerBuffer: 2})
	res, err := execute(t, newTree(t), leaf(src))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, res.sizes)
}

func TestSourceRandomSampler(t *testing.T) {
	src := NewSourceOp("src", 4, &staticLoader{table: rangeTable(10)}, sampler.NewRandom(3, false, 0), SourceOptions{})
	res, err := execute(t, newTree(t), with(NewRepeatOp("repeat", 4, 2), leaf(src)))
	require.NoError(t, err)

	require.Len(t, res.epochs, 2)
	for _, epoch := range res.epochs {
		got := ids(epoch)
		sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
		assert.Equal(t, seq(10), got, "each epoch is a permutation")
	}
}

func TestSourceRejectsEndlessEmptySelection(t *testing.T) {
	tree := newTree(t)
	src := NewSourceOp("src", 4, &staticLoader{table: rangeTable(0)}, nil, SourceOptions{})
	build(t, tree, with(NewRepeatOp("forever", 4, -1), leaf(src)))
	err := tree.Prepare(context.Background())
	assert.True(t, engine.IsConfiguration(err), "got %v", err)
}

func TestRepeatMultipliesNestedCounts(t *testing.T) {
	src := newSource(t, 3)
	outer := NewRepeatOp("outer", 4, 2)
	inner := NewRepeatOp("inner", 4, 3)
	res, err := execute(t, newTree(t), with(outer, with(inner, leaf(src))))
	require.NoError(t, err)

	assert.Equal(t, int64(6), src.NumRepeats())
	require.Len(t, res.epochs, 6)
	for _, e := range res.epochs {
		assert.Equal(t, seq(3), ids(e))
	}
}

func TestRepeatValidatesCount(t *testing.T) {
	tree := newTree(t)
	build(t, tree, with(NewRepeatOp("zero", 4, 0), leaf(newSource(t, 3))))
	assert.True(t, engine.IsConfiguration(tree.Prepare(context.Background())))
}

func TestTakeStopsEndlessRepeat(t *testing.T) {
	take, err := NewTakeOp("take", 4, 25)
	require.NoError(t, err)
	tree := newTree(t)
	res, err := execute(t, tree, with(take, with(NewRepeatOp("forever", 4, -1), leaf(newSource(t, 10)))))
	require.NoError(t, err)

	rows := res.rows()
	require.Len(t, rows, 25)
	assert.Equal(t, seq(5), ids(rows[20:]))
	assert.Len(t, res.epochs, 3)

	reasons := map[string]engine.Reason{}
	for _, e := range tree.Exits() {
		reasons[e.Operator] = e.Reason
	}
	assert.Equal(t, engine.ReasonEndOfData, reasons["take"])
	assert.Equal(t, engine.ReasonCancelled, reasons["source"])
}

func TestTakeZero(t *testing.T) {
	take, err := NewTakeOp("take", 4, 0)
	require.NoError(t, err)
	res, err := execute(t, newTree(t), with(take, leaf(newSource(t, 10))))
	require.NoError(t, err)
	assert.Empty(t, res.rows())

	_, err = NewTakeOp("take", 4, -1)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

func TestMapParallel(t *testing.T) {
	m, err := NewMapOp("double", 4, 3, MapOptions{
		InputColumns:  []string{"x"},
		OutputColumns: []string{"x2"},
		Operations:    []Operation{{Name: "scale", Args: map[string]interface{}{"factor": 2}}},
	})
	require.NoError(t, err)
	res, err := execute(t, newTree(t), with(m, leaf(newSource(t, 20))))
	require.NoError(t, err)

	rows := res.rows()
	require.Len(t, rows, 20)
	sort.Slice(rows, func(i, j int) bool { return rows[i][0].(int64) < rows[j][0].(int64) })
	for i, r := range rows {
		assert.Equal(t, float64(i), r[1])
	}
	assert.Equal(t, []string{"id", "x2"}, m.OutputSchema().Columns())
	for _, s := range res.schemas {
		assert.Same(t, m.OutputSchema(), s)
	}
}

func TestMapRejectsUnknownColumnDuringPrepare(t *testing.T) {
	m, err := NewMapOp("m", 4, 2, MapOptions{
		InputColumns: []string{"missing"},
		Operations:   []Operation{{Name: "identity"}},
	})
	require.NoError(t, err)
	tree := newTree(t)
	build(t, tree, with(m, leaf(newSource(t, 4))))
	err = tree.Prepare(context.Background())
	assert.True(t, engine.IsConfiguration(err), "got %v", err)
	assert.Equal(t, engine.TreeFailed, tree.State())
}

func TestMapFailureTearsDownTree(t *testing.T) {
	m, err := NewMapOp("lower", 4, 2, MapOptions{
		InputColumns: []string{"x"},
		Operations:   []Operation{{Name: "lowercase"}},
	})
	require.NoError(t, err)
	_, err = execute(t, newTree(t), with(m, leaf(newSource(t, 50))))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData), "got %v", err)
}

func TestBatch(t *testing.T) {
	b, err := NewBatchOp("batch", 4, BatchOptions{BatchSize: 4})
	require.NoError(t, err)
	res, err := execute(t, newTree(t), with(b, leaf(newSource(t, 10))))
	require.NoError(t, err)

	rows := res.rows()
	require.Len(t, rows, 3)
	assert.Equal(t, []interface{}{int64(0), int64(1), int64(2), int64(3)}, rows[0][0])
	assert.Equal(t, []interface{}{int64(8), int64(9)}, rows[2][0])
	assert.Equal(t, []interface{}{4.0, 4.5}, rows[2][1])
	assert.True(t, b.OutputSchema().Equal(models.MustSchema("id", "x")))
}

func TestBatchDoesNotSpanEpochs(t *testing.T) {
	b, err := NewBatchOp("batch", 4, BatchOptions{BatchSize: 4, DropRemainder: true})
	require.NoError(t, err)
	res, err := execute(t, newTree(t), with(b, with(NewRepeatOp("repeat", 4, 2), leaf(newSource(t, 10)))))
	require.NoError(t, err)

	require.Len(t, res.epochs, 2)
	for _, e := range res.epochs {
		require.Len(t, e, 2)
		assert.Equal(t, []interface{}{int64(4), int64(5), int64(6), int64(7)}, e[1][0])
	}

	_, err = NewBatchOp("batch", 4, BatchOptions{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

func TestShuffleIsSeededPermutation(t *testing.T) {
	run := func() []int64 {
		s, err := NewShuffleOp("shuffle", 4, ShuffleOptions{BufferSize: 5, Seed: 9})
		require.NoError(t, err)
		res, err := execute(t, newTree(t), with(s, leaf(newSource(t, 30))))
		require.NoError(t, err)
		require.Len(t, res.epochs, 1)
		return ids(res.epochs[0])
	}
	first := run()
	assert.Equal(t, first, run(), "same seed, same order")

	sorted := append([]int64(nil), first...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	assert.Equal(t, seq(30), sorted)
}

func TestShuffleSeedFallsBackToTreeSeed(t *testing.T) {
	s, err := NewShuffleOp("shuffle", 4, ShuffleOptions{BufferSize: 3})
	require.NoError(t, err)
	_, err = execute(t, newTree(t), with(s, leaf(newSource(t, 5))))
	require.NoError(t, err)
	assert.Equal(t, int64(11), s.Seed())

	_, err = NewShuffleOp("shuffle", 4, ShuffleOptions{BufferSize: 1})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

func TestProject(t *testing.T) {
	p, err := NewProjectOp("project", 4, ProjectOptions{Columns: []string{"x", "id"}})
	require.NoError(t, err)
	res, err := execute(t, newTree(t), with(p, leaf(newSource(t, 3))))
	require.NoError(t, err)
	assert.Equal(t, []models.Row{{0.0, int64(0)}, {0.5, int64(1)}, {1.0, int64(2)}}, res.rows())

	p, err = NewProjectOp("project", 4, ProjectOptions{Columns: []string{"nope"}})
	require.NoError(t, err)
	tree := newTree(t)
	build(t, tree, with(p, leaf(newSource(t, 3))))
	assert.True(t, engine.IsConfiguration(tree.Prepare(context.Background())))
}

func TestZip(t *testing.T) {
	z := NewZipOp("zip", 4)
	left := newSource(t, 10)
	right := NewSourceOp("labels", 4, &staticLoader{table: rangeTable(6, "label", "weight")}, nil, SourceOptions{})
	res, err := execute(t, newTree(t), with(z, leaf(left), leaf(right)))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "x", "label", "weight"}, z.OutputSchema().Columns())
	rows := res.rows()
	require.Len(t, rows, 6)
	for i, r := range rows {
		assert.Equal(t, models.Row{int64(i), float64(i) / 2, int64(i), float64(i) / 2}, r)
	}
}

func TestZipAcrossEpochs(t *testing.T) {
	z := NewZipOp("zip", 4)
	left := newSource(t, 5)
	right := NewSourceOp("labels", 4, &staticLoader{table: rangeTable(3, "label")}, nil, SourceOptions{})
	res, err := execute(t, newTree(t), with(NewRepeatOp("repeat", 4, 2), with(z, leaf(left), leaf(right))))
	require.NoError(t, err)

	require.Len(t, res.epochs, 2)
	for _, e := range res.epochs {
		assert.Equal(t, seq(3), ids(e))
	}
}

func TestZipSourcesSharingSampler(t *testing.T) {
	shared := sampler.NewSequential(0, 0)
	z := NewZipOp("zip", 4)
	left := NewSourceOp("features", 4, &staticLoader{table: rangeTable(8)}, shared, SourceOptions{})
	right := NewSourceOp("labels", 4, &staticLoader{table: rangeTable(8, "label")}, shared, SourceOptions{})
	res, err := execute(t, newTree(t), with(z, leaf(left), leaf(right)))
	require.NoError(t, err)

	rows := res.rows()
	require.Len(t, rows, 8)
	for i, r := range rows {
		assert.Equal(t, models.Row{int64(i), float64(i) / 2, int64(i)}, r)
	}
	_, err = shared.Next()
	assert.Error(t, err, "the shared policy itself is never initialized")
}

func TestZipValidation(t *testing.T) {
	tree := newTree(t)
	build(t, tree, with(NewZipOp("zip", 4), leaf(newSource(t, 3)), leaf(newSource(t, 3))))
	err := tree.Prepare(context.Background())
	assert.True(t, engine.IsConfiguration(err), "colliding columns: %v", err)

	tree = newTree(t)
	build(t, tree, with(NewZipOp("zip", 4), leaf(newSource(t, 3))))
	err = tree.Prepare(context.Background())
	assert.True(t, engine.IsConfiguration(err), "single child: %v", err)
}

func TestPrintShowsOperatorSettings(t *testing.T) {
	b, err := NewBatchOp("batch", 4, BatchOptions{BatchSize: 8})
	require.NoError(t, err)
	tree := newTree(t)
	build(t, tree, with(b, with(NewRepeatOp("repeat", 4, 2), leaf(newSource(t, 3)))))
	require.NoError(t, tree.Prepare(context.Background()))

	var buf bytes.Buffer
	tree.Print(&buf, true)
	out := buf.String()
	assert.Contains(t, out, "batch_size: 8")
	assert.Contains(t, out, "count: 2 (effective 2)")
	assert.Contains(t, out, "loader: static")
	assert.Contains(t, out, "num_repeats: 2")
	assert.Contains(t, out, "sampler: sequential(start=0, num_samples=0)")
}
