package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratus/internal/engine"
	"github.com/ajitpratap0/stratus/internal/loader"
	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/sampler"
)

func TestKinds(t *testing.T) {
	assert.Equal(t, []string{"batch", "map", "project", "repeat", "shuffle", "source", "take", "zip"}, Kinds())
}

func TestNewFromParams(t *testing.T) {
	gen, err := loader.NewGenerator(loader.GeneratorConfig{Rows: 10})
	require.NoError(t, err)

	op, err := New("source", Params{
		Name:          "train",
		ConnectorSize: 8,
		Loader:        gen,
		Sampler:       sampler.NewRandom(1, false, 0),
		Options:       map[string]interface{}{"rows_per_buffer": "16"},
	})
	require.NoError(t, err)
	src := op.(*SourceOp)
	assert.Equal(t, "train", src.Name())
	assert.Equal(t, 8, src.ConnectorSize())
	assert.Equal(t, 16, src.opts.RowsPerBuffer)
	assert.Equal(t, 0, src.MaxChildren())

	op, err = New("map", Params{
		Workers: 3,
		Options: map[string]interface{}{
			"input_columns": []interface{}{"value"},
			"operations": []interface{}{
				map[string]interface{}{"name": "normalize", "args": map[string]interface{}{"mean": 0.5, "std": 0.25}},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, op.NumWorkers())
	assert.Equal(t, 3, op.NumConsumers())
	assert.Equal(t, "map", op.Name())

	op, err = New("zip", Params{Name: "join"})
	require.NoError(t, err)
	assert.Equal(t, -1, op.MaxChildren())

	op, err = New("repeat", Params{})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), op.(*RepeatOp).count)
}

func TestNewRejectsBadParams(t *testing.T) {
	_, err := New("window", Params{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	cases := map[string]Params{
		"source":  {},
		"batch":   {Options: map[string]interface{}{"batch_size": 0}},
		"map":     {Options: map[string]interface{}{"input_columns": []string{"x"}}},
		"shuffle": {Options: map[string]interface{}{"buffer_size": 16, "sed": 1}},
		"project": {Options: map[string]interface{}{"columns": []string{"a", "a"}}},
		"take":    {Options: map[string]interface{}{"count": -3}},
		"zip":     {Options: map[string]interface{}{"mode": "longest"}},
		"repeat":  {Sampler: sampler.NewSequential(0, 0)},
	}
	for kind, p := range cases {
		t.Run(kind, func(t *testing.T) {
			_, err := New(kind, p)
			require.Error(t, err)
			assert.True(t, engine.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestRegister(t *testing.T) {
	err := Register("batch", newBatchFromParams)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestTransforms(t *testing.T) {
	fn, err := compose([]Operation{
		{Name: "to_float"},
		{Name: "scale", Args: map[string]interface{}{"factor": 2, "offset": 1}},
		{Name: "normalize", Args: map[string]interface{}{"mean": 3, "std": 2}},
	})
	require.NoError(t, err)
	v, err := fn("4")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	_, err = fn("four")
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	oneHot, err := compose([]Operation{{Name: "one_hot", Args: map[string]interface{}{"num_classes": 3}}})
	require.NoError(t, err)
	v, err = oneHot(int64(2))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1}, v)
	_, err = oneHot(int64(3))
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	_, err = oneHot(1.5)
	assert.Error(t, err)

	lower, err := compose([]Operation{{Name: "lowercase"}, {Name: "identity"}})
	require.NoError(t, err)
	v, err = lower("MiXeD")
	require.NoError(t, err)
	assert.Equal(t, "mixed", v)
}

func TestTransformConfigErrors(t *testing.T) {
	for _, ops := range [][]Operation{
		{{Name: "sharpen"}},
		{{Name: "normalize", Args: map[string]interface{}{"std": 0}}},
		{{Name: "one_hot"}},
		{{Name: "scale", Args: map[string]interface{}{"factr": 2}}},
	} {
		_, err := compose(ops)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration), "ops %v: %v", ops, err)
	}

	require.NoError(t, RegisterTransform("negate", func(map[string]interface{}) (Transform, error) {
		return func(v interface{}) (interface{}, error) {
			f, err := toFloat(v)
			return -f, err
		}, nil
	}))
	assert.Contains(t, Transforms(), "negate")
	assert.Error(t, RegisterTransform("negate", nil))
}
