package loader

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/linkedin/goavro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratus/pkg/compression"
	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/models"
)

func load(t *testing.T, kind string, opts map[string]interface{}) *models.Table {
	t.Helper()
	l, err := Create(kind, opts)
	require.NoError(t, err)
	table, err := l.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, table.Validate())
	return table
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	factory := func(map[string]interface{}) (Loader, error) {
		return NewGenerator(GeneratorConfig{Rows: 1})
	}
	require.NoError(t, r.Register("synthetic", factory))

	err := r.Register("synthetic", factory)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = r.Create("missing", nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	l, err := r.Create("synthetic", nil)
	require.NoError(t, err)
	assert.Equal(t, "generator(1 rows)", l.Name())
	assert.Equal(t, []string{"synthetic"}, r.List())

	assert.Equal(t, []string{
		"arrow", "avro", "bigquery", "csv", "generator", "jsonl", "kafka", "mongo", "postgres", "sql",
	}, List())
}

func TestGenerator(t *testing.T) {
	opts := map[string]interface{}{
		"rows":    "10",
		"columns": []string{"id", "x", "label"},
		"classes": 3,
		"seed":    7,
	}
	table := load(t, "generator", opts)
	require.Equal(t, int64(10), table.NumRows())
	assert.Equal(t, []string{"id", "x", "label"}, table.Schema.Columns())
	for i, row := range table.Rows {
		assert.Equal(t, int64(i), row[0])
		assert.IsType(t, float64(0), row[1])
		assert.Less(t, row[2].(int64), int64(3))
	}

	again := load(t, "generator", opts)
	assert.Equal(t, table.Rows, again.Rows, "same seed yields the same table")

	_, err := Create("generator", map[string]interface{}{"rows": 0})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestUnknownOptionsRejected(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"generator": {"rows": 5, "colums": []string{"id"}},
		"jsonl":     {"path": "x.jsonl", "compression": "gzip"},
		"postgres":  {"dsn": "postgres://localhost/db", "query": "SELECT 1", "table": "t"},
		"mongo":     {"uri": "mongodb://localhost", "database": "d", "collection": "c", "batch": 5},
		"kafka":     {"brokers": []string{"localhost:9092"}, "topic": "t", "group": "g"},
	}
	for kind, opts := range cases {
		t.Run(kind, func(t *testing.T) {
			_, err := Create(kind, opts)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		})
	}
}

func TestRequiredOptions(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"jsonl":    {},
		"csv":      {},
		"avro":     {},
		"arrow":    {},
		"postgres": {"dsn": "postgres://localhost/db"},
		"sql":      {"driver": "oracle", "dsn": "x", "query": "SELECT 1"},
		"mongo":    {"uri": "mongodb://localhost"},
		"bigquery": {"project": "p"},
		"kafka":    {"topic": "t"},
	}
	for kind, opts := range cases {
		t.Run(kind, func(t *testing.T) {
			_, err := Create(kind, opts)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), "got %v", err)
		})
	}

	l, err := Create("sql", map[string]interface{}{"driver": "mysql", "dsn": "u:p@tcp(db:3306)/x", "query": "SELECT 1"})
	require.NoError(t, err)
	assert.Equal(t, "sql(mysql)", l.Name())

	l, err = Create("kafka", map[string]interface{}{"brokers": "localhost:9092", "topic": "events", "timeout": "5s"})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, l.(*Kafka).cfg.Timeout)
	assert.Equal(t, []string{"localhost:9092"}, l.(*Kafka).cfg.Brokers)
}

func TestKafkaRawColumns(t *testing.T) {
	l, err := Create("kafka", map[string]interface{}{"brokers": []string{"b:9092"}, "topic": "t", "format": "raw"})
	require.NoError(t, err)
	assert.Equal(t, []string{"key", "value", "offset"}, l.(*Kafka).columns())

	_, err = Create("kafka", map[string]interface{}{"brokers": []string{"b:9092"}, "topic": "t", "format": "xml"})
	assert.Error(t, err)
}

func TestJSONL(t *testing.T) {
	path := writeFile(t, "rows.jsonl", `{"b": 1, "a": "x"}
{"a": "y", "b": 2, "c": true}
`)
	table := load(t, "jsonl", map[string]interface{}{"path": path})
	assert.Equal(t, []string{"a", "b", "c"}, table.Schema.Columns())
	assert.Equal(t, []models.Row{{"x", 1.0, nil}, {"y", 2.0, true}}, table.Rows)

	table = load(t, "jsonl", map[string]interface{}{"path": path, "columns": []string{"b"}})
	assert.Equal(t, []models.Row{{1.0}, {2.0}}, table.Rows)
}

func TestJSONLCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.jsonl.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := compression.NewWriter(f, compression.Gzip, compression.Default)
	require.NoError(t, err)
	_, err = w.Write([]byte("{\"v\": 1}\n{\"v\": 2}\n{\"v\": 3}\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	table := load(t, "jsonl", map[string]interface{}{"path": path})
	assert.Equal(t, int64(3), table.NumRows())
	assert.Equal(t, 3.0, table.Rows[2][0])
}

func TestJSONLMalformed(t *testing.T) {
	path := writeFile(t, "bad.jsonl", "{\"v\": 1}\nnot-json\n")
	l, err := Create("jsonl", map[string]interface{}{"path": path})
	require.NoError(t, err)
	_, err = l.Load(context.Background())
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestCSV(t *testing.T) {
	path := writeFile(t, "rows.csv", "id,score,name\n1,0.5,a\n2,1.5,b\n")
	table := load(t, "csv", map[string]interface{}{"path": path})
	assert.Equal(t, []string{"id", "score", "name"}, table.Schema.Columns())
	assert.Equal(t, []models.Row{{int64(1), 0.5, "a"}, {int64(2), 1.5, "b"}}, table.Rows)

	table = load(t, "csv", map[string]interface{}{"path": path, "infer_types": false})
	assert.Equal(t, models.Row{"1", "0.5", "a"}, table.Rows[0])
}

func TestCSVWithoutHeader(t *testing.T) {
	path := writeFile(t, "rows.tsv", "1\tx\n2\ty\n")
	table := load(t, "csv", map[string]interface{}{
		"path":      path,
		"header":    false,
		"delimiter": "\t",
		"columns":   []string{"id", "tag"},
	})
	assert.Equal(t, []models.Row{{int64(1), "x"}, {int64(2), "y"}}, table.Rows)

	_, err := Create("csv", map[string]interface{}{"path": path, "header": false})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = Create("csv", map[string]interface{}{"path": path, "delimiter": "::"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestCSVRaggedRow(t *testing.T) {
	path := writeFile(t, "bad.csv", "a,b\n1,2\n3\n")
	l, err := Create("csv", map[string]interface{}{"path": path})
	require.NoError(t, err)
	_, err = l.Load(context.Background())
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestAvro(t *testing.T) {
	var buf bytes.Buffer
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W: &buf,
		Schema: `{"type": "record", "name": "sample", "fields": [
			{"name": "id", "type": "long"},
			{"name": "score", "type": "double"},
			{"name": "tag", "type": ["null", "string"]}
		]}`,
	})
	require.NoError(t, err)
	require.NoError(t, w.Append([]interface{}{
		map[string]interface{}{"id": int64(1), "score": 0.25, "tag": goavro.Union("string", "a")},
		map[string]interface{}{"id": int64(2), "score": 0.75, "tag": nil},
	}))
	path := writeFile(t, "rows.avro", buf.String())

	table := load(t, "avro", map[string]interface{}{"path": path})
	assert.Equal(t, []string{"id", "score", "tag"}, table.Schema.Columns())
	assert.Equal(t, []models.Row{{int64(1), 0.25, "a"}, {int64(2), 0.75, nil}}, table.Rows)
}

func TestArrow(t *testing.T) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues([]int64{10, 20, 30}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"a", "", "c"}, []bool{true, false, true})
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w, err := ipc.NewFileWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	require.NoError(t, err)
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	path := writeFile(t, "rows.arrow", buf.String())

	table := load(t, "arrow", map[string]interface{}{"path": path})
	assert.Equal(t, []string{"id", "name"}, table.Schema.Columns())
	assert.Equal(t, []models.Row{{int64(10), "a"}, {int64(20), nil}, {int64(30), "c"}}, table.Rows)

	table = load(t, "arrow", map[string]interface{}{"path": path, "columns": []string{"name"}})
	assert.Equal(t, models.Row{"c"}, table.Rows[2])

	l, err := Create("arrow", map[string]interface{}{"path": path, "columns": []string{"missing"}})
	require.NoError(t, err)
	_, err = l.Load(context.Background())
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestTableFromMaps(t *testing.T) {
	table, err := tableFromMaps([]map[string]interface{}{
		{"z": 1, "a": 2},
		{"m": 3},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "z", "m"}, table.Schema.Columns())
	assert.Equal(t, models.Row{nil, nil, 3}, table.Rows[1])
}
