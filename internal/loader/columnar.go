package loader

import (
	"bytes"
	"context"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/models"
	"github.com/ajitpratap0/stratus/pkg/storage"
)

// Avro reads an Avro object container file
type Avro struct {
	cfg FileConfig
}

func newAvro(options map[string]interface{}) (Loader, error) {
	var cfg FileConfig
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate("avro"); err != nil {
		return nil, err
	}
	return &Avro{cfg: cfg}, nil
}

func (l *Avro) Name() string { return "avro(" + l.cfg.Path + ")" }

type avroField struct {
	Name string      `json:"name"`
	Type interface{} `json:"type"`
}

func (l *Avro) Load(ctx context.Context) (*models.Table, error) {
	data, err := storage.ReadAll(ctx, l.cfg.Path, l.cfg.Storage)
	if err != nil {
		return nil, err
	}
	ocf, err := goavro.NewOCFReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "avro: failed to open container")
	}

	var schema struct {
		Fields []avroField `json:"fields"`
	}
	if err := json.Unmarshal([]byte(ocf.Codec().Schema()), &schema); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "avro: unreadable writer schema")
	}
	columns := l.cfg.Columns
	unions := map[string]bool{}
	for _, f := range schema.Fields {
		if len(l.cfg.Columns) == 0 {
			columns = append(columns, f.Name)
		}
		if _, ok := f.Type.([]interface{}); ok {
			unions[f.Name] = true
		}
	}

	var records []map[string]interface{}
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "avro: failed to read record")
		}
		rec, ok := datum.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "avro: top-level datum is %T, want a record", datum)
		}
		for name := range unions {
			rec[name] = unwrapUnion(rec[name])
		}
		records = append(records, rec)
	}
	if err := ocf.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "avro: failed to scan container")
	}
	return tableFromMaps(records, columns)
}

// unwrapUnion turns goavro's {"type": value} union encoding into the value
func unwrapUnion(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) != 1 {
		return v
	}
	for _, inner := range m {
		return inner
	}
	return v
}

// Arrow reads an Arrow IPC file
type Arrow struct {
	cfg FileConfig
}

func newArrow(options map[string]interface{}) (Loader, error) {
	var cfg FileConfig
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate("arrow"); err != nil {
		return nil, err
	}
	return &Arrow{cfg: cfg}, nil
}

func (l *Arrow) Name() string { return "arrow(" + l.cfg.Path + ")" }

func (l *Arrow) Load(ctx context.Context) (*models.Table, error) {
	data, err := storage.ReadAll(ctx, l.cfg.Path, l.cfg.Storage)
	if err != nil {
		return nil, err
	}
	reader, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "arrow: failed to open ipc file")
	}
	defer reader.Close()

	fields := reader.Schema().Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	schema, err := models.NewSchema(names...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "arrow: invalid schema")
	}

	var rows []models.Row
	for b := 0; b < reader.NumRecords(); b++ {
		rec, err := reader.Record(b)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "arrow: failed to read record batch")
		}
		for r := 0; r < int(rec.NumRows()); r++ {
			row := make(models.Row, rec.NumCols())
			for c := 0; c < int(rec.NumCols()); c++ {
				col := rec.Column(c)
				if col.IsNull(r) {
					continue
				}
				row[c] = col.GetOneForMarshal(r)
			}
			rows = append(rows, row)
		}
	}

	table := &models.Table{Schema: schema, Rows: rows}
	if len(l.cfg.Columns) > 0 {
		return project(table, l.cfg.Columns)
	}
	return table, nil
}

// project keeps the named columns of t, in the given order
func project(t *models.Table, columns []string) (*models.Table, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		j, ok := t.Schema.Index(c)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeNotFound, "column %q not in %s", c, t.Schema)
		}
		idx[i] = j
	}
	schema, err := models.NewSchema(columns...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid column selection")
	}
	rows := make([]models.Row, len(t.Rows))
	for i, r := range t.Rows {
		row := make(models.Row, len(idx))
		for k, j := range idx {
			row[k] = r[j]
		}
		rows[i] = row
	}
	return &models.Table{Schema: schema, Rows: rows}, nil
}
