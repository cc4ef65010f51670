package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/models"
	"github.com/ajitpratap0/stratus/pkg/storage"
)

// FileConfig holds the options every file loader shares
type FileConfig struct {
	Path    string          `mapstructure:"path"`
	Columns []string        `mapstructure:"columns"`
	Storage storage.Options `mapstructure:",squash"`
}

func (c FileConfig) validate(kind string) error {
	if c.Path == "" {
		return errors.Newf(errors.ErrorTypeValidation, "%s: path is required", kind)
	}
	return nil
}

// JSONL reads one JSON object per line
type JSONL struct {
	cfg FileConfig
}

func newJSONL(options map[string]interface{}) (Loader, error) {
	var cfg FileConfig
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate("jsonl"); err != nil {
		return nil, err
	}
	return &JSONL{cfg: cfg}, nil
}

func (l *JSONL) Name() string { return "jsonl(" + l.cfg.Path + ")" }

func (l *JSONL) Load(ctx context.Context) (*models.Table, error) {
	r, err := storage.OpenDecompressed(ctx, l.cfg.Path, l.cfg.Storage)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	dec := json.NewDecoder(r)
	var records []map[string]interface{}
	for line := 1; ; line++ {
		var rec map[string]interface{}
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("jsonl: record %d of %s", line, l.cfg.Path))
		}
		records = append(records, rec)
	}
	return tableFromMaps(records, l.cfg.Columns)
}

// CSVConfig configures the CSV loader
type CSVConfig struct {
	FileConfig `mapstructure:",squash"`
	Delimiter  string `mapstructure:"delimiter"`
	Header     *bool  `mapstructure:"header"`
	InferTypes *bool  `mapstructure:"infer_types"`
}

// CSV reads delimited text. With a header row the header names the
// columns; numeric fields become int64 or float64 unless infer_types is off.
type CSV struct {
	cfg        CSVConfig
	delimiter  rune
	header     bool
	inferTypes bool
}

func newCSV(options map[string]interface{}) (Loader, error) {
	var cfg CSVConfig
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate("csv"); err != nil {
		return nil, err
	}
	l := &CSV{cfg: cfg, delimiter: ',', header: true, inferTypes: true}
	if cfg.Delimiter != "" {
		d := []rune(cfg.Delimiter)
		if len(d) != 1 {
			return nil, errors.Newf(errors.ErrorTypeValidation, "csv: delimiter must be one character, got %q", cfg.Delimiter)
		}
		l.delimiter = d[0]
	}
	if cfg.Header != nil {
		l.header = *cfg.Header
	}
	if cfg.InferTypes != nil {
		l.inferTypes = *cfg.InferTypes
	}
	if !l.header && len(cfg.Columns) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "csv: columns are required without a header row")
	}
	return l, nil
}

func (l *CSV) Name() string { return "csv(" + l.cfg.Path + ")" }

func (l *CSV) Load(ctx context.Context) (*models.Table, error) {
	r, err := storage.OpenDecompressed(ctx, l.cfg.Path, l.cfg.Storage)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	cr := csv.NewReader(r)
	cr.Comma = l.delimiter
	cr.ReuseRecord = true

	columns := l.cfg.Columns
	if l.header {
		head, err := cr.Read()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "csv: failed to read header")
		}
		if len(columns) == 0 {
			columns = append([]string(nil), head...)
		}
	}
	schema, err := models.NewSchema(columns...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "csv: invalid columns")
	}
	cr.FieldsPerRecord = len(columns)

	var rows []models.Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "csv: "+l.cfg.Path)
		}
		row := make(models.Row, len(rec))
		for i, field := range rec {
			row[i] = l.convert(field)
		}
		rows = append(rows, row)
	}
	return &models.Table{Schema: schema, Rows: rows}, nil
}

func (l *CSV) convert(field string) interface{} {
	if !l.inferTypes {
		return field
	}
	if i, err := strconv.ParseInt(field, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(field, 64); err == nil {
		return f
	}
	return field
}
