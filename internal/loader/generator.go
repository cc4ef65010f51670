package loader

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/models"
)

// GeneratorConfig configures the synthetic loader
type GeneratorConfig struct {
	Rows    int64    `mapstructure:"rows"`
	Columns []string `mapstructure:"columns"`
	Classes int      `mapstructure:"classes"`
	Seed    int64    `mapstructure:"seed"`
}

// Generator produces a deterministic synthetic table: "id" holds the row
// number, "label" a class in [0, Classes) and every other column a float in
// [0, 1).
type Generator struct {
	cfg GeneratorConfig
}

// NewGenerator creates a generator loader
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.Rows <= 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "generator: rows must be positive")
	}
	if len(cfg.Columns) == 0 {
		cfg.Columns = []string{"id", "value"}
	}
	if cfg.Classes <= 0 {
		cfg.Classes = 2
	}
	return &Generator{cfg: cfg}, nil
}

func newGenerator(options map[string]interface{}) (Loader, error) {
	var cfg GeneratorConfig
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, err
	}
	return NewGenerator(cfg)
}

func (g *Generator) Name() string {
	return fmt.Sprintf("generator(%d rows)", g.cfg.Rows)
}

func (g *Generator) Load(ctx context.Context) (*models.Table, error) {
	schema, err := models.NewSchema(g.cfg.Columns...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "generator: invalid columns")
	}
	rng := rand.New(rand.NewSource(g.cfg.Seed))
	rows := make([]models.Row, g.cfg.Rows)
	for i := range rows {
		if i%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		row := make(models.Row, len(g.cfg.Columns))
		for j, c := range g.cfg.Columns {
			switch c {
			case "id":
				row[j] = int64(i)
			case "label":
				row[j] = int64(rng.Intn(g.cfg.Classes))
			default:
				row[j] = rng.Float64()
			}
		}
		rows[i] = row
	}
	return &models.Table{Schema: schema, Rows: rows}, nil
}
