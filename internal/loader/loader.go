// Package loader materializes the tables source operators sample from.
// Loaders are looked up by type name in a registry; each one decodes its
// options, reads its store once during preparation and returns a Table.
package loader

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/stratus/pkg/config"
	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/logger"
	"github.com/ajitpratap0/stratus/pkg/models"
)

// Loader reads a complete table
type Loader interface {
	// Name describes the loader and its input, for logs and tree printing
	Name() string
	Load(ctx context.Context) (*models.Table, error)
}

// Factory creates a loader from pipeline options
type Factory func(options map[string]interface{}) (Loader, error)

// Registry maps loader type names to factories
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
	logger    *zap.Logger
}

var globalRegistry = newBuiltinRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger.Get().With(zap.String("component", "loader_registry")),
	}
}

func newBuiltinRegistry() *Registry {
	r := NewRegistry()
	for name, f := range map[string]Factory{
		"generator": newGenerator,
		"jsonl":     newJSONL,
		"csv":       newCSV,
		"avro":      newAvro,
		"arrow":     newArrow,
		"postgres":  newPostgres,
		"sql":       newSQL,
		"mongo":     newMongo,
		"bigquery":  newBigQuery,
		"kafka":     newKafka,
	} {
		r.factories[name] = f
	}
	return r
}

// Register adds a loader factory
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.New(errors.ErrorTypeValidation, fmt.Sprintf("loader %s already registered", name))
	}
	r.factories[name] = factory
	r.logger.Debug("loader registered", zap.String("name", name))
	return nil
}

// Create builds a loader of the named type. An optional "retry" option
// wraps it in a RetryPolicy.
func (r *Registry) Create(name string, options map[string]interface{}) (Loader, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("loader %s not found", name))
	}
	options, policy, err := retryFromOptions(options)
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("failed to create %s loader", name))
	}
	l, err := factory(options)
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("failed to create %s loader", name))
	}
	if policy != nil {
		return WithRetry(l, policy), nil
	}
	return l, nil
}

// List returns the registered loader types in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Register adds a factory to the global registry
func Register(name string, factory Factory) error {
	return globalRegistry.Register(name, factory)
}

// Create builds a loader from the global registry
func Create(name string, options map[string]interface{}) (Loader, error) {
	return globalRegistry.Create(name, options)
}

// List returns the loader types of the global registry
func List() []string {
	return globalRegistry.List()
}

// decodeOptions decodes pipeline options into a loader config, rejecting
// unknown keys
func decodeOptions(options map[string]interface{}, target interface{}) error {
	if err := config.DecodeOptions(options, target); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "invalid loader options")
	}
	return nil
}

// tableFromMaps lays keyed records out as rows. Without explicit columns the
// schema is the sorted key set of the first record followed by keys first
// seen later; missing values are nil.
func tableFromMaps(records []map[string]interface{}, columns []string) (*models.Table, error) {
	if len(columns) == 0 {
		seen := map[string]bool{}
		for _, rec := range records {
			var fresh []string
			for k := range rec {
				if !seen[k] {
					seen[k] = true
					fresh = append(fresh, k)
				}
			}
			sort.Strings(fresh)
			columns = append(columns, fresh...)
		}
	}
	schema, err := models.NewSchema(columns...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid column set")
	}
	rows := make([]models.Row, len(records))
	for i, rec := range records {
		row := make(models.Row, len(columns))
		for j, c := range columns {
			row[j] = rec[c]
		}
		rows[i] = row
	}
	return &models.Table{Schema: schema, Rows: rows}, nil
}
