// Package ops provides the built-in operators of a Stratus execution tree.
//
// Every operator embeds engine.PipelineOp or engine.ParallelOp and adds its
// own preparation hooks and worker loop. Operators are created by type name
// through a registry so pipeline files can refer to them:
//
//	op, err := ops.New("batch", ops.Params{
//	    Name:    "batch",
//	    Options: map[string]interface{}{"batch_size": 32},
//	})
package ops

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/stratus/internal/engine"
	"github.com/ajitpratap0/stratus/internal/loader"
	"github.com/ajitpratap0/stratus/pkg/config"
	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/sampler"
)

// Params carries everything a factory may need to build an operator
type Params struct {
	Name          string
	ConnectorSize int
	// Workers is the worker count of parallel operators; pipeline
	// operators ignore it
	Workers int
	Options map[string]interface{}
	Loader  loader.Loader
	Sampler sampler.Sampler
}

// Factory builds an operator from its parameters
type Factory func(p Params) (engine.Operator, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"source":  newSourceFromParams,
		"repeat":  newRepeatFromParams,
		"map":     newMapFromParams,
		"batch":   newBatchFromParams,
		"shuffle": newShuffleFromParams,
		"project": newProjectFromParams,
		"take":    newTakeFromParams,
		"zip":     newZipFromParams,
	}
)

// Register adds an operator type
func Register(kind string, f Factory) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[kind]; exists {
		return errors.Newf(errors.ErrorTypeValidation, "operator %s already registered", kind)
	}
	registry[kind] = f
	return nil
}

// New builds an operator of the given type
func New(kind string, p Params) (engine.Operator, error) {
	registryMu.RLock()
	f, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "unknown operator type %q", kind)
	}
	op, err := f(p)
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("failed to create %s operator %q", kind, p.Name))
	}
	return op, nil
}

// Kinds lists the registered operator types in sorted order
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func decodeOptions(kind string, options map[string]interface{}, target interface{}) error {
	if err := config.DecodeOptions(options, target); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfiguration, fmt.Sprintf("invalid %s options", kind))
	}
	return nil
}

// noPlugins rejects a loader or sampler on operators that cannot use them
func noPlugins(kind string, p Params) error {
	if p.Loader != nil || p.Sampler != nil {
		return errors.Newf(errors.ErrorTypeConfiguration, "%s operator takes no loader or sampler", kind)
	}
	return nil
}

// scopeInt reads an integer published in the tree scope
func scopeInt(v interface{}, ok bool) (int64, bool) {
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	default:
		return 0, false
	}
}

// passThrough forwards every buffer of the first input until EOF
func passThrough(w *engine.Worker) error {
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
