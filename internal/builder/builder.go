// Package builder turns pipeline specs into execution trees
package builder

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/stratus/internal/engine"
	"github.com/ajitpratap0/stratus/internal/loader"
	"github.com/ajitpratap0/stratus/internal/ops"
	"github.com/ajitpratap0/stratus/pkg/config"
	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/sampler"
)

// Builder creates execution trees from pipeline specs, filling node
// settings the spec leaves out from the engine configuration
type Builder struct {
	cfg    *config.EngineConfig
	logger *zap.Logger
}

// New creates a builder. A nil cfg uses the defaults.
func New(cfg *config.EngineConfig, logger *zap.Logger) *Builder {
	if cfg == nil {
		cfg = config.DefaultEngineConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{cfg: cfg, logger: logger}
}

// BuildFile loads a pipeline file and builds its tree
func (b *Builder) BuildFile(path string) (*engine.ExecutionTree, error) {
	spec, err := config.LoadPipeline(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to load pipeline")
	}
	return b.Build(spec)
}

// Build creates an unprepared tree for spec
func (b *Builder) Build(spec *config.PipelineSpec) (*engine.ExecutionTree, error) {
	if err := spec.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid pipeline")
	}

	cfg := b.effectiveConfig(spec)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid engine settings")
	}
	logger := b.logger
	if spec.Name != "" {
		logger = logger.With(zap.String("pipeline", spec.Name))
	}
	tree := engine.NewExecutionTree(cfg, logger)

	names := map[string]int{}
	root, err := b.buildNode(tree, cfg, spec.Root, names)
	if err != nil {
		return nil, err
	}
	if err := tree.AssignRoot(root); err != nil {
		return nil, err
	}
	logger.Debug("pipeline built", zap.String("tree_id", tree.ID()), zap.Int("operators", tree.Len()))
	return tree, nil
}

// effectiveConfig applies a pipeline's engine overrides to a copy of the
// builder's configuration
func (b *Builder) effectiveConfig(spec *config.PipelineSpec) *config.EngineConfig {
	cfg := *b.cfg
	if o := spec.Engine; o != nil {
		if o.ConnectorSize != 0 {
			cfg.Execution.ConnectorSize = o.ConnectorSize
		}
		if o.ParallelWorkers != 0 {
			cfg.Execution.ParallelWorkers = o.ParallelWorkers
		}
		if o.RowsPerBuffer != 0 {
			cfg.Execution.RowsPerBuffer = o.RowsPerBuffer
		}
		if o.Seed != 0 {
			cfg.Execution.Seed = o.Seed
		}
	}
	return &cfg
}

func (b *Builder) buildNode(tree *engine.ExecutionTree, cfg *config.EngineConfig, n *config.NodeSpec, names map[string]int) (engine.NodeID, error) {
	p := ops.Params{
		Name:          n.Name,
		ConnectorSize: n.ConnectorSize,
		Workers:       n.Workers,
		Options:       n.Options,
	}
	if p.Name == "" {
		p.Name = n.Op
		if k := names[n.Op]; k > 0 {
			p.Name = fmt.Sprintf("%s_%d", n.Op, k)
		}
		names[n.Op]++
	}
	if p.ConnectorSize == 0 {
		p.ConnectorSize = cfg.Execution.ConnectorSize
	}
	if p.Workers == 0 {
		p.Workers = cfg.Execution.ParallelWorkers
	}

	if n.Loader != nil {
		l, err := loader.Create(n.Loader.Type, n.Loader.Options)
		if err != nil {
			return engine.NoNode, errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("operator %q", p.Name))
		}
		p.Loader = l
	}
	if n.Sampler != nil {
		s, err := sampler.FromOptions(n.Sampler.Type, n.Sampler.Options)
		if err != nil {
			return engine.NoNode, errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("operator %q", p.Name))
		}
		p.Sampler = s
	}

	op, err := ops.New(n.Op, p)
	if err != nil {
		return engine.NoNode, err
	}
	id, err := tree.AssociateNode(op)
	if err != nil {
		return engine.NoNode, err
	}
	for _, c := range n.Children {
		cid, err := b.buildNode(tree, cfg, c, names)
		if err != nil {
			return engine.NoNode, err
		}
		if err := tree.AddChild(id, cid); err != nil {
			return engine.NoNode, err
		}
	}
	return id, nil
}
