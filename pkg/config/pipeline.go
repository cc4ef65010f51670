package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// PipelineSpec describes one execution tree. The root node is the stage
// whose output the consumer iterates.
type PipelineSpec struct {
	// Name identifies the pipeline in logs and metrics
	Name string `yaml:"name" json:"name"`
	// Engine optionally overrides engine settings for this pipeline
	Engine *ExecutionConfig `yaml:"engine,omitempty" json:"engine,omitempty"`
	// Root is the top of the operator tree
	Root *NodeSpec `yaml:"root" json:"root"`
}

// NodeSpec describes one operator and its children.
//
//	root:
//	  op: batch
//	  options: {batch_size: 32, drop_remainder: true}
//	  children:
//	    - op: map
//	      options: {operations: [{name: scale, args: {factor: 0.5}}], input_columns: [x]}
//	      children:
//	        - op: source
//	          loader: {type: jsonl, options: {path: "s3://bucket/train.jsonl.zst"}}
//	          sampler: {type: random, options: {seed: 7}}
type NodeSpec struct {
	// Op is the operator type (source, map, batch, shuffle, repeat, project, take, zip)
	Op string `yaml:"op" json:"op"`
	// Name is the operator instance name; defaults to Op plus a position suffix
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// ConnectorSize overrides the engine-wide output connector capacity
	ConnectorSize int `yaml:"connector_size,omitempty" json:"connector_size,omitempty"`
	// Workers overrides the engine-wide worker count for parallel operators
	Workers int `yaml:"workers,omitempty" json:"workers,omitempty"`
	// Options holds operator specific settings
	Options map[string]interface{} `yaml:"options,omitempty" json:"options,omitempty"`
	// Loader configures the row loader of a source operator
	Loader *PluginSpec `yaml:"loader,omitempty" json:"loader,omitempty"`
	// Sampler configures the sampler of a source operator
	Sampler *PluginSpec `yaml:"sampler,omitempty" json:"sampler,omitempty"`
	// Children are the upstream operators, in order
	Children []*NodeSpec `yaml:"children,omitempty" json:"children,omitempty"`
}

// PluginSpec selects a pluggable implementation by type with its options
type PluginSpec struct {
	Type    string                 `yaml:"type" json:"type"`
	Options map[string]interface{} `yaml:"options,omitempty" json:"options,omitempty"`
}

// Validate checks structural requirements of the spec. Operator specific
// options are validated by the builder.
func (p *PipelineSpec) Validate() error {
	if p.Root == nil {
		return fmt.Errorf("pipeline %q has no root node", p.Name)
	}
	return p.Root.validate("root")
}

func (n *NodeSpec) validate(path string) error {
	if n.Op == "" {
		return fmt.Errorf("%s: op is required", path)
	}
	if n.ConnectorSize < 0 {
		return fmt.Errorf("%s: connector_size cannot be negative", path)
	}
	if n.Workers < 0 {
		return fmt.Errorf("%s: workers cannot be negative", path)
	}
	if n.Loader != nil && n.Loader.Type == "" {
		return fmt.Errorf("%s: loader type is required", path)
	}
	if n.Sampler != nil && n.Sampler.Type == "" {
		return fmt.Errorf("%s: sampler type is required", path)
	}
	for i, c := range n.Children {
		if c == nil {
			return fmt.Errorf("%s.children[%d]: empty node", path, i)
		}
		if err := c.validate(fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

// Walk visits the node and its descendants in pre-order
func (n *NodeSpec) Walk(fn func(*NodeSpec) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// DecodeOptions decodes a node's free-form options into a typed struct.
// Scalars are converted leniently, durations may be given as strings and
// unknown keys are rejected.
func DecodeOptions(options map[string]interface{}, target interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Squash:           true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           target,
	})
	if err != nil {
		return err
	}
	return dec.Decode(options)
}
