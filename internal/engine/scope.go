package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/stratus/pkg/config"
	"github.com/ajitpratap0/stratus/pkg/models"
)

// Keys the tree publishes in the root scope, plus the keys shared by the
// built-in operators.
const (
	// ScopeSeed is the engine seed for shuffles and random samplers
	ScopeSeed = "seed"
	// ScopeRowsPerBuffer is the number of rows a source packs into a buffer
	ScopeRowsPerBuffer = "rows_per_buffer"
	// ScopeNumRepeats is the epoch count; -1 repeats forever
	ScopeNumRepeats = "num_repeats"
)

// scope holds values an operator publishes for its descendants. Lookups
// walk towards the root.
type scope struct {
	parent *scope
	values map[string]interface{}
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, values: make(map[string]interface{})}
}

func (s *scope) lookup(key string) (interface{}, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.values[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// PreContext is handed to PrepareNodePreAction. Ancestors have completed
// their pre-action; children have not been visited.
type PreContext struct {
	ctx   context.Context
	tree  *ExecutionTree
	id    NodeID
	scope *scope
}

// Context returns the preparation context
func (c *PreContext) Context() context.Context { return c.ctx }

// Config returns the engine configuration of the tree
func (c *PreContext) Config() *config.EngineConfig { return c.tree.cfg }

// Logger returns the operator's logger
func (c *PreContext) Logger() *zap.Logger { return c.tree.nodes[c.id].op.Base().logger }

// Parent returns the parent operator, or nil at the root
func (c *PreContext) Parent() Operator {
	p := c.tree.nodes[c.id].parent
	if p == NoNode {
		return nil
	}
	return c.tree.nodes[p].op
}

// Lookup finds a value published by this operator or an ancestor
func (c *PreContext) Lookup(key string) (interface{}, bool) {
	return c.scope.lookup(key)
}

// Require is Lookup that fails with a ConfigurationError when no ancestor
// published key.
func (c *PreContext) Require(key string) (interface{}, error) {
	v, ok := c.scope.lookup(key)
	if !ok {
		return nil, ConfigurationError("required value %q was not provided by any ancestor", key)
	}
	return v, nil
}

// Publish makes a value visible to this operator's descendants
func (c *PreContext) Publish(key string, value interface{}) {
	c.scope.values[key] = value
}

// PostContext is handed to PrepareNodePostAction. Every child has completed
// its post-action and the child connectors exist.
type PostContext struct {
	ctx  context.Context
	tree *ExecutionTree
	id   NodeID
}

// Context returns the preparation context
func (c *PostContext) Context() context.Context { return c.ctx }

// Config returns the engine configuration of the tree
func (c *PostContext) Config() *config.EngineConfig { return c.tree.cfg }

// Logger returns the operator's logger
func (c *PostContext) Logger() *zap.Logger { return c.tree.nodes[c.id].op.Base().logger }

// Lookup finds a value published during the pre-action pass
func (c *PostContext) Lookup(key string) (interface{}, bool) {
	return c.tree.nodes[c.id].scope.lookup(key)
}

// Children returns the child operators in insertion order
func (c *PostContext) Children() []Operator {
	ids := c.tree.nodes[c.id].children
	out := make([]Operator, len(ids))
	for i, id := range ids {
		out[i] = c.tree.nodes[id].op
	}
	return out
}

// ChildConnectors returns the connectors this operator consumes
func (c *PostContext) ChildConnectors() []*Connector {
	ids := c.tree.nodes[c.id].children
	out := make([]*Connector, len(ids))
	for i, id := range ids {
		out[i] = c.tree.nodes[id].op.Base().out
	}
	return out
}

// ChildSchemas returns each child's output schema, nil where unknown
func (c *PostContext) ChildSchemas() []*models.Schema {
	children := c.Children()
	out := make([]*models.Schema, len(children))
	for i, ch := range children {
		if sp, ok := ch.(SchemaProvider); ok {
			out[i] = sp.OutputSchema()
		}
	}
	return out
}
