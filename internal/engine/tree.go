// Package engine runs trees of dataflow operators.
//
// An ExecutionTree owns its operators in an arena; parent links are node ids.
// Building a tree (AssociateNode, AddChild, AssignRoot) is followed by one
// Prepare call, which runs every operator's pre-action in pre-order and then
// every post-action in post-order, creating the connectors on the way.
// Launch starts one goroutine per declared worker; data flows from the
// leaves up to the root connector, which the caller drains with an Iterator.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/stratus/pkg/config"
)

// NodeID indexes a node in its tree
type NodeID int

// NoNode is the parent of the root and the id of unattached operators
const NoNode NodeID = -1

// TreeState is the lifecycle state of an ExecutionTree
type TreeState int

const (
	// TreeBuilding accepts new nodes and links
	TreeBuilding TreeState = iota
	// TreePreparing runs the two preparation passes
	TreePreparing
	// TreeReady is prepared and may be launched
	TreeReady
	// TreeExecuting has running workers
	TreeExecuting
	// TreeFinished ended without a worker failure
	TreeFinished
	// TreeFailed failed preparation or had a worker fail
	TreeFailed
)

// String returns the state name used in logs and errors
func (s TreeState) String() string {
	switch s {
	case TreeBuilding:
		return "building"
	case TreePreparing:
		return "preparing"
	case TreeReady:
		return "ready"
	case TreeExecuting:
		return "executing"
	case TreeFinished:
		return "finished"
	case TreeFailed:
		return "failed"
	default:
		return fmt.Sprintf("tree_state(%d)", int(s))
	}
}

type node struct {
	op       Operator
	parent   NodeID
	children []NodeID
	scope    *scope
}

// WorkerExit records how one worker loop ended
type WorkerExit struct {
	Operator string
	WorkerID int
	Reason   Reason
	Err      error
}

// ExecutionTree owns a tree of operators and runs it
type ExecutionTree struct {
	id     string
	cfg    *config.EngineConfig
	logger *zap.Logger

	mu    sync.Mutex
	nodes []*node
	root  NodeID
	state TreeState

	rootOut *Connector
	group   errgroup.Group
	exits   []WorkerExit
	err     error
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewExecutionTree creates an empty tree. A nil cfg uses the defaults.
func NewExecutionTree(cfg *config.EngineConfig, logger *zap.Logger) *ExecutionTree {
	if cfg == nil {
		cfg = config.DefaultEngineConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New().String()
	return &ExecutionTree{
		id:     id,
		cfg:    cfg,
		logger: logger.With(zap.String("tree_id", id)),
		root:   NoNode,
		state:  TreeBuilding,
		done:   make(chan struct{}),
	}
}

// ID returns the tree's session id
func (t *ExecutionTree) ID() string { return t.id }

// Config returns the engine configuration
func (t *ExecutionTree) Config() *config.EngineConfig { return t.cfg }

// State returns the lifecycle state
func (t *ExecutionTree) State() TreeState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// AssociateNode adds op to the tree's arena and returns its id
func (t *ExecutionTree) AssociateNode(op Operator) (NodeID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TreeBuilding {
		return NoNode, ConfigurationError("cannot add operator %q to a tree in state %s", op.Name(), t.state)
	}
	base := op.Base()
	if base.id != NoNode {
		return NoNode, ConfigurationError("operator %q already belongs to a tree", op.Name())
	}
	id := NodeID(len(t.nodes))
	base.id = id
	base.logger = t.logger.With(zap.String("operator", op.Name()))
	t.nodes = append(t.nodes, &node{op: op, parent: NoNode})
	return id, nil
}

// AddChild links child below parent. Children keep insertion order.
func (t *ExecutionTree) AddChild(parent, child NodeID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TreeBuilding {
		return ConfigurationError("cannot link operators of a tree in state %s", t.state)
	}
	if !t.valid(parent) || !t.valid(child) {
		return ConfigurationError("invalid node id (parent %d, child %d)", parent, child)
	}
	if parent == child {
		return ConfigurationError("operator %q cannot be its own child", t.nodes[child].op.Name())
	}
	c := t.nodes[child]
	if c.parent != NoNode {
		return ConfigurationError("operator %q already has parent %q",
			c.op.Name(), t.nodes[c.parent].op.Name())
	}
	if child == t.root {
		return ConfigurationError("root operator %q cannot become a child", c.op.Name())
	}
	for cur := parent; cur != NoNode; cur = t.nodes[cur].parent {
		if cur == child {
			return ConfigurationError("linking %q below %q would create a cycle",
				c.op.Name(), t.nodes[parent].op.Name())
		}
	}
	c.parent = parent
	c.op.Base().parent = parent
	t.nodes[parent].children = append(t.nodes[parent].children, child)
	return nil
}

// AssignRoot marks the node whose output the consumer reads
func (t *ExecutionTree) AssignRoot(id NodeID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TreeBuilding {
		return ConfigurationError("cannot assign the root of a tree in state %s", t.state)
	}
	if !t.valid(id) {
		return ConfigurationError("invalid root id %d", id)
	}
	if t.nodes[id].parent != NoNode {
		return ConfigurationError("operator %q has a parent and cannot be the root", t.nodes[id].op.Name())
	}
	t.root = id
	return nil
}

// Root returns the root operator, or nil before AssignRoot
func (t *ExecutionTree) Root() Operator {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root == NoNode {
		return nil
	}
	return t.nodes[t.root].op
}

// Operator returns the operator with the given id
func (t *ExecutionTree) Operator(id NodeID) (Operator, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.valid(id) {
		return nil, false
	}
	return t.nodes[id].op, true
}

// Children returns the child ids of a node in insertion order
func (t *ExecutionTree) Children(id NodeID) []NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.valid(id) {
		return nil
	}
	out := make([]NodeID, len(t.nodes[id].children))
	copy(out, t.nodes[id].children)
	return out
}

// Len returns the number of operators
func (t *ExecutionTree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

func (t *ExecutionTree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

// Print renders the tree, one indented block per operator
func (t *ExecutionTree) Print(w io.Writer, showAll bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(w, "execution tree %s (%s, %d operators)\n", t.id, t.state, len(t.nodes))
	if t.root == NoNode {
		fmt.Fprintln(w, "  <no root>")
		return
	}
	t.printNode(w, t.root, 1, showAll)
}

func (t *ExecutionTree) printNode(w io.Writer, id NodeID, depth int, showAll bool) {
	var buf bytes.Buffer
	n := t.nodes[id]
	n.op.Print(&buf, showAll)
	indent := strings.Repeat("  ", depth)
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		fmt.Fprintf(w, "%s%s\n", indent, line)
	}
	for _, c := range n.children {
		t.printNode(w, c, depth+1, showAll)
	}
}
