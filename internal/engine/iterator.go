package engine

import (
	"io"
)

// Iterator pulls buffers from the root of a running tree
type Iterator struct {
	tree *ExecutionTree
	out  *Connector
	done bool
}

// Iterator returns the consumer-side reader of the root connector. The tree
// must have been launched.
func (t *ExecutionTree) Iterator() (*Iterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rootOut == nil || t.cancel == nil {
		return nil, ConfigurationError("iterator requested from a tree in state %s", t.state)
	}
	return &Iterator{tree: t, out: t.rootOut}, nil
}

// Next returns the next data or end-of-epoch buffer. It returns io.EOF once
// the tree has produced everything. If the tree failed, Next returns the
// worker failure instead of the connector closure that followed it.
func (it *Iterator) Next() (*DataBuffer, error) {
	if it.done {
		return nil, io.EOF
	}
	buf, err := it.out.Pop()
	if err != nil {
		if IsClosed(err) {
			if werr := it.tree.Wait(); werr != nil {
				return nil, werr
			}
		}
		return nil, err
	}
	if buf.IsEOF() {
		it.done = true
		return nil, io.EOF
	}
	return buf, nil
}

// Close stops the tree if it is still running and waits for its workers
func (it *Iterator) Close() error {
	if !it.done {
		it.tree.Stop()
	}
	it.done = true
	return it.tree.Wait()
}
