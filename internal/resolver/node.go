package resolver

import (
	"fmt"
	"sync"
)

// Status is the lifecycle state of a query node.
type Status int

const (
	// StatusPending means the node has not been resolved yet.
	StatusPending Status = iota

	// StatusDecomposed means the node was split into child sub-queries.
	StatusDecomposed

	// StatusAnswered means the node carries a final answer.
	StatusAnswered

	// StatusFailed means the node could not be answered.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDecomposed:
		return "decomposed"
	case StatusAnswered:
		return "answered"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Node is one node of the recursion tree.
type Node struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Depth  int    `json:"depth"`
	Status Status `json:"status"`

	// Parent is empty for the root. Children holds child node ids in
	// original sub-query order.
	Parent   string   `json:"parent,omitempty"`
	Children []string `json:"children,omitempty"`

	// Answer is set only when Status is StatusAnswered.
	Answer string `json:"answer,omitempty"`

	// FailReason is set only when Status is StatusFailed.
	FailReason string `json:"fail_reason,omitempty"`
}

func (n *Node) terminal() bool {
	return n.Status == StatusAnswered || n.Status == StatusFailed
}

// tree is the arena of query nodes for one resolution. Parents hold child
// id lists rather than pointers; the whole arena is dropped when the
// session completes.
type tree struct {
	mu    sync.Mutex
	nodes map[string]*Node
	root  string
	seq   int
}

func newTree() *tree {
	return &tree{nodes: make(map[string]*Node)}
}

// add creates a node under parent ("" for the root) and returns its id.
func (t *tree) add(parent, text string, depth int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	id := fmt.Sprintf("n%d", t.seq)
	t.nodes[id] = &Node{
		ID:     id,
		Text:   text,
		Depth:  depth,
		Status: StatusPending,
		Parent: parent,
	}
	if parent == "" {
		t.root = id
	}
	return id
}

func (t *tree) get(id string) Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.nodes[id]
}

// markDecomposed transitions a pending node to decomposed. The transition
// requires at least one child.
func (t *tree) markDecomposed(id string, children []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.nodes[id]
	if n.Status != StatusPending {
		return fmt.Errorf("node %s: decompose from %s", id, n.Status)
	}
	if len(children) == 0 {
		return fmt.Errorf("node %s: decompose with no children", id)
	}
	n.Status = StatusDecomposed
	n.Children = append([]string(nil), children...)
	return nil
}

// markAnswered sets the final answer. A node with children can only be
// answered once every child is terminal.
func (t *tree) markAnswered(id, answer string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.nodes[id]
	if n.Status == StatusAnswered || n.Status == StatusFailed {
		return fmt.Errorf("node %s: answer from %s", id, n.Status)
	}
	for _, cid := range n.Children {
		if c := t.nodes[cid]; c != nil && !c.terminal() {
			return fmt.Errorf("node %s: child %s not terminal", id, cid)
		}
	}
	n.Status = StatusAnswered
	n.Answer = answer
	return nil
}

func (t *tree) markFailed(id, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.nodes[id]
	if n.Status == StatusAnswered || n.Status == StatusFailed {
		return
	}
	n.Status = StatusFailed
	n.FailReason = reason
}

// snapshot returns copies of all nodes in creation order.
func (t *tree) snapshot() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Node, 0, len(t.nodes))
	for i := 1; i <= t.seq; i++ {
		if n, ok := t.nodes[fmt.Sprintf("n%d", i)]; ok {
			out = append(out, *n)
		}
	}
	return out
}
