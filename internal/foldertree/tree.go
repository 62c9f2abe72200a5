// Package foldertree turns the flat folder list stored per owner into the
// nested forest shown in the file-storage sidebar.
package foldertree

import (
	"fmt"
	"io"
	"strings"
)

// Record is one folder row as stored by the backend.
type Record struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

// IsRoot reports whether the record has no parent reference at all.
func (r Record) IsRoot() bool {
	return r.ParentID == nil
}

// Node is a Record with its children attached. Nodes are derived on demand
// and never persisted.
type Node struct {
	Record
	Children []*Node `json:"children"`
}

// Build links records into a forest. Siblings keep their input order. A record
// whose parent id does not resolve within records is returned as a root.
func Build(records []Record) []*Node {
	// Index every node first so a child listed before its parent still links.
	byID := make(map[string]*Node, len(records))
	nodes := make([]*Node, len(records))
	for i, rec := range records {
		n := &Node{Record: rec, Children: []*Node{}}
		nodes[i] = n
		if _, dup := byID[rec.ID]; !dup {
			byID[rec.ID] = n
		}
	}

	roots := []*Node{}
	for _, n := range nodes {
		if !n.IsRoot() {
			if parent, ok := byID[*n.ParentID]; ok && parent != n {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return roots
}

// Walk visits every node reachable from roots depth-first, parents before
// children. depth is 0 for roots. A node already visited is skipped, so even a
// hand-assembled cyclic structure terminates. Returning false from fn stops
// the descent into that node's children.
func Walk(roots []*Node, fn func(n *Node, depth int) bool) {
	seen := make(map[*Node]struct{})
	var visit func(nodes []*Node, depth int)
	visit = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			if fn(n, depth) {
				visit(n.Children, depth+1)
			}
		}
	}
	visit(roots, 0)
}

// Count returns the number of nodes reachable from roots.
func Count(roots []*Node) int {
	total := 0
	Walk(roots, func(*Node, int) bool {
		total++
		return true
	})
	return total
}

// Find returns the node with the given id, or nil.
func Find(roots []*Node, id string) *Node {
	var found *Node
	Walk(roots, func(n *Node, _ int) bool {
		if found != nil {
			return false
		}
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Path returns the chain of records from the outermost resolvable ancestor
// down to id. It stops at the first missing or repeated parent, so a dangling
// reference yields a path starting at the orphan and a cycle cannot loop.
func Path(records []Record, id string) []Record {
	byID := make(map[string]Record, len(records))
	for _, rec := range records {
		if _, dup := byID[rec.ID]; !dup {
			byID[rec.ID] = rec
		}
	}

	cur, ok := byID[id]
	if !ok {
		return nil
	}

	seen := map[string]struct{}{cur.ID: {}}
	chain := []Record{cur}
	for cur.ParentID != nil {
		parent, ok := byID[*cur.ParentID]
		if !ok {
			break
		}
		if _, loop := seen[parent.ID]; loop {
			break
		}
		seen[parent.ID] = struct{}{}
		chain = append(chain, parent)
		cur = parent
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Descendants returns the ids of every folder below id.
func Descendants(records []Record, id string) []string {
	node := Find(Build(records), id)
	if node == nil {
		return nil
	}
	var ids []string
	Walk(node.Children, func(n *Node, _ int) bool {
		ids = append(ids, n.ID)
		return true
	})
	return ids
}

// Render writes an indented outline of the forest, one folder per line.
func Render(w io.Writer, roots []*Node) error {
	if len(roots) == 0 {
		_, err := fmt.Fprintln(w, "(no folders)")
		return err
	}
	var werr error
	Walk(roots, func(n *Node, depth int) bool {
		if werr != nil {
			return false
		}
		_, werr = fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), n.Name)
		return true
	})
	return werr
}
