// Package problems builds a structured explanation of an unsolvable set
// of jobs from the solver's recorded conflicts, compresses it into
// human-sized groups, and renders it as an indented tree.
package problems

import (
	"fmt"
	"sort"

	"github.com/binpack/binpack/matchspec"
	"github.com/binpack/binpack/solver"
)

// NodeKind distinguishes the four node variants a Graph can hold.
type NodeKind int

const (
	RootNode NodeKind = iota
	PackageNode
	UnresolvedDepNode
	ConstraintNode
)

func (k NodeKind) String() string {
	switch k {
	case RootNode:
		return "root"
	case PackageNode:
		return "package"
	case UnresolvedDepNode:
		return "unresolved_dep"
	case ConstraintNode:
		return "constraint"
	default:
		return "unknown"
	}
}

// Node is one vertex of a ProblemsGraph. Package holds package info when
// Kind is PackageNode; Spec holds the match expression when Kind is
// UnresolvedDepNode or ConstraintNode. Members accumulates the
// package/version/build multiplicities absorbed by compression.
type Node struct {
	ID      int
	Kind    NodeKind
	Name    string
	Package matchspec.PackageInfo
	Spec    matchspec.MatchSpec
	Members []matchspec.PackageInfo

	// Installable is set by the tree renderer's bottom-up pass.
	Installable bool
}

// Edge connects a requirer to a requirement; Spec is the match-spec
// expressing the dependency that produced the edge.
type Edge struct {
	From, To int
	Spec     matchspec.MatchSpec
}

// Graph is a directed graph of Nodes plus a symmetric conflicts relation
// recording which node pairs cannot coexist.
type Graph struct {
	Nodes     []*Node
	Edges     []Edge
	Conflicts map[[2]int]bool

	rootID int
	byName map[string][]int
	nextID int
}

// Build turns a failed solve's conflicts into a ProblemsGraph rooted at
// a synthetic Root node with one child per top-level job spec.
func Build(jobSpecs []matchspec.MatchSpec, conflicts []solver.Conflict) *Graph {
	g := &Graph{Conflicts: make(map[[2]int]bool), byName: make(map[string][]int)}
	root := g.addNode(RootNode, "")
	g.rootID = root.ID

	specNodes := make(map[string]int, len(jobSpecs))
	for _, spec := range jobSpecs {
		n := g.addNode(PackageNode, spec.Name)
		n.Spec = spec
		specNodes[spec.Name] = n.ID
		g.Edges = append(g.Edges, Edge{From: root.ID, To: n.ID, Spec: spec})
	}

	for _, c := range conflicts {
		parentID, ok := specNodes[c.RequiredBy]
		if !ok {
			parentID = g.requirerNode(c.RequiredBy, specNodes)
		}

		switch c.Kind {
		case solver.UnresolvedDep:
			n := g.addNode(UnresolvedDepNode, c.Spec.Name)
			n.Spec = c.Spec
			g.Edges = append(g.Edges, Edge{From: parentID, To: n.ID, Spec: c.Spec})

		case solver.ConstraintViolation:
			n := g.addNode(ConstraintNode, c.Spec.Name)
			n.Spec = c.Spec
			other := g.packageNode(c.Other)
			g.Edges = append(g.Edges, Edge{From: parentID, To: n.ID, Spec: c.Spec})
			g.markConflict(n.ID, other.ID)

		case solver.SameNameConflict:
			subject := g.packageNode(c.Subject)
			other := g.packageNode(c.Other)
			g.Edges = append(g.Edges, Edge{From: parentID, To: subject.ID, Spec: c.Spec})
			g.markConflict(subject.ID, other.ID)
		}
	}

	return g
}

func (g *Graph) addNode(kind NodeKind, name string) *Node {
	n := &Node{ID: g.nextID, Kind: kind, Name: name}
	g.nextID++
	g.Nodes = append(g.Nodes, n)
	if name != "" {
		g.byName[name] = append(g.byName[name], n.ID)
	}
	return n
}

// packageNode returns an existing node for pkg.Name if one already
// represents exactly this package, creating one otherwise.
func (g *Graph) packageNode(pkg matchspec.PackageInfo) *Node {
	for _, id := range g.byName[pkg.Name] {
		n := g.node(id)
		if n.Kind == PackageNode && len(n.Members) == 1 && n.Members[0].Fn == pkg.Fn {
			return n
		}
	}
	n := g.addNode(PackageNode, pkg.Name)
	n.Package = pkg
	n.Members = []matchspec.PackageInfo{pkg}
	return n
}

// requirerNode finds or creates a node for a "job:<kind>" requirer label
// that didn't already correspond to a top-level job spec by name.
func (g *Graph) requirerNode(label string, specNodes map[string]int) int {
	if id, ok := specNodes[label]; ok {
		return id
	}
	n := g.addNode(PackageNode, label)
	return n.ID
}

func (g *Graph) node(id int) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func (g *Graph) markConflict(a, b int) {
	if a == b {
		return
	}
	key := conflictKey(a, b)
	g.Conflicts[key] = true
}

func conflictKey(a, b int) [2]int {
	if a < b {
		return [2]int{a, b}
	}
	return [2]int{b, a}
}

func (g *Graph) conflicts(a, b int) bool {
	return g.Conflicts[conflictKey(a, b)]
}

// successors returns the IDs of nodes g.Edges says id points to, sorted
// for deterministic traversal.
func (g *Graph) successors(id int) []int {
	var out []int
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e.To)
		}
	}
	sort.Ints(out)
	return out
}

// predecessors returns the IDs of nodes that point to id.
func (g *Graph) predecessors(id int) []int {
	var out []int
	for _, e := range g.Edges {
		if e.To == id {
			out = append(out, e.From)
		}
	}
	sort.Ints(out)
	return out
}

func (n *Node) label() string {
	switch n.Kind {
	case RootNode:
		return "root"
	case UnresolvedDepNode:
		return fmt.Sprintf("nothing provides %s", n.Spec.String())
	case ConstraintNode:
		return fmt.Sprintf("constraint %s", n.Spec.String())
	default:
		if len(n.Members) == 1 {
			return n.Members[0].String()
		}
		return n.Name
	}
}
