package problems

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Glyphs is the configurable set of tree-drawing characters used by
// Render. ASCIIGlyphs and BoxGlyphs are ready-made choices.
type Glyphs struct {
	Branch string // e.g. "├── "
	Last   string // e.g. "└── "
	Pipe   string // e.g. "│   "
	Blank  string // e.g. "    "
}

var BoxGlyphs = Glyphs{Branch: "├── ", Last: "└── ", Pipe: "│   ", Blank: "    "}
var ASCIIGlyphs = Glyphs{Branch: "|-- ", Last: "`-- ", Pipe: "|   ", Blank: "    "}

// RenderOptions controls Render's output.
type RenderOptions struct {
	Glyphs Glyphs
	Color  bool
}

func DefaultRenderOptions() RenderOptions {
	return RenderOptions{Glyphs: BoxGlyphs, Color: true}
}

// treeNode is one node of the rendered tree. A split node is a synthetic
// treeNode (never added to g.Nodes, labelled "<name> (split)") inserted
// when a single dependency name resolves to more than one candidate group.
type treeNode struct {
	label     string
	kind      NodeKind
	children  []*treeNode
	installed bool
}

// Render walks g depth-first from its root, grouping successors by
// dependency name, inserting synthetic split nodes for multi-candidate
// groups, collapsing uniform splits, and propagating an installability
// bit bottom-up: a node is installable iff every one of its dependency
// groups has at least one installable child.
func (g *Graph) Render(opts RenderOptions) string {
	root := g.buildTree(g.rootID, make(map[int]bool))
	markInstallable(root)

	var b strings.Builder
	b.WriteString("root\n")
	writeChildren(&b, root.children, "", opts)
	return b.String()
}

func (g *Graph) buildTree(id int, visiting map[int]bool) *treeNode {
	n := g.node(id)
	if n == nil || visiting[id] {
		return &treeNode{label: "(cycle)", kind: PackageNode}
	}
	visiting[id] = true
	defer delete(visiting, id)

	t := &treeNode{label: n.label(), kind: n.Kind}

	byDepName := make(map[string][]int)
	var order []string
	for _, succID := range g.successors(id) {
		sn := g.node(succID)
		if sn == nil {
			continue
		}
		if _, seen := byDepName[sn.Name]; !seen {
			order = append(order, sn.Name)
		}
		byDepName[sn.Name] = append(byDepName[sn.Name], succID)
	}
	sort.Strings(order)

	for _, depName := range order {
		group := byDepName[depName]
		if len(group) == 1 {
			t.children = append(t.children, g.buildTree(group[0], visiting))
			continue
		}
		split := &treeNode{label: fmt.Sprintf("%s (split)", depName), kind: PackageNode}
		for _, gid := range group {
			split.children = append(split.children, g.buildTree(gid, visiting))
		}
		for _, c := range split.children {
			markInstallable(c)
		}
		if uniformSplit(split.children) {
			first := split.children[0]
			split.label = first.label
			split.kind = first.kind
			split.children = first.children
		}
		t.children = append(t.children, split)
	}

	return t
}

// uniformSplit reports whether every child of a split node shares the
// same {status, type}, making the split itself uninformative.
func uniformSplit(children []*treeNode) bool {
	if len(children) < 2 {
		return true
	}
	first := children[0]
	for _, c := range children[1:] {
		if c.kind != first.kind || c.installed != first.installed {
			return false
		}
	}
	return true
}

// markInstallable propagates the installability bit bottom-up: a leaf
// UnresolvedDep/Constraint node is never installable; any other leaf is
// installable; an internal node is installable iff every dependency
// group under it has at least one installable child.
func markInstallable(t *treeNode) bool {
	if len(t.children) == 0 {
		t.installed = t.kind != UnresolvedDepNode && t.kind != ConstraintNode
		return t.installed
	}
	// A split node stands for one dependency group, satisfied by any
	// installable candidate; any other node needs every group satisfied.
	split := strings.HasSuffix(t.label, " (split)")
	ok := !split
	for _, c := range t.children {
		childOK := markInstallable(c)
		if split && childOK {
			ok = true
		} else if !split && !childOK {
			ok = false
		}
	}
	t.installed = ok
	return ok
}

func writeChildren(b *strings.Builder, children []*treeNode, prefix string, opts RenderOptions) {
	for i, c := range children {
		last := i == len(children)-1
		connector := opts.Glyphs.Branch
		nextPrefix := prefix + opts.Glyphs.Pipe
		if last {
			connector = opts.Glyphs.Last
			nextPrefix = prefix + opts.Glyphs.Blank
		}
		b.WriteString(prefix)
		b.WriteString(connector)
		b.WriteString(colorize(c, opts))
		b.WriteString("\n")
		writeChildren(b, c.children, nextPrefix, opts)
	}
}

func colorize(t *treeNode, opts RenderOptions) string {
	if !opts.Color {
		return t.label
	}
	switch {
	case t.kind == UnresolvedDepNode || t.kind == ConstraintNode:
		return color.RedString(t.label)
	case !t.installed:
		return color.YellowString(t.label)
	default:
		return color.GreenString(t.label)
	}
}
