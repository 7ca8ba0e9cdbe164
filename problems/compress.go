package problems

// Compress merges nodes that (a) share the same name, (b) are not in
// conflict with each other, (c) have identical out-neighbor leaf-sets
// (or are both leaves), and (d) for non-leaves, have identical
// in-neighbor sets. Merged
// nodes absorb each other's Members, forming a NamedList for display.
// Compression preserves reachability: the survivor of every merged
// group stays reachable from the root.
func (g *Graph) Compress() {
	changed := true
	for changed {
		changed = false
		groups := make(map[string][]int)
		for _, n := range g.Nodes {
			if n.Kind == RootNode || n.Name == "" {
				continue
			}
			groups[n.Name] = append(groups[n.Name], n.ID)
		}

		for _, ids := range groups {
			if len(ids) < 2 {
				continue
			}
			for i := 0; i < len(ids); i++ {
				for j := i + 1; j < len(ids); j++ {
					a, b := g.node(ids[i]), g.node(ids[j])
					if a == nil || b == nil || a.ID == b.ID {
						continue
					}
					if g.mergeable(a, b) {
						g.merge(a, b)
						changed = true
					}
				}
			}
		}
	}
}

func (g *Graph) mergeable(a, b *Node) bool {
	if a.Kind != b.Kind || a.Name != b.Name {
		return false
	}
	if g.conflicts(a.ID, b.ID) {
		return false
	}
	aOut, bOut := g.successors(a.ID), g.successors(b.ID)
	aLeaf, bLeaf := len(aOut) == 0, len(bOut) == 0
	if aLeaf != bLeaf {
		return false
	}
	if !aLeaf && !sameLeafSet(g, aOut, bOut) {
		return false
	}
	if !aLeaf && !sameSet(g.predecessors(a.ID), g.predecessors(b.ID)) {
		return false
	}
	return true
}

// sameLeafSet compares the successor sets by the labels of the leaves
// they eventually reach, since merged nodes keep changing IDs.
func sameLeafSet(g *Graph, a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	la, lb := leafLabels(g, a), leafLabels(g, b)
	if len(la) != len(lb) {
		return false
	}
	for k, v := range la {
		if lb[k] != v {
			return false
		}
	}
	return true
}

func leafLabels(g *Graph, ids []int) map[string]int {
	out := make(map[string]int)
	for _, id := range ids {
		n := g.node(id)
		if n == nil {
			continue
		}
		out[n.Kind.String()+":"+n.Name]++
	}
	return out
}

func sameSet(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[int]int, len(a))
	for _, v := range a {
		counts[v]++
	}
	for _, v := range b {
		counts[v]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}

// merge absorbs b into a: a's Members grows into a NamedList, b's edges
// are redirected to a, and b is removed from the graph.
func (g *Graph) merge(a, b *Node) {
	a.Members = append(a.Members, b.Members...)

	for i, e := range g.Edges {
		if e.From == b.ID {
			g.Edges[i].From = a.ID
		}
		if e.To == b.ID {
			g.Edges[i].To = a.ID
		}
	}
	for key, v := range g.Conflicts {
		if !v {
			continue
		}
		if key[0] == b.ID || key[1] == b.ID {
			delete(g.Conflicts, key)
			na, nb := key[0], key[1]
			if na == b.ID {
				na = a.ID
			}
			if nb == b.ID {
				nb = a.ID
			}
			if na != nb {
				g.Conflicts[conflictKey(na, nb)] = true
			}
		}
	}

	g.dedupeEdges()
	g.removeNode(b.ID)
}

func (g *Graph) dedupeEdges() {
	seen := make(map[Edge]bool, len(g.Edges))
	out := g.Edges[:0]
	for _, e := range g.Edges {
		if e.From == e.To {
			continue
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	g.Edges = out
}

func (g *Graph) removeNode(id int) {
	name := g.nameOf(id)
	for i, n := range g.Nodes {
		if n.ID == id {
			g.Nodes = append(g.Nodes[:i], g.Nodes[i+1:]...)
			break
		}
	}
	ids := g.byName[name]
	for i, v := range ids {
		if v == id {
			g.byName[name] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

func (g *Graph) nameOf(id int) string {
	n := g.node(id)
	if n == nil {
		return ""
	}
	return n.Name
}
