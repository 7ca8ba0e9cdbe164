package problems

import (
	"strings"
	"testing"

	"github.com/binpack/binpack/matchspec"
	"github.com/binpack/binpack/solver"
)

func spec(t *testing.T, s string) matchspec.MatchSpec {
	t.Helper()
	ms, err := matchspec.ParseMatchSpec(s)
	if err != nil {
		t.Fatalf("ParseMatchSpec(%q): %v", s, err)
	}
	return ms
}

func TestBuildUnresolvedDepLeaf(t *testing.T) {
	jobs := []matchspec.MatchSpec{spec(t, "foo")}
	conflicts := []solver.Conflict{
		{Kind: solver.UnresolvedDep, RequiredBy: "foo", Spec: spec(t, "missing")},
	}
	g := Build(jobs, conflicts)

	var found bool
	for _, n := range g.Nodes {
		if n.Kind == UnresolvedDepNode && n.Name == "missing" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an UnresolvedDep node for the missing spec")
	}
}

func TestBuildSameNameConflictMarked(t *testing.T) {
	a := matchspec.PackageInfo{Name: "dropdown", Version: "1.8", BuildString: "0", Fn: "dropdown-1.8-0.tar.bz2"}
	bpk := matchspec.PackageInfo{Name: "dropdown", Version: "2.0", BuildString: "0", Fn: "dropdown-2.0-0.tar.bz2"}

	jobs := []matchspec.MatchSpec{spec(t, "menu")}
	conflicts := []solver.Conflict{
		{Kind: solver.SameNameConflict, RequiredBy: "menu", Subject: a, Other: bpk},
	}
	g := Build(jobs, conflicts)

	var aID, bID int = -1, -1
	for _, n := range g.Nodes {
		if len(n.Members) == 1 && n.Members[0].Fn == a.Fn {
			aID = n.ID
		}
		if len(n.Members) == 1 && n.Members[0].Fn == bpk.Fn {
			bID = n.ID
		}
	}
	if aID == -1 || bID == -1 {
		t.Fatalf("expected both conflicting package nodes to exist, got nodes=%+v", g.Nodes)
	}
	if !g.conflicts(aID, bID) {
		t.Fatal("expected the two same-name packages to be marked in conflict")
	}
}

func TestCompressMergesIdenticalLeaves(t *testing.T) {
	jobs := []matchspec.MatchSpec{spec(t, "menu"), spec(t, "toolbar")}
	conflicts := []solver.Conflict{
		{Kind: solver.UnresolvedDep, RequiredBy: "menu", Spec: spec(t, "icons=1.*")},
		{Kind: solver.UnresolvedDep, RequiredBy: "toolbar", Spec: spec(t, "icons=1.*")},
	}
	g := Build(jobs, conflicts)
	before := len(g.Nodes)
	g.Compress()
	after := len(g.Nodes)
	if after >= before {
		t.Fatalf("expected compression to reduce node count, before=%d after=%d", before, after)
	}
}

func TestRenderProducesTreeWithUnresolvedLeaf(t *testing.T) {
	jobs := []matchspec.MatchSpec{spec(t, "menu")}
	conflicts := []solver.Conflict{
		{Kind: solver.UnresolvedDep, RequiredBy: "menu", Spec: spec(t, "dropdown=2.*")},
	}
	g := Build(jobs, conflicts)
	out := g.Render(RenderOptions{Glyphs: ASCIIGlyphs, Color: false})
	if !strings.Contains(out, "nothing provides dropdown=2.*") {
		t.Fatalf("expected rendered tree to mention the unresolved dep, got:\n%s", out)
	}
	if !strings.Contains(out, "root") {
		t.Fatalf("expected rendered tree to start at root, got:\n%s", out)
	}
}

func TestRenderCollapsesUniformSplit(t *testing.T) {
	jobs := []matchspec.MatchSpec{spec(t, "menu")}
	conflicts := []solver.Conflict{
		{Kind: solver.UnresolvedDep, RequiredBy: "menu", Spec: spec(t, "icons=1.*")},
	}
	g := Build(jobs, conflicts)
	out := g.Render(DefaultRenderOptions())
	if out == "" {
		t.Fatal("expected non-empty rendered output")
	}
}
