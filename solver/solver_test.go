package solver

import (
	"context"
	"testing"

	"github.com/binpack/binpack/matchspec"
	"github.com/binpack/binpack/pool"
	"github.com/binpack/binpack/repodata"
)

func pkg(name, version, build string, depends ...string) matchspec.PackageInfo {
	return matchspec.PackageInfo{
		Name: name, Version: version, BuildString: build, Channel: "main",
		Subdir: "linux-64", Fn: name + "-" + version + "-" + build + ".tar.bz2",
		Depends: depends,
	}
}

func newPool(pkgs ...matchspec.PackageInfo) *pool.Pool {
	m := make(map[string]matchspec.PackageInfo)
	for _, p := range pkgs {
		m[p.Fn] = p
	}
	snap := repodata.RepoSnapshot{Channel: "main", Subdir: "linux-64", Packages: m}
	return pool.New([]pool.Channel{{Name: "main", Rank: 0, Snapshot: snap}}, nil, false)
}

func mustSpec(t *testing.T, s string) matchspec.MatchSpec {
	t.Helper()
	spec, err := matchspec.ParseMatchSpec(s)
	if err != nil {
		t.Fatalf("ParseMatchSpec(%q): %v", s, err)
	}
	return spec
}

func TestSolveSimpleInstall(t *testing.T) {
	p := newPool(pkg("foo", "1.0.0", "0"))
	s := New([]Job{{Kind: Install, Spec: mustSpec(t, "foo")}}, Flags{})
	result, _, err := s.Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if len(result.ToInstall) != 1 || result.ToInstall[0].Name != "foo" {
		t.Fatalf("expected foo to be installed, got %+v", result.ToInstall)
	}
}

func TestSolveResolvesDependencies(t *testing.T) {
	p := newPool(
		pkg("foo", "1.0.0", "0", "bar"),
		pkg("bar", "2.0.0", "0"),
	)
	s := New([]Job{{Kind: Install, Spec: mustSpec(t, "foo")}}, Flags{})
	result, _, err := s.Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	names := map[string]bool{}
	for _, pkg := range result.ToInstall {
		names[pkg.Name] = true
	}
	if !names["foo"] || !names["bar"] {
		t.Fatalf("expected both foo and bar installed, got %+v", result.ToInstall)
	}
}

func TestSolveUnresolvedDependencyFails(t *testing.T) {
	p := newPool(pkg("foo", "1.0.0", "0", "missing"))
	s := New([]Job{{Kind: Install, Spec: mustSpec(t, "foo")}}, Flags{})
	_, conflicts, err := s.Solve(context.Background(), p)
	if err == nil {
		t.Fatal("expected an unsatisfiable error")
	}
	if len(conflicts) == 0 {
		t.Fatal("expected at least one recorded conflict")
	}
	if conflicts[0].Kind != UnresolvedDep {
		t.Fatalf("expected UnresolvedDep conflict, got %v", conflicts[0].Kind)
	}
}

func TestSolveNoDepsSkipsDependencies(t *testing.T) {
	p := newPool(pkg("foo", "1.0.0", "0", "missing"))
	s := New([]Job{{Kind: Install, Spec: mustSpec(t, "foo")}}, Flags{NoDeps: true})
	result, _, err := s.Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("expected NoDeps to skip the missing dependency, got %v", err)
	}
	if len(result.ToInstall) != 1 {
		t.Fatalf("expected only foo installed, got %+v", result.ToInstall)
	}
}

func TestSolvePicksHighestVersion(t *testing.T) {
	p := newPool(pkg("foo", "1.0.0", "0"), pkg("foo", "2.0.0", "0"))
	s := New([]Job{{Kind: Install, Spec: mustSpec(t, "foo")}}, Flags{})
	result, _, err := s.Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if len(result.ToInstall) != 1 || result.ToInstall[0].Version != "2.0.0" {
		t.Fatalf("expected the highest version to win, got %+v", result.ToInstall)
	}
}

func TestSolveOnlyDepsExcludesTopLevelPackage(t *testing.T) {
	p := newPool(
		pkg("foo", "1.0.0", "0", "bar"),
		pkg("bar", "2.0.0", "0"),
	)
	s := New([]Job{{Kind: Install, Spec: mustSpec(t, "foo")}}, Flags{OnlyDeps: true})
	result, _, err := s.Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	names := map[string]bool{}
	for _, pkg := range result.ToInstall {
		names[pkg.Name] = true
	}
	if names["foo"] {
		t.Fatalf("expected foo excluded under OnlyDeps, got %+v", result.ToInstall)
	}
	if !names["bar"] {
		t.Fatalf("expected bar still installed under OnlyDeps, got %+v", result.ToInstall)
	}
}

func TestSolveOnlyDepsKeepsPackageNeededElsewhere(t *testing.T) {
	p := newPool(
		pkg("foo", "1.0.0", "0"),
		pkg("baz", "1.0.0", "0", "foo"),
	)
	s := New([]Job{
		{Kind: Install, Spec: mustSpec(t, "foo")},
		{Kind: Install, Spec: mustSpec(t, "baz")},
	}, Flags{OnlyDeps: true})
	result, _, err := s.Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	names := map[string]bool{}
	for _, pkg := range result.ToInstall {
		names[pkg.Name] = true
	}
	if !names["foo"] {
		t.Fatalf("expected foo kept since baz also depends on it, got %+v", result.ToInstall)
	}
	if names["baz"] {
		t.Fatalf("expected baz excluded under OnlyDeps since nothing else requires it, got %+v", result.ToInstall)
	}
}

func TestSolveRemove(t *testing.T) {
	installed := map[string]matchspec.PackageInfo{
		"foo-1.0.0-0.tar.bz2": pkg("foo", "1.0.0", "0"),
	}
	p := pool.New(nil, installed, false)
	s := New([]Job{{Kind: Remove, Spec: mustSpec(t, "foo")}}, Flags{})
	result, _, err := s.Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if len(result.ToRemove) != 1 || result.ToRemove[0].Name != "foo" {
		t.Fatalf("expected foo queued for removal, got %+v", result.ToRemove)
	}
}
