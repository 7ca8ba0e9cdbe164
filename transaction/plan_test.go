package transaction

import (
	"testing"

	"github.com/binpack/binpack/matchspec"
	"github.com/binpack/binpack/solver"
)

func pkg(name, version, build string, noarch string, depends ...string) matchspec.PackageInfo {
	return matchspec.PackageInfo{
		Name: name, Version: version, BuildString: build, Noarch: noarch,
		Fn: name + "-" + version + "-" + build + ".tar.bz2", Depends: depends,
	}
}

func TestPlanOrdersDependenciesBeforeDependents(t *testing.T) {
	bar := pkg("bar", "1.0", "0", "")
	foo := pkg("foo", "1.0", "0", "", "bar")
	result := solver.Result{ToInstall: []matchspec.PackageInfo{foo, bar}}

	tx := Plan(result, nil)
	if len(tx.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(tx.Steps))
	}
	if tx.Steps[0].Package.Name != "bar" || tx.Steps[1].Package.Name != "foo" {
		t.Fatalf("expected bar before foo, got %+v", tx.Steps)
	}
}

func TestPlanRemovesDependentsBeforeDependencies(t *testing.T) {
	bar := pkg("bar", "1.0", "0", "")
	foo := pkg("foo", "1.0", "0", "", "bar")
	result := solver.Result{ToRemove: []matchspec.PackageInfo{foo, bar}}

	tx := Plan(result, nil)
	if len(tx.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(tx.Steps))
	}
	if tx.Steps[0].Package.Name != "foo" || tx.Steps[1].Package.Name != "bar" {
		t.Fatalf("expected foo removed before bar, got %+v", tx.Steps)
	}
	for _, s := range tx.Steps {
		if s.Kind != Remove {
			t.Fatalf("expected all steps to be Remove, got %v", s.Kind)
		}
	}
}

func TestPlanDetectsChange(t *testing.T) {
	oldFoo := pkg("foo", "1.0", "0", "")
	newFoo := pkg("foo", "2.0", "0", "")
	installed := map[string]matchspec.PackageInfo{oldFoo.Fn: oldFoo}
	result := solver.Result{ToInstall: []matchspec.PackageInfo{newFoo}}

	tx := Plan(result, installed)
	if len(tx.Steps) != 1 || tx.Steps[0].Kind != Change {
		t.Fatalf("expected a single Change step, got %+v", tx.Steps)
	}
	if tx.Steps[0].Old.Version != "1.0" || tx.Steps[0].Package.Version != "2.0" {
		t.Fatalf("unexpected change step: %+v", tx.Steps[0])
	}
}

func TestPlanNoarchPythonRelinkOnPythonChange(t *testing.T) {
	oldPython := pkg("python", "3.10", "0", "")
	newPython := pkg("python", "3.11", "0", "")
	noarchPkg := pkg("requests", "2.0", "0", "python")

	installed := map[string]matchspec.PackageInfo{
		oldPython.Fn: oldPython,
		noarchPkg.Fn: noarchPkg,
	}
	result := solver.Result{ToInstall: []matchspec.PackageInfo{newPython}}

	tx := Plan(result, installed)

	var sawRelink bool
	for _, s := range tx.Steps {
		if s.Kind == Reinstall && s.Package.Name == "requests" {
			sawRelink = true
		}
	}
	if !sawRelink {
		t.Fatalf("expected requests to be queued for noarch relink, got %+v", tx.Steps)
	}
}

func TestPlanNoRelinkWhenPythonUnchanged(t *testing.T) {
	python := pkg("python", "3.10", "0", "")
	noarchPkg := pkg("requests", "2.0", "0", "python")
	foo := pkg("foo", "1.0", "0", "")

	installed := map[string]matchspec.PackageInfo{
		python.Fn:    python,
		noarchPkg.Fn: noarchPkg,
	}
	result := solver.Result{ToInstall: []matchspec.PackageInfo{foo}}

	tx := Plan(result, installed)
	for _, s := range tx.Steps {
		if s.Package.Name == "requests" {
			t.Fatalf("did not expect requests to be touched, got %+v", tx.Steps)
		}
	}
}
