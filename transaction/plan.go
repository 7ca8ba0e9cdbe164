package transaction

import (
	"sort"

	"github.com/binpack/binpack/matchspec"
	"github.com/binpack/binpack/solver"
)

// Plan builds the final ordered Transaction from a successful solve.
// installed is the package set currently on disk (keyed by filename),
// used to detect Change/Reinstall steps and to find the noarch-Python
// relink set.
func Plan(result solver.Result, installed map[string]matchspec.PackageInfo) *Transaction {
	installByName := make(map[string]matchspec.PackageInfo, len(installed))
	for _, p := range installed {
		installByName[p.Name] = p
	}

	removeByName := make(map[string]matchspec.PackageInfo, len(result.ToRemove))
	for _, p := range result.ToRemove {
		removeByName[p.Name] = p
	}

	var changes, installs, reinstalls []matchspec.PackageInfo
	changeOld := make(map[string]matchspec.PackageInfo)

	for _, p := range result.ToInstall {
		if old, ok := installByName[p.Name]; ok {
			if old.Fn == p.Fn {
				reinstalls = append(reinstalls, p)
			} else {
				changes = append(changes, p)
				changeOld[p.Name] = old
			}
			continue
		}
		installs = append(installs, p)
	}

	var pureRemoves []matchspec.PackageInfo
	for _, p := range result.ToRemove {
		if _, beingChanged := changeOld[p.Name]; beingChanged {
			continue
		}
		pureRemoves = append(pureRemoves, p)
	}

	var steps []Step

	orderedInstalls := topoInstallOrder(append(append([]matchspec.PackageInfo{}, installs...), changes...))
	for _, p := range orderedInstalls {
		if old, ok := changeOld[p.Name]; ok {
			steps = append(steps, Step{Kind: Change, Package: p, Old: old})
		} else {
			steps = append(steps, Step{Kind: Install, Package: p})
		}
	}
	for _, p := range reinstalls {
		steps = append(steps, Step{Kind: Reinstall, Package: p})
	}

	orderedRemoves := topoInstallOrder(pureRemoves)
	for i := len(orderedRemoves) - 1; i >= 0; i-- {
		steps = append(steps, Step{Kind: Remove, Package: orderedRemoves[i]})
	}

	t := &Transaction{Steps: steps}
	t.appendNoarchPythonRelink(installByName, changeOld, changes)
	return t
}

// appendNoarchPythonRelink implements the one special case the planner
// decides on its own: if python's version is changing, every
// currently-installed noarch-python package needs its site-packages
// path regenerated, so it is appended as a Reinstall unless it is
// already part of the transaction.
func (t *Transaction) appendNoarchPythonRelink(installByName map[string]matchspec.PackageInfo, changeOld map[string]matchspec.PackageInfo, changes []matchspec.PackageInfo) {
	var pythonChanged bool
	for _, p := range changes {
		if p.Name == "python" {
			if old, ok := changeOld["python"]; ok && old.Version != p.Version {
				pythonChanged = true
			}
		}
	}
	if !pythonChanged {
		return
	}

	already := make(map[string]bool, len(t.Steps))
	for _, s := range t.Steps {
		already[s.Package.Name] = true
	}

	var names []string
	for name, p := range installByName {
		if p.Noarch == "python" && !already[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		t.Steps = append(t.Steps, Step{Kind: Reinstall, Package: installByName[name]})
	}
}

// topoInstallOrder returns pkgs ordered so that every package appears
// after the packages it depends on (within pkgs), using a stable
// depth-first postorder walk. Dependencies outside pkgs (already
// installed, or resolved but not part of this transaction) are
// ignored: there is nothing to order them against.
func topoInstallOrder(pkgs []matchspec.PackageInfo) []matchspec.PackageInfo {
	byName := make(map[string]matchspec.PackageInfo, len(pkgs))
	var names []string
	for _, p := range pkgs {
		byName[p.Name] = p
		names = append(names, p.Name)
	}
	sort.Strings(names)

	visited := make(map[string]bool, len(pkgs))
	inProgress := make(map[string]bool, len(pkgs))
	var order []matchspec.PackageInfo

	var visit func(name string)
	visit = func(name string) {
		if visited[name] || inProgress[name] {
			return
		}
		p, ok := byName[name]
		if !ok {
			return
		}
		inProgress[name] = true
		for _, dep := range p.Depends {
			depName := dependName(dep)
			if depName != "" {
				visit(depName)
			}
		}
		inProgress[name] = false
		visited[name] = true
		order = append(order, p)
	}

	for _, name := range names {
		visit(name)
	}
	return order
}

func dependName(dep string) string {
	ms, err := matchspec.ParseMatchSpec(dep)
	if err != nil {
		return ""
	}
	return ms.Name
}
