// Package solver resolves a set of install/remove/update/pin Jobs
// against a Pool into a consistent set of packages, backtracking over
// candidate choices the way a CDCL-style solver backtracks over
// variable assignments, but expressed as ordinary recursive search
// rather than a literal clause-learning SAT engine: each "variable" is
// a package name, each "assignment" is the one candidate chosen for it,
// and the same invariants (per-job, per-depends, per-constrains,
// same-name-conflict, tie-break order, installed-preference) are
// enforced as search-time checks instead of boolean clauses.
package solver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/binpack/binpack/errs"
	"github.com/binpack/binpack/matchspec"
	"github.com/binpack/binpack/metrics"
	"github.com/binpack/binpack/pool"
)

// Result is a successful solve's output: the packages to install and
// remove, plus the specs history needed for transaction bookkeeping.
type Result struct {
	ToInstall    []matchspec.PackageInfo
	ToRemove     []matchspec.PackageInfo
	SpecsHistory []matchspec.MatchSpec
}

type Solver struct {
	Jobs  []Job
	Flags Flags

	// Metrics is a zero-value-safe hook for the solve-duration
	// histogram; leave unset to no-op.
	Metrics metrics.Metrics
}

func New(jobs []Job, flags Flags) *Solver {
	return &Solver{Jobs: jobs, Flags: flags}
}

// assignment maps a package name to the one candidate chosen for it in
// the current search branch.
type assignment map[string]matchspec.PackageInfo

// Solve resolves s.Jobs against p, returning a Result on success, or on
// failure the recorded Conflicts together with an Unsatisfiable error
// that carries their count.
func (s *Solver) Solve(ctx context.Context, p *pool.Pool) (Result, []Conflict, error) {
	start := time.Now()
	defer func() { s.Metrics.RecordSolveDuration(ctx, time.Since(start)) }()

	assigned := make(assignment)
	var queue []pendingSpec
	var toRemove []matchspec.PackageInfo
	var history []matchspec.MatchSpec
	pinned := make(map[string]matchspec.MatchSpec)
	topLevel := make(map[string]bool)

	for _, j := range s.Jobs {
		history = append(history, j.Spec)
		switch j.Kind {
		case Install, Update:
			queue = append(queue, pendingSpec{spec: j.Spec, requiredBy: "job:" + j.Kind.String()})
			topLevel[j.Spec.Name] = true
		case Pin:
			pinned[j.Spec.Name] = j.Spec
		case Remove:
			for _, pkg := range p.InstalledMatching(j.Spec) {
				toRemove = append(toRemove, pkg)
			}
		}
	}

	var conflicts []Conflict
	dep := make(map[string]bool)
	final, ok := s.resolve(queue, assigned, p, pinned, &conflicts, dep)
	if !ok {
		return Result{}, conflicts, errs.New(errs.Unsatisfiable, "solve", fmt.Errorf("%d unsatisfiable clause(s)", len(conflicts)))
	}

	removedNames := make(map[string]bool, len(toRemove))
	for _, r := range toRemove {
		removedNames[r.Name] = true
	}

	var toInstall []matchspec.PackageInfo
	for name, pkg := range final {
		if removedNames[name] {
			continue
		}
		if installed, ok := p.Installed[pkg.Fn]; ok && !s.Flags.ForceReinstall && installed.Fn == pkg.Fn {
			continue
		}
		// OnlyDeps means "bring in this job's dependency closure, not the
		// named package itself" — unless some other edge in the graph
		// (another job, or another package's depends) needs it too.
		if s.Flags.OnlyDeps && topLevel[name] && !dep[name] {
			continue
		}
		toInstall = append(toInstall, pkg)
	}

	return Result{ToInstall: toInstall, ToRemove: toRemove, SpecsHistory: history}, nil, nil
}

type pendingSpec struct {
	spec       matchspec.MatchSpec
	requiredBy string
}

// resolve is the backtracking search: it tries to satisfy every pending
// spec, trying candidates in tie-break order (best first, as produced by
// orderCandidates) and recursing into each candidate's own depends
// before moving to the next pending spec. The currently-installed
// package gets no preference over a newer candidate.
func (s *Solver) resolve(queue []pendingSpec, assigned assignment, p *pool.Pool, pinned map[string]matchspec.MatchSpec, conflicts *[]Conflict, dep map[string]bool) (assignment, bool) {
	if len(queue) == 0 {
		return assigned, true
	}
	head, rest := queue[0], queue[1:]
	spec := head.spec

	if !strings.HasPrefix(head.requiredBy, "job:") {
		dep[spec.Name] = true
	}

	if existing, ok := assigned[spec.Name]; ok {
		if !spec.Matches(existing) {
			*conflicts = append(*conflicts, Conflict{
				Kind: SameNameConflict, Subject: existing, RequiredBy: head.requiredBy, Spec: spec, Other: existing,
			})
			return nil, false
		}
		return s.resolve(rest, assigned, p, pinned, conflicts, dep)
	}

	candidates := p.SelectSolvables(spec)
	if pin, ok := pinned[spec.Name]; ok {
		candidates = filterMatching(candidates, pin)
	}
	if len(candidates) == 0 {
		*conflicts = append(*conflicts, Conflict{Kind: UnresolvedDep, RequiredBy: head.requiredBy, Spec: spec})
		return nil, false
	}

	ordered := orderCandidates(candidates, p, s.Flags.AllowDowngrade)

	for _, cand := range ordered {
		if violation, other := s.violatesConstrains(cand, assigned); violation {
			*conflicts = append(*conflicts, Conflict{
				Kind: ConstraintViolation, Subject: cand, RequiredBy: head.requiredBy, Spec: spec, Other: other,
			})
			continue
		}

		next := cloneAssignment(assigned)
		next[cand.Name] = cand

		nextQueue := rest
		if !s.Flags.NoDeps {
			for _, dep := range cand.Depends {
				depSpec, err := matchspec.ParseMatchSpec(dep)
				if err != nil {
					continue
				}
				nextQueue = append(nextQueue, pendingSpec{spec: depSpec, requiredBy: cand.String()})
			}
		}

		if result, ok := s.resolve(nextQueue, next, p, pinned, conflicts, dep); ok {
			return result, true
		}
	}
	return nil, false
}

// violatesConstrains reports whether cand's constrains entries rule out
// any already-assigned package: a constrains entry is only binding when
// the constrained name is actually present in the solution.
func (s *Solver) violatesConstrains(cand matchspec.PackageInfo, assigned assignment) (bool, matchspec.PackageInfo) {
	for _, c := range cand.Constrains {
		spec, err := matchspec.ParseMatchSpec(c)
		if err != nil {
			continue
		}
		other, ok := assigned[spec.Name]
		if !ok {
			continue
		}
		if !spec.Matches(other) {
			return true, other
		}
	}
	return false, matchspec.PackageInfo{}
}

// orderCandidates sorts candidates best-first by PackageInfo.Less
// (pool.SelectSolvables returns them worst-first). Unless allowDowngrade
// is set, an installed package of the same name acts as a floor:
// candidates that sort below it are dropped (if any remain). The
// installed package is not moved to the front, so a newer candidate
// is still tried first.
func orderCandidates(candidates []matchspec.PackageInfo, p *pool.Pool, allowDowngrade bool) []matchspec.PackageInfo {
	out := make([]matchspec.PackageInfo, len(candidates))
	copy(out, candidates)

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Less(out[i]) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	// out is now ascending by Less; reverse for best-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	if !allowDowngrade {
		installedBest := installedVersion(p, out)
		if installedBest != nil {
			var filtered []matchspec.PackageInfo
			for _, c := range out {
				if !c.Less(*installedBest) {
					filtered = append(filtered, c)
				}
			}
			if len(filtered) > 0 {
				out = filtered
			}
		}
	}
	return out
}

func installedVersion(p *pool.Pool, candidates []matchspec.PackageInfo) *matchspec.PackageInfo {
	if len(candidates) == 0 {
		return nil
	}
	name := candidates[0].Name
	for _, inst := range p.Installed {
		if inst.Name == name {
			v := inst
			return &v
		}
	}
	return nil
}

func filterMatching(candidates []matchspec.PackageInfo, spec matchspec.MatchSpec) []matchspec.PackageInfo {
	var out []matchspec.PackageInfo
	for _, c := range candidates {
		if spec.Matches(c) {
			out = append(out, c)
		}
	}
	return out
}

func cloneAssignment(a assignment) assignment {
	out := make(assignment, len(a)+1)
	for k, v := range a {
		out[k] = v
	}
	return out
}
