// Package pool holds the union of every loaded repository snapshot plus
// the currently-installed set, and answers "what provides this spec"
// queries for the solver.
package pool

import (
	"sort"
	"sync"

	"github.com/binpack/binpack/matchspec"
	"github.com/binpack/binpack/repodata"
)

// Channel is one ranked repository contributing packages to the pool.
// Rank 0 is highest priority.
type Channel struct {
	Name     string
	Rank     int
	Snapshot repodata.RepoSnapshot
}

// Pool is the union of all loaded RepoSnapshots plus an "installed"
// snapshot, referenced (never copied) for the duration of a solve.
type Pool struct {
	Channels  []Channel
	Installed map[string]matchspec.PackageInfo // Fn -> record, the prefix's conda-meta set

	// StrictChannelPriority, when true, prunes lower-ranked channels'
	// candidates for a name once a higher-ranked channel provides any.
	StrictChannelPriority bool

	mu       sync.Mutex
	provides map[string][]matchspec.PackageInfo // built lazily on first query
}

func New(channels []Channel, installed map[string]matchspec.PackageInfo, strict bool) *Pool {
	return &Pool{Channels: channels, Installed: installed, StrictChannelPriority: strict}
}

// buildWhatProvides constructs, for each package name, the list of
// available candidates across all channels, sorted by PackageInfo.Less
// ascending (worst first; callers needing "best first" should iterate
// in reverse). Channel rank is not part of the sort.
func (p *Pool) buildWhatProvides() map[string][]matchspec.PackageInfo {
	index := make(map[string][]matchspec.PackageInfo)
	for _, ch := range p.Channels {
		for _, pkg := range ch.Snapshot.Packages {
			index[pkg.Name] = append(index[pkg.Name], pkg)
		}
	}
	for name, pkgs := range index {
		sort.SliceStable(pkgs, func(i, j int) bool { return pkgs[i].Less(pkgs[j]) })
		index[name] = pkgs
	}
	return index
}

func (p *Pool) whatProvides(name string) []matchspec.PackageInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.provides == nil {
		p.provides = p.buildWhatProvides()
	}
	return p.provides[name]
}

// channelRank reports the rank of a channel name, or the lowest
// possible priority (len(Channels)) if unknown.
func (p *Pool) channelRank(name string) int {
	for _, ch := range p.Channels {
		if ch.Name == name {
			return ch.Rank
		}
	}
	return len(p.Channels)
}

// SelectSolvables returns every package matching spec, honoring channel
// pinning (spec.Channel restricts candidates to that channel) and, when
// StrictChannelPriority is on, pruning lower-ranked channels once any
// higher-ranked channel provides a match for the name.
func (p *Pool) SelectSolvables(spec matchspec.MatchSpec) []matchspec.PackageInfo {
	candidates := p.whatProvides(spec.Name)
	if len(candidates) == 0 {
		return nil
	}

	if p.StrictChannelPriority {
		candidates = p.pruneToTopChannel(candidates, spec)
	}

	var out []matchspec.PackageInfo
	for _, pkg := range candidates {
		if spec.Channel != "" && pkg.Channel != spec.Channel {
			continue
		}
		if spec.Matches(pkg) {
			out = append(out, pkg)
		}
	}
	return out
}

// pruneToTopChannel groups matching candidates by channel and keeps only
// those in the best-ranked channel that has at least one match for spec,
// even if a lower-ranked channel has a strictly newer version.
func (p *Pool) pruneToTopChannel(candidates []matchspec.PackageInfo, spec matchspec.MatchSpec) []matchspec.PackageInfo {
	bestRank := -1
	for _, pkg := range candidates {
		if spec.Channel != "" && pkg.Channel != spec.Channel {
			continue
		}
		if !spec.Matches(pkg) {
			continue
		}
		r := p.channelRank(pkg.Channel)
		if bestRank == -1 || r < bestRank {
			bestRank = r
		}
	}
	if bestRank == -1 {
		return candidates
	}
	out := make([]matchspec.PackageInfo, 0, len(candidates))
	for _, pkg := range candidates {
		if p.channelRank(pkg.Channel) == bestRank {
			out = append(out, pkg)
		}
	}
	return out
}

// InstalledMatching returns every installed package matching spec.
func (p *Pool) InstalledMatching(spec matchspec.MatchSpec) []matchspec.PackageInfo {
	var out []matchspec.PackageInfo
	for _, pkg := range p.Installed {
		if spec.Matches(pkg) {
			out = append(out, pkg)
		}
	}
	return out
}

// Invalidate drops the memoized what-provides index, forcing a rebuild
// on the next query (used after a channel's snapshot is refreshed).
func (p *Pool) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.provides = nil
}
