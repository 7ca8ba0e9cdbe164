package matchspec

import (
	"fmt"
	"strings"
)

// PackageInfo is an immutable record describing one package version, as
// published in a channel's repodata.json.
type PackageInfo struct {
	Name        string
	Version     string
	BuildString string
	BuildNumber uint64
	Noarch      string // "", "generic", or "python"

	Channel string
	Subdir  string
	Fn      string
	URL     string

	Depends    []string
	Constrains []string

	MD5       string
	SHA256    string
	Size      int64
	Timestamp int64

	Signatures map[string]string
}

// String returns the canonical "name-version-build_string" form.
func (p PackageInfo) String() string {
	return fmt.Sprintf("%s-%s-%s", p.Name, p.Version, p.BuildString)
}

// ParsedVersion parses p.Version for comparisons.
func (p PackageInfo) ParsedVersion() Version {
	return ParseVersion(p.Version)
}

// ValidProvenance reports whether p.URL is consistent with p.Subdir and
// p.Fn: url endswith "/subdir/fn".
func (p PackageInfo) ValidProvenance() bool {
	if p.URL == "" {
		return true
	}
	return strings.HasSuffix(p.URL, "/"+p.Subdir+"/"+p.Fn)
}

// Less implements the solver's tie-break order: higher
// version, then higher build number, then higher timestamp, then
// lexicographic filename as the final deterministic tiebreak. Channel
// priority is not part of this order, and its callers (the pool's
// what-provides index and the solver's candidate ordering) do not add
// it; only strict channel priority in the pool, which prunes
// lower-ranked channels, takes channel rank into account.
func (p PackageInfo) Less(o PackageInfo) bool {
	if cmp := p.ParsedVersion().Compare(o.ParsedVersion()); cmp != 0 {
		return cmp < 0
	}
	if p.BuildNumber != o.BuildNumber {
		return p.BuildNumber < o.BuildNumber
	}
	if p.Timestamp != o.Timestamp {
		return p.Timestamp < o.Timestamp
	}
	return p.Fn > o.Fn // reverse: lexicographically smaller Fn sorts "higher" as final tiebreak
}
