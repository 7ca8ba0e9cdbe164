// Package lockfile parses environment lockfiles consumed (not
// produced) by a transaction: pinned package sets that bypass the
// solver entirely. Two dialects are supported, each in its own file:
// conda's YAML dialect (lockfile/conda.go) and a JSON alternate
// dialect (lockfile/alt.go) shaped like npm-style package lock files.
package lockfile

import "github.com/binpack/binpack/matchspec"

// Entry is one pinned package, normalized from either dialect.
type Entry struct {
	Name         string
	Version      string
	Build        string
	Platform     string
	Manager      string // "conda" or "pip"
	URL          string
	MD5          string
	SHA256       string
	Dependencies []string
	Optional     bool
}

// ToPackageInfo projects an Entry into the matchspec.PackageInfo shape
// the solver/cache/pipeline layers already work with.
func (e Entry) ToPackageInfo() matchspec.PackageInfo {
	return matchspec.PackageInfo{
		Name:        e.Name,
		Version:     e.Version,
		BuildString: e.Build,
		Subdir:      e.Platform,
		URL:         e.URL,
		MD5:         e.MD5,
		SHA256:      e.SHA256,
		Depends:     e.Dependencies,
	}
}

// Lockfile is a parsed environment lockfile: every pinned package for
// the platform(s) it targets.
type Lockfile struct {
	Platform string
	Channels []string
	Packages []Entry
}
