package repodata

import (
	"encoding/json"
	"sort"

	"github.com/binpack/binpack/matchspec"
)

// RepoSnapshot is the parsed contents of one repodata.json: filename to
// PackageInfo, for a single (channel, subdir) pair. Created by SubdirIndex
// on successful load; referenced (never copied) by Pool for a solve.
type RepoSnapshot struct {
	Channel string
	Subdir  string
	Info    RepodataInfo
	// Packages holds both the legacy "packages" (.tar.bz2) and
	// "packages.conda" (.conda) maps, keyed by filename.
	Packages map[string]matchspec.PackageInfo
}

// RepodataInfo is the top-level "info" block of a repodata.json.
type RepodataInfo struct {
	Subdir string `json:"subdir"`
}

// rawRepodata mirrors the on-wire JSON shape published at
// <channel>/<subdir>/repodata.json.
type rawRepodata struct {
	Info            RepodataInfo              `json:"info"`
	Packages        map[string]rawPackageEntry `json:"packages"`
	PackagesConda   map[string]rawPackageEntry `json:"packages.conda"`
	RemovedPackages []string                   `json:"removed"`
}

type rawPackageEntry struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Build      string   `json:"build"`
	BuildNum   uint64   `json:"build_number"`
	Noarch     string   `json:"noarch"`
	Depends    []string `json:"depends"`
	Constrains []string `json:"constrains"`
	MD5        string   `json:"md5"`
	SHA256     string   `json:"sha256"`
	Size       int64    `json:"size"`
	Timestamp  int64    `json:"timestamp"`
}

// ParseSnapshot decodes a repodata.json document (already decompressed)
// for the given channel and subdir.
func ParseSnapshot(channel, subdir string, data []byte) (RepoSnapshot, error) {
	var raw rawRepodata
	if err := json.Unmarshal(data, &raw); err != nil {
		return RepoSnapshot{}, err
	}
	snap := RepoSnapshot{
		Channel:  channel,
		Subdir:   subdir,
		Info:     raw.Info,
		Packages: make(map[string]matchspec.PackageInfo, len(raw.Packages)+len(raw.PackagesConda)),
	}
	if snap.Info.Subdir == "" {
		snap.Info.Subdir = subdir
	}
	merge := func(fn string, e rawPackageEntry) {
		snap.Packages[fn] = matchspec.PackageInfo{
			Name:       e.Name,
			Version:    e.Version,
			BuildString: e.Build,
			BuildNumber: e.BuildNum,
			Noarch:      e.Noarch,
			Channel:    channel,
			Subdir:     subdir,
			Fn:         fn,
			Depends:    e.Depends,
			Constrains: e.Constrains,
			MD5:        e.MD5,
			SHA256:     e.SHA256,
			Size:       e.Size,
			Timestamp:  e.Timestamp,
		}
	}
	for fn, e := range raw.Packages {
		merge(fn, e)
	}
	for fn, e := range raw.PackagesConda {
		merge(fn, e)
	}
	for _, fn := range raw.RemovedPackages {
		delete(snap.Packages, fn)
	}
	return snap, nil
}

// Marshal serializes snap back to the canonical repodata.json shape,
// with map keys written in sorted order so repeated round-trips are
// byte-identical.
func (s RepoSnapshot) Marshal() ([]byte, error) {
	raw := rawRepodata{
		Info:          s.Info,
		Packages:      make(map[string]rawPackageEntry),
		PackagesConda: make(map[string]rawPackageEntry),
	}
	for fn, p := range s.Packages {
		entry := rawPackageEntry{
			Name:        p.Name,
			Version:     p.Version,
			Build:       p.BuildString,
			BuildNum:    p.BuildNumber,
			Noarch:      p.Noarch,
			Depends:     p.Depends,
			Constrains:  p.Constrains,
			MD5:         p.MD5,
			SHA256:      p.SHA256,
			Size:        p.Size,
			Timestamp:   p.Timestamp,
		}
		if len(fn) > len(".conda") && fn[len(fn)-len(".conda"):] == ".conda" {
			raw.PackagesConda[fn] = entry
		} else {
			raw.Packages[fn] = entry
		}
	}
	return marshalSorted(raw)
}

// marshalSorted re-marshals v through an ordered-map pass so that Go's
// otherwise-randomized map iteration order never leaks into the wire
// format; json.Marshal on Go maps already sorts string keys, so this is
// a thin documented wrapper rather than a custom encoder.
func marshalSorted(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// sortedFilenames returns a snapshot's filenames in sorted order, for
// deterministic iteration; nothing in the repository calls it.
func (s RepoSnapshot) sortedFilenames() []string {
	names := make([]string, 0, len(s.Packages))
	for fn := range s.Packages {
		names = append(names, fn)
	}
	sort.Strings(names)
	return names
}
