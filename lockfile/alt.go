package lockfile

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// altDoc mirrors the JSON alternate lockfile dialect: a flat map of
// filename to package record, keyed the same way repodata.json keys
// its "packages" object, plus a parallel pipPackages map for
// pip-installed (non-conda) entries.
type altDoc struct {
	LockVersion string                  `json:"lockVersion"`
	Platform    string                  `json:"platform"`
	Channels    []string                `json:"channels"`
	ChannelInfo map[string][]altChannel `json:"channelInfo"`
	Packages    map[string]altPackage   `json:"packages"`
	PipPackages map[string]altPackage   `json:"pipPackages"`
}

type altChannel struct {
	URL string `json:"url"`
}

type altPackage struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Build        string            `json:"build"`
	URL          string            `json:"url"`
	MD5          string            `json:"md5"`
	SHA256       string            `json:"sha256"`
	Dependencies map[string]string `json:"dependencies"`
}

// ParseAlt reads the JSON alternate-dialect environment lockfile.
// Decodes into the typed doc above, walks both package maps, and
// returns entries sorted by name for determinism — following the
// same decode-then-walk-then-sort shape as npm/pkglock.Parse.
func ParseAlt(r io.Reader) (Lockfile, error) {
	var doc altDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Lockfile{}, fmt.Errorf("lockfile: parsing alternate dialect: %w", err)
	}

	out := Lockfile{Platform: doc.Platform, Channels: doc.Channels}
	out.Packages = append(out.Packages, altEntries(doc.Packages, "conda")...)
	out.Packages = append(out.Packages, altEntries(doc.PipPackages, "pip")...)

	sort.Slice(out.Packages, func(i, j int) bool {
		if out.Packages[i].Name != out.Packages[j].Name {
			return out.Packages[i].Name < out.Packages[j].Name
		}
		return out.Packages[i].Version < out.Packages[j].Version
	})
	return out, nil
}

func altEntries(m map[string]altPackage, manager string) []Entry {
	fns := make([]string, 0, len(m))
	for fn := range m {
		fns = append(fns, fn)
	}
	sort.Strings(fns)

	entries := make([]Entry, 0, len(fns))
	for _, fn := range fns {
		p := m[fn]
		deps := make([]string, 0, len(p.Dependencies))
		for name, constraint := range p.Dependencies {
			if constraint == "" || constraint == "*" {
				deps = append(deps, name)
			} else {
				deps = append(deps, name+" "+constraint)
			}
		}
		sort.Strings(deps)
		entries = append(entries, Entry{
			Name:         p.Name,
			Version:      p.Version,
			Build:        p.Build,
			Manager:      manager,
			URL:          p.URL,
			MD5:          p.MD5,
			SHA256:       p.SHA256,
			Dependencies: deps,
		})
	}
	return entries
}
