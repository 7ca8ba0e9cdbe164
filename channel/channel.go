// Package channel resolves a channel string to the (platform, url) pairs
// that repodata.SubdirIndex fetches from.
package channel

import (
	"regexp"
	"strings"
)

// Target is one (platform, base URL) pair to fetch repodata from.
type Target struct {
	Name     string // channel display name, used for channel priority and provenance
	Platform string
	URL      string // full URL to the subdir, e.g. "https://host/channel/linux-64"
}

var platformFilterRe = regexp.MustCompile(`\[([^\]]*)\]$`)

// Resolve expands a channel string into its platform targets. A bare name
// is looked up against alias; an absolute URL is used as-is. The platform
// set is {configuredPlatform, "noarch"} unless the channel string embeds
// an explicit "[platform,...]" filter.
func Resolve(spec, alias, configuredPlatform string) []Target {
	platforms := []string{configuredPlatform, "noarch"}
	base := spec

	if m := platformFilterRe.FindStringSubmatch(spec); m != nil {
		base = strings.TrimSuffix(spec, m[0])
		platforms = nil
		for _, p := range strings.Split(m[1], ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				platforms = append(platforms, p)
			}
		}
	}

	var baseURL string
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") || strings.HasPrefix(base, "file://") {
		baseURL = strings.TrimSuffix(base, "/")
	} else {
		baseURL = strings.TrimSuffix(alias, "/") + "/" + strings.Trim(base, "/")
	}

	targets := make([]Target, 0, len(platforms))
	seen := make(map[string]bool)
	for _, p := range platforms {
		if seen[p] {
			continue
		}
		seen[p] = true
		targets = append(targets, Target{Name: base, Platform: p, URL: baseURL + "/" + p})
	}
	return targets
}
