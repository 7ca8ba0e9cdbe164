package lockfile

import (
	"fmt"
	"io"

	"go.yaml.in/yaml/v2"
)

// condaDoc mirrors the conda lockfile (conda-lock) YAML schema:
// version, per-platform metadata, and a flat package list tagged with
// which platform/manager each entry belongs to.
type condaDoc struct {
	Version  int `yaml:"version"`
	Metadata struct {
		Platforms   []string          `yaml:"platforms"`
		Sources     []string          `yaml:"sources"`
		Channels    []condaChannelRef `yaml:"channels"`
		ContentHash map[string]string `yaml:"content_hash"`
	} `yaml:"metadata"`
	Package []condaPackage `yaml:"package"`
}

type condaChannelRef struct {
	URL string `yaml:"url"`
}

type condaPackage struct {
	Name         string            `yaml:"name"`
	Version      string            `yaml:"version"`
	Hash         condaHash         `yaml:"hash"`
	URL          string            `yaml:"url"`
	Dependencies map[string]string `yaml:"dependencies"`
	Constrains   map[string]string `yaml:"constrains"`
	Category     string            `yaml:"category"`
	Manager      string            `yaml:"manager"`
	Platform     string            `yaml:"platform"`
	Optional     bool              `yaml:"optional"`
}

type condaHash struct {
	MD5    string `yaml:"md5"`
	SHA256 string `yaml:"sha256"`
}

// ParseConda reads a conda-dialect environment lockfile.
func ParseConda(r io.Reader) (Lockfile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Lockfile{}, err
	}
	var doc condaDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Lockfile{}, fmt.Errorf("lockfile: parsing conda dialect: %w", err)
	}

	out := Lockfile{}
	if len(doc.Metadata.Platforms) > 0 {
		out.Platform = doc.Metadata.Platforms[0]
	}
	for _, ch := range doc.Metadata.Channels {
		out.Channels = append(out.Channels, ch.URL)
	}

	for _, p := range doc.Package {
		deps := make([]string, 0, len(p.Dependencies))
		for name, constraint := range p.Dependencies {
			if constraint == "" || constraint == "*" {
				deps = append(deps, name)
			} else {
				deps = append(deps, name+" "+constraint)
			}
		}
		out.Packages = append(out.Packages, Entry{
			Name:         p.Name,
			Version:      p.Version,
			Platform:     p.Platform,
			Manager:      p.Manager,
			URL:          p.URL,
			MD5:          p.Hash.MD5,
			SHA256:       p.Hash.SHA256,
			Dependencies: deps,
			Optional:     p.Optional,
		})
	}
	return out, nil
}
