package lockfile

import (
	"strings"
	"testing"
)

func TestParseCondaLockfile(t *testing.T) {
	doc := `
version: 1
metadata:
  platforms: [linux-64]
  sources: [environment.yml]
  channels:
    - url: https://conda.anaconda.org/conda-forge
  content_hash:
    linux-64: abc123
package:
  - name: python
    version: 3.11.0
    hash:
      sha256: deadbeef
    url: https://conda.anaconda.org/conda-forge/linux-64/python-3.11.0-0.conda
    dependencies:
      libgcc-ng: ">=12"
      ncurses: "*"
    manager: conda
    platform: linux-64
`
	lf, err := ParseConda(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseConda failed: %v", err)
	}
	if lf.Platform != "linux-64" {
		t.Fatalf("expected platform linux-64, got %q", lf.Platform)
	}
	if len(lf.Channels) != 1 || lf.Channels[0] != "https://conda.anaconda.org/conda-forge" {
		t.Fatalf("unexpected channels: %v", lf.Channels)
	}
	if len(lf.Packages) != 1 {
		t.Fatalf("expected 1 package, got %d", len(lf.Packages))
	}
	p := lf.Packages[0]
	if p.Name != "python" || p.SHA256 != "deadbeef" {
		t.Fatalf("unexpected package: %+v", p)
	}
	wantDeps := map[string]bool{"libgcc-ng >=12": true, "ncurses": true}
	for _, d := range p.Dependencies {
		if !wantDeps[d] {
			t.Fatalf("unexpected dependency %q", d)
		}
	}
}

func TestParseAltLockfileSortsDeterministically(t *testing.T) {
	doc := `{
		"lockVersion": "1.0",
		"platform": "linux-64",
		"channels": ["https://conda.anaconda.org/conda-forge"],
		"packages": {
			"zlib-1.2.13-0.conda": {"name": "zlib", "version": "1.2.13", "build": "0"},
			"python-3.11.0-0.conda": {"name": "python", "version": "3.11.0", "build": "0",
				"dependencies": {"zlib": ">=1.2"}}
		},
		"pipPackages": {
			"requests-2.31.0": {"name": "requests", "version": "2.31.0"}
		}
	}`
	lf, err := ParseAlt(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseAlt failed: %v", err)
	}
	if len(lf.Packages) != 3 {
		t.Fatalf("expected 3 packages, got %d", len(lf.Packages))
	}
	if lf.Packages[0].Name != "python" || lf.Packages[1].Name != "requests" || lf.Packages[2].Name != "zlib" {
		t.Fatalf("expected sorted-by-name order, got %v", []string{lf.Packages[0].Name, lf.Packages[1].Name, lf.Packages[2].Name})
	}
	if lf.Packages[2].Manager != "conda" || lf.Packages[1].Manager != "pip" {
		t.Fatalf("expected manager tagged per source map")
	}
	if len(lf.Packages[0].Dependencies) != 1 || lf.Packages[0].Dependencies[0] != "zlib >=1.2" {
		t.Fatalf("unexpected dependencies for python: %v", lf.Packages[0].Dependencies)
	}
}

func TestEntryToPackageInfo(t *testing.T) {
	e := Entry{Name: "foo", Version: "1.0", Build: "0", Platform: "linux-64", SHA256: "abc"}
	pi := e.ToPackageInfo()
	if pi.Name != "foo" || pi.BuildString != "0" || pi.Subdir != "linux-64" || pi.SHA256 != "abc" {
		t.Fatalf("unexpected PackageInfo: %+v", pi)
	}
}
