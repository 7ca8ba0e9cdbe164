package matchspec

import "testing"

func TestMatchSpecRoundTrip(t *testing.T) {
	specs := []string{
		"numpy",
		"numpy>=1.20,<2.0",
		"numpy=1.21.0=py39h_0",
		"conda-forge::numpy>=1.20",
		"numpy[md5=abc123]",
	}
	for _, s := range specs {
		ms, err := ParseMatchSpec(s)
		if err != nil {
			t.Fatalf("parse(%q): %v", s, err)
		}
		again, err := ParseMatchSpec(ms.String())
		if err != nil {
			t.Fatalf("reparse(%q): %v", ms.String(), err)
		}
		if again.String() != ms.String() {
			t.Fatalf("round trip not idempotent: %q != %q", again.String(), ms.String())
		}
	}
}

func TestPackageInfoStringParsesBack(t *testing.T) {
	p := matchPkg("numpy", "1.21.0", "py39h_0")
	ms, err := ParseMatchSpec(p.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ms.Matches(p) {
		t.Fatalf("parse(p.String()) should match p: spec=%+v pkg=%+v", ms, p)
	}
}

func TestMatchSpecVersionRangeMatching(t *testing.T) {
	ms, err := ParseMatchSpec("numpy>=1.20,<2.0")
	if err != nil {
		t.Fatal(err)
	}
	if !ms.Matches(matchPkg("numpy", "1.25.0", "py_0")) {
		t.Fatalf("expected 1.25.0 to match >=1.20,<2.0")
	}
	if ms.Matches(matchPkg("numpy", "2.0.0", "py_0")) {
		t.Fatalf("expected 2.0.0 to not match <2.0")
	}
	if ms.Matches(matchPkg("scipy", "1.25.0", "py_0")) {
		t.Fatalf("expected non-matching name to fail")
	}
}

func TestMatchSpecBuildGlob(t *testing.T) {
	ms, err := ParseMatchSpec("numpy=1.0=py3*")
	if err != nil {
		t.Fatal(err)
	}
	if !ms.Matches(matchPkg("numpy", "1.0", "py310_0")) {
		t.Fatalf("expected py3* to match py310_0")
	}
	if ms.Matches(matchPkg("numpy", "1.0", "py27_0")) {
		t.Fatalf("expected py3* to not match py27_0")
	}
}

func matchPkg(name, version, build string) PackageInfo {
	return PackageInfo{Name: name, Version: version, BuildString: build}
}
