package matchspec

import "testing"

func TestVersionOrderingTotal(t *testing.T) {
	versions := []string{"1.0", "1.0.1", "1.1", "2.0", "2.0.dev1", "2.0.post1", "2.0_"}
	for _, a := range versions {
		for _, b := range versions {
			va, vb := ParseVersion(a), ParseVersion(b)
			lt, eq, gt := va.Less(vb), va.Equal(vb), va.Greater(vb)
			count := 0
			for _, x := range []bool{lt, eq, gt} {
				if x {
					count++
				}
			}
			if count != 1 {
				t.Fatalf("exactly one of <,==,> must hold for %q vs %q, got lt=%v eq=%v gt=%v", a, b, lt, eq, gt)
			}
		}
	}
}

func TestVersionOrderingTransitive(t *testing.T) {
	a, b, c := ParseVersion("1.0"), ParseVersion("1.5"), ParseVersion("2.0")
	if !(a.Less(b) && b.Less(c) && a.Less(c)) {
		t.Fatalf("expected 1.0 < 1.5 < 2.0")
	}
}

func TestDevComparesLowerThanEmptyLiteral(t *testing.T) {
	dev := ParseVersion("1.0.dev")
	empty := ParseVersion("1.0")
	if !dev.Less(empty) {
		t.Fatalf("expected 1.0.dev < 1.0 (dev literal sorts below empty literal)")
	}
}

func TestPostGreaterThanEmpty(t *testing.T) {
	post := ParseVersion("1.0.post1")
	plain := ParseVersion("1.0")
	if !post.Greater(plain) {
		t.Fatalf("expected 1.0.post1 > 1.0 (post literal sorts above empty literal)")
	}
}

func TestWildcardMatchesAnything(t *testing.T) {
	star := ParseVersion("*")
	if !star.Equal(ParseVersion("9.9.9")) {
		t.Fatalf("expected wildcard to compare equal to any version")
	}
}

func TestNumericComponentsCompareNumerically(t *testing.T) {
	if !ParseVersion("1.9").Less(ParseVersion("1.10")) {
		t.Fatalf("expected numeric comparison: 1.9 < 1.10")
	}
}
