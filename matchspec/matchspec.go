package matchspec

import (
	"fmt"
	"sort"
	"strings"
)

// MatchSpec is a parsed constraint: (name, version range, build range,
// optional channel/url, optional brackets like md5/sha256/fn). See
// a repository's package records.
type MatchSpec struct {
	Name         string
	VersionRange VersionRange
	BuildRange   string // build_string glob, e.g. "py_0", "py*", "" (any)
	Channel      string
	URL          string
	Brackets     map[string]string // md5, sha256, fn, license, ...
}

// ParseMatchSpec parses the canonical match-spec grammar:
//
//	[channel::]name[version][=build][[key=value,...]]
//
// where version is itself "op value" (a leading "=" or "==" is an exact
// match), or a glob ending in '*'. An operator-free "name-version-build"
// string is read as name==version=build. A bare "url" is accepted as a
// URL match-spec.
func ParseMatchSpec(s string) (MatchSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MatchSpec{}, fmt.Errorf("matchspec: empty spec")
	}
	ms := MatchSpec{VersionRange: AnyVersion}

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		ms.URL = s
		ms.Name = urlToName(s)
		return ms, nil
	}

	if idx := strings.Index(s, "::"); idx >= 0 {
		ms.Channel = s[:idx]
		s = s[idx+2:]
	}

	if idx := strings.IndexByte(s, '['); idx >= 0 {
		if !strings.HasSuffix(s, "]") {
			return MatchSpec{}, fmt.Errorf("matchspec: unterminated bracket in %q", s)
		}
		brackets, err := parseBrackets(s[idx+1 : len(s)-1])
		if err != nil {
			return MatchSpec{}, err
		}
		ms.Brackets = brackets
		s = s[:idx]
	}

	name, rest := splitNameFromRest(s)
	// With no operator, "name-version-build" (the PackageInfo.String()
	// form) is split from the right when its version part starts with a
	// digit.
	if parts := strings.Split(name, "-"); rest == "" && len(parts) >= 3 {
		if v := parts[len(parts)-2]; v != "" && isDigit(v[0]) {
			name = strings.Join(parts[:len(parts)-2], "-")
			rest = "==" + v + "=" + parts[len(parts)-1]
		}
	}
	ms.Name = name

	if rest != "" {
		// The build part follows the first '=' that is not part of an
		// operator ("=", "==", ">=", "<=", "!=", "~=") and does not
		// start an OR/AND clause.
		verPart, buildPart := rest, ""
		for i := 1; i < len(rest); i++ {
			if rest[i] == '=' && !strings.ContainsRune("<>=!~,|", rune(rest[i-1])) && (i+1 == len(rest) || rest[i+1] != '=') {
				verPart, buildPart = rest[:i], rest[i+1:]
				break
			}
		}
		ms.VersionRange = ParseVersionRange(verPart)
		ms.BuildRange = buildPart
	}

	return ms, nil
}

// splitNameFromRest finds where the package name ends and the version
// constraint begins: the first occurrence of a constraint-leading
// character (one of <>=!~) splits the string.
func splitNameFromRest(s string) (name, rest string) {
	for i, r := range s {
		switch r {
		case '<', '>', '=', '!', '~':
			return s[:i], s[i:]
		}
	}
	return s, ""
}

func urlToName(u string) string {
	fn := u[strings.LastIndex(u, "/")+1:]
	fn = strings.TrimSuffix(fn, ".tar.bz2")
	fn = strings.TrimSuffix(fn, ".conda")
	parts := strings.Split(fn, "-")
	if len(parts) >= 1 {
		return parts[0]
	}
	return fn
}

func parseBrackets(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("matchspec: invalid bracket field %q", kv)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

// String renders the canonical form, such that ParseMatchSpec(ms.String())
// produces an equal MatchSpec (round-trip law).
func (ms MatchSpec) String() string {
	if ms.URL != "" {
		return ms.URL
	}
	var b strings.Builder
	if ms.Channel != "" {
		b.WriteString(ms.Channel)
		b.WriteString("::")
	}
	b.WriteString(ms.Name)
	if ms.VersionRange.String() != "*" {
		b.WriteString(ms.VersionRange.String())
	}
	if ms.BuildRange != "" {
		b.WriteByte('=')
		b.WriteString(ms.BuildRange)
	}
	if len(ms.Brackets) > 0 {
		keys := make([]string, 0, len(ms.Brackets))
		for k := range ms.Brackets {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('[')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%s=%s", k, ms.Brackets[k])
		}
		b.WriteByte(']')
	}
	return b.String()
}

// Matches reports whether p satisfies every constraint in ms.
func (ms MatchSpec) Matches(p PackageInfo) bool {
	if ms.URL != "" {
		return ms.URL == p.URL
	}
	if ms.Name != "" && ms.Name != "*" && ms.Name != p.Name {
		return false
	}
	if !ms.VersionRange.Matches(p.ParsedVersion()) {
		return false
	}
	if ms.BuildRange != "" && !globMatch(ms.BuildRange, p.BuildString) {
		return false
	}
	if ms.Channel != "" && ms.Channel != p.Channel {
		return false
	}
	for k, v := range ms.Brackets {
		if !bracketMatches(k, v, p) {
			return false
		}
	}
	return true
}

func bracketMatches(key, value string, p PackageInfo) bool {
	switch key {
	case "md5":
		return p.MD5 == value
	case "sha256":
		return p.SHA256 == value
	case "fn":
		return p.Fn == value
	default:
		return true
	}
}

// globMatch supports a single trailing '*' wildcard, matching the build
// string glob syntax used throughout conda match-specs ("py_0", "py*").
func globMatch(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(s, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == s
}
