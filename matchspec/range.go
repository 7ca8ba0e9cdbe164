package matchspec

import "strings"

// op is one comparison operator recognised in a version range clause.
type op int

const (
	opEq op = iota
	opNe
	opGe
	opLe
	opGt
	opLt
	opStartsWith // "2.*" style prefix match
	opCompatible // "~=1.2" style: >= 1.2, same leading component
)

type clause struct {
	operator op
	version  Version
}

func (c clause) matches(v Version) bool {
	switch c.operator {
	case opEq:
		return v.Equal(c.version)
	case opNe:
		return !v.Equal(c.version)
	case opGe:
		return !v.Less(c.version)
	case opLe:
		return !v.Greater(c.version)
	case opGt:
		return v.Greater(c.version)
	case opLt:
		return v.Less(c.version)
	case opStartsWith:
		return strings.HasPrefix(v.String(), strings.TrimSuffix(c.version.String(), "*"))
	case opCompatible:
		return !v.Less(c.version) && v.Epoch == c.version.Epoch &&
			len(v.Components) > 0 && len(c.version.Components) > 0 &&
			v.Components[0].Compare(c.version.Components[0]) == 0
	}
	return false
}

// VersionRange is an abstract predicate over a Version atom: an OR of
// AND-groups of clauses, e.g. "1.2.*|>=2.0,<3.0".
type VersionRange struct {
	raw    string
	orOf   [][]clause
}

// AnyVersion matches every Version, including the wildcard.
var AnyVersion = VersionRange{raw: "*", orOf: [][]clause{{{operator: opStartsWith, version: ParseVersion("*")}}}}

// ParseVersionRange parses a match-spec version range expression.
func ParseVersionRange(s string) VersionRange {
	s = strings.TrimSpace(s)
	vr := VersionRange{raw: s}
	if s == "" || s == "*" {
		return AnyVersion
	}
	for _, group := range strings.Split(s, "|") {
		var clauses []clause
		for _, part := range strings.Split(group, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			clauses = append(clauses, parseClause(part))
		}
		if len(clauses) > 0 {
			vr.orOf = append(vr.orOf, clauses)
		}
	}
	return vr
}

func parseClause(s string) clause {
	switch {
	case strings.HasPrefix(s, ">="):
		return clause{opGe, ParseVersion(strings.TrimPrefix(s, ">="))}
	case strings.HasPrefix(s, "<="):
		return clause{opLe, ParseVersion(strings.TrimPrefix(s, "<="))}
	case strings.HasPrefix(s, "!="):
		return clause{opNe, ParseVersion(strings.TrimPrefix(s, "!="))}
	case strings.HasPrefix(s, "~="):
		return clause{opCompatible, ParseVersion(strings.TrimPrefix(s, "~="))}
	case strings.HasPrefix(s, ">"):
		return clause{opGt, ParseVersion(strings.TrimPrefix(s, ">"))}
	case strings.HasPrefix(s, "<"):
		return clause{opLt, ParseVersion(strings.TrimPrefix(s, "<"))}
	case strings.HasPrefix(s, "=="):
		return clause{opEq, ParseVersion(strings.TrimPrefix(s, "=="))}
	case strings.HasSuffix(s, "*"):
		return clause{opStartsWith, ParseVersion(strings.TrimPrefix(s, "="))}
	case strings.HasPrefix(s, "="):
		return clause{opEq, ParseVersion(strings.TrimPrefix(s, "="))}
	default:
		return clause{opEq, ParseVersion(s)}
	}
}

// Matches reports whether v satisfies the range: true if any OR-group's
// clauses all match (AND within a group, OR across groups).
func (vr VersionRange) Matches(v Version) bool {
	if len(vr.orOf) == 0 {
		return true
	}
	for _, group := range vr.orOf {
		ok := true
		for _, c := range group {
			if !c.matches(v) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func (vr VersionRange) String() string {
	if vr.raw == "" {
		return "*"
	}
	return vr.raw
}
