package trust

import (
	"encoding/json"
	"regexp"
	"strconv"
	"time"
)

// rootSigned is the "signed" payload of a root.json: the full set of
// role keys and thresholds for root, key_mgr, and (v1 only) other
// top-level roles, plus any spec_version upgrade allow-list.
type rootSigned struct {
	commonFields
	// v0.6 shape: role keys live under "delegations".
	Delegations map[string]RoleThreshold `json:"delegations,omitempty"`
	// v1 shape: role keys live under "roles".
	Roles map[string]RoleThreshold `json:"roles,omitempty"`
	Keys  map[string]KeyInfo       `json:"keys"`
	// UpgradePrefix lists the spec_version prefixes this root is
	// permitted to upgrade to in a successor file.
	UpgradePrefix []string `json:"upgrade_prefix,omitempty"`
}

func (r rootSigned) spec() SpecVersion {
	switch {
	case r.SpecVersion == "" || r.SpecVersion == "0.6" || r.SpecVersion == "1.0.17":
		return SpecV06
	default:
		return SpecV1
	}
}

func (r rootSigned) roleThreshold(role string) (RoleThreshold, bool) {
	if r.Roles != nil {
		rt, ok := r.Roles[role]
		return rt, ok
	}
	rt, ok := r.Delegations[role]
	return rt, ok
}

// Root is a validated, currently-trusted root role.
type Root struct {
	signed rootSigned
	spec   SpecVersion
	raw    json.RawMessage
}

var rootFilePattern = regexp.MustCompile(`^(\d+)\.root\.json$`)

// parseRootFilename extracts the version number from a "<N>.root.json"
// filename, per the chain-walking rule.
func parseRootFilename(name string) (int64, error) {
	m := rootFilePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, RoleFileError{Path: name}
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, RoleFileError{Path: name}
	}
	return n, nil
}

// LoadInitialRoot parses and self-validates the first trusted root
// metadata file, read from local disk (never fetched from the network).
// A root file is "self-trusted" in the sense that its own threshold of
// root-role signatures must already be present and valid within the
// file: there is no predecessor to validate it against.
func LoadInitialRoot(data []byte) (*Root, error) {
	var env rawSigned
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, RoleMetadataError{Reason: "invalid JSON envelope: " + err.Error()}
	}
	var cf commonFields
	if err := json.Unmarshal(env.Signed, &cf); err != nil {
		return nil, RoleMetadataError{Reason: "invalid signed payload: " + err.Error()}
	}
	if cf.Type != "" && cf.Type != "root" {
		return nil, RoleMetadataError{Reason: "expected type=root, got " + cf.Type}
	}

	var signed rootSigned
	if err := json.Unmarshal(env.Signed, &signed); err != nil {
		return nil, RoleMetadataError{Reason: "invalid root payload: " + err.Error()}
	}
	spec := signed.spec()

	canon, err := canonicalize(env.Signed, spec)
	if err != nil {
		return nil, err
	}

	rt, ok := signed.roleThreshold("root")
	if !ok {
		return nil, RoleMetadataError{Reason: "root role has no threshold entry"}
	}
	if rt.Threshold <= 0 {
		return nil, RoleMetadataError{Reason: "root role threshold must be positive"}
	}

	if err := checkThreshold(canon, signed.Keys, rt, env.Signatures, "root"); err != nil {
		return nil, err
	}
	if err := checkExpiration("root", signed.Expiration); err != nil {
		return nil, err
	}

	return &Root{signed: signed, spec: spec, raw: env.Signed}, nil
}

// checkThreshold verifies that at least threshold.Threshold distinct,
// trusted keyids produced a valid signature over canon.
func checkThreshold(canon []byte, keys map[string]KeyInfo, rt RoleThreshold, sigs map[string]rawSignature, role string) error {
	allowed := make(map[string]bool, len(rt.ids()))
	for _, id := range rt.ids() {
		allowed[id] = true
	}

	valid := 0
	seen := make(map[string]bool)
	for keyid, rs := range sigs {
		if !allowed[keyid] || seen[keyid] {
			continue
		}
		key, ok := keys[keyid]
		if !ok {
			continue
		}
		sig := Signature{Keyid: keyid, SignatureHex: rs.Signature, OtherHeaders: rs.OtherHeaders}
		if verifySignature(canon, key, sig) {
			valid++
			seen[keyid] = true
		}
	}
	if valid < rt.Threshold {
		return RoleError{Role: role, Got: valid, Want: rt.Threshold}
	}
	return nil
}

func checkExpiration(role, expiration string) error {
	if expiration == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, expiration)
	if err != nil {
		return RoleMetadataError{Reason: role + " has an unparseable expiration: " + expiration}
	}
	if time.Now().After(t) {
		return FreezeError{Role: role, Expires: expiration}
	}
	return nil
}

// Update validates a candidate successor root file against the current
// root and, on success, returns the new current Root. It implements the
// forward-walk rule: monotonic version increase by exactly one,
// threshold signatures from the *current* root's key set, non-expired,
// and (if the spec version changes) an allowed upgrade.
func (r *Root) Update(filename string, data []byte) (*Root, error) {
	if _, err := parseRootFilename(filename); err != nil {
		return nil, err
	}

	var env rawSigned
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, RoleMetadataError{Reason: "invalid JSON envelope: " + err.Error()}
	}
	var next rootSigned
	if err := json.Unmarshal(env.Signed, &next); err != nil {
		return nil, RoleMetadataError{Reason: "invalid root payload: " + err.Error()}
	}

	nextSpec := next.spec()
	if nextSpec != r.spec {
		if !r.specUpgradeAllowed(string(nextSpec)) {
			return nil, SpecVersionError{Got: string(nextSpec), Supported: string(r.spec)}
		}
	}

	canon, err := canonicalize(env.Signed, r.spec)
	if err != nil {
		return nil, err
	}

	rt, ok := r.signed.roleThreshold("root")
	if !ok {
		return nil, RoleMetadataError{Reason: "current root has no root threshold"}
	}
	if err := checkThreshold(canon, r.signed.Keys, rt, env.Signatures, "root"); err != nil {
		return nil, err
	}

	if next.Version != r.signed.Version+1 {
		return nil, RollbackError{From: r.signed.Version, To: next.Version}
	}
	if err := checkExpiration("root", next.Expiration); err != nil {
		return nil, err
	}

	return &Root{signed: next, spec: nextSpec, raw: env.Signed}, nil
}

func (r *Root) specUpgradeAllowed(next string) bool {
	for _, prefix := range r.signed.UpgradePrefix {
		if len(next) >= len(prefix) && next[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// Version reports the currently trusted root's version number.
func (r *Root) Version() int64 { return r.signed.Version }

// Spec reports the currently trusted root's canonicalization dialect.
func (r *Root) Spec() SpecVersion { return r.spec }
