package trust

import (
	"encoding/json"
	"fmt"
)

// delegatedSigned is the "signed" payload shape shared by key_mgr.json
// and pkg_mgr.json: their own version/expiration (not required to chain
// against a predecessor the way root does), a key set, and (for
// key_mgr) the threshold that governs pkg_mgr.
type delegatedSigned struct {
	commonFields
	Delegations map[string]RoleThreshold `json:"delegations,omitempty"`
	Roles       map[string]RoleThreshold `json:"roles,omitempty"`
	Keys        map[string]KeyInfo       `json:"keys"`
}

func (d delegatedSigned) roleThreshold(role string) (RoleThreshold, bool) {
	if d.Roles != nil {
		rt, ok := d.Roles[role]
		return rt, ok
	}
	rt, ok := d.Delegations[role]
	return rt, ok
}

// KeyMgr is the role one level below root: root verifies key_mgr.json,
// and key_mgr verifies pkg_mgr.json.
type KeyMgr struct {
	signed delegatedSigned
	spec   SpecVersion
}

// VerifyKeyMgr validates key_mgr.json against the currently trusted
// root's "key_mgr" role threshold.
func (r *Root) VerifyKeyMgr(data []byte) (*KeyMgr, error) {
	var env rawSigned
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, RoleMetadataError{Reason: "invalid JSON envelope: " + err.Error()}
	}
	var signed delegatedSigned
	if err := json.Unmarshal(env.Signed, &signed); err != nil {
		return nil, RoleMetadataError{Reason: "invalid key_mgr payload: " + err.Error()}
	}
	if signed.Type != "" && signed.Type != "key_mgr" {
		return nil, RoleMetadataError{Reason: "expected type=key_mgr, got " + signed.Type}
	}

	canon, err := canonicalize(env.Signed, r.spec)
	if err != nil {
		return nil, err
	}
	rt, ok := r.signed.roleThreshold("key_mgr")
	if !ok {
		return nil, RoleMetadataError{Reason: "root has no key_mgr threshold"}
	}
	if err := checkThreshold(canon, r.signed.Keys, rt, env.Signatures, "key_mgr"); err != nil {
		return nil, err
	}
	if err := checkExpiration("key_mgr", signed.Expiration); err != nil {
		return nil, err
	}
	return &KeyMgr{signed: signed, spec: r.spec}, nil
}

// PkgMgr is the role whose keys sign individual package records.
type PkgMgr struct {
	signed delegatedSigned
	spec   SpecVersion
}

// VerifyPkgMgr validates pkg_mgr.json against km's own key set.
func (km *KeyMgr) VerifyPkgMgr(data []byte) (*PkgMgr, error) {
	var env rawSigned
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, RoleMetadataError{Reason: "invalid JSON envelope: " + err.Error()}
	}
	var signed delegatedSigned
	if err := json.Unmarshal(env.Signed, &signed); err != nil {
		return nil, RoleMetadataError{Reason: "invalid pkg_mgr payload: " + err.Error()}
	}
	if signed.Type != "" && signed.Type != "pkg_mgr" {
		return nil, RoleMetadataError{Reason: "expected type=pkg_mgr, got " + signed.Type}
	}

	canon, err := canonicalize(env.Signed, km.spec)
	if err != nil {
		return nil, err
	}
	rt, ok := km.signed.roleThreshold("pkg_mgr")
	if !ok {
		return nil, RoleMetadataError{Reason: "key_mgr has no pkg_mgr threshold"}
	}
	if err := checkThreshold(canon, km.signed.Keys, rt, env.Signatures, "pkg_mgr"); err != nil {
		return nil, err
	}
	if err := checkExpiration("pkg_mgr", signed.Expiration); err != nil {
		return nil, err
	}
	return &PkgMgr{signed: signed, spec: km.spec}, nil
}

// VerifyPackage checks a package's canonical "signable" JSON against
// pm's key set and the package's own "signatures" map, requiring the
// same threshold used for pkg_mgr itself (a conda-content-trust package
// record has no separate per-package threshold).
func (pm *PkgMgr) VerifyPackage(signable json.RawMessage, signatures map[string]Signature) error {
	canon, err := canonicalize(signable, pm.spec)
	if err != nil {
		return err
	}
	rt, ok := pm.signed.roleThreshold("pkg_mgr")
	if !ok {
		return RoleMetadataError{Reason: "pkg_mgr role has no threshold on itself"}
	}
	raw := make(map[string]rawSignature, len(signatures))
	for keyid, sig := range signatures {
		raw[keyid] = rawSignature{Signature: sig.SignatureHex, OtherHeaders: sig.OtherHeaders}
	}
	return checkThreshold(canon, pm.signed.Keys, rt, raw, "pkg_mgr")
}

// Chain is the fully derived trust chain for one channel: the current
// root, its key_mgr, and its pkg_mgr.
type Chain struct {
	Root   *Root
	KeyMgr *KeyMgr
	PkgMgr *PkgMgr
}

// RoleFetcher reads one role file's bytes, either from local disk (for
// the known-good cached chain) or from a channel's well-known trust
// metadata URL. It returns (nil, false, nil) when the file does not
// exist, distinguishing "no successor" from a read error.
type RoleFetcher func(filename string) (data []byte, exists bool, err error)

// BuildChain walks forward through "<N+1>.root.json" files starting
// from the given initial root bytes until no further successor exists,
// then derives key_mgr and pkg_mgr from the final trusted root.
func BuildChain(initialRoot []byte, fetchRole RoleFetcher, fetchKeyMgr, fetchPkgMgr func() ([]byte, error)) (*Chain, error) {
	root, err := LoadInitialRoot(initialRoot)
	if err != nil {
		return nil, err
	}

	for {
		next := root.Version() + 1
		name := fmt.Sprintf("%d.root.json", next)
		data, exists, err := fetchRole(name)
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}
		root, err = root.Update(name, data)
		if err != nil {
			return nil, err
		}
	}

	kmData, err := fetchKeyMgr()
	if err != nil {
		return nil, err
	}
	km, err := root.VerifyKeyMgr(kmData)
	if err != nil {
		return nil, err
	}

	pmData, err := fetchPkgMgr()
	if err != nil {
		return nil, err
	}
	pm, err := km.VerifyPkgMgr(pmData)
	if err != nil {
		return nil, err
	}

	return &Chain{Root: root, KeyMgr: km, PkgMgr: pm}, nil
}
