package trust

import "encoding/json"

// SpecVersion is the canonicalization/key-layout dialect a role file
// declares itself written in.
type SpecVersion string

const (
	SpecV06 SpecVersion = "0.6"
	SpecV1  SpecVersion = "1"
)

// KeyInfo is one trusted public key entry, keyed by its keyid (the hex
// SHA256 of the key, or in v0.6 simply the hex public key bytes used
// directly as its own id).
type KeyInfo struct {
	Keytype string `json:"keytype"`
	Scheme  string `json:"scheme"`
	Keyval  string `json:"keyval"` // hex-encoded Ed25519 public key
}

// RoleThreshold is the keyid set and signature count required to trust
// updates signed under one role.
type RoleThreshold struct {
	Keyids    []string `json:"keyids,omitempty"` // spec v1 field name
	Pubkeys   []string `json:"pubkeys,omitempty"` // spec v0.6 field name ("delegations")
	Threshold int      `json:"threshold"`
}

func (r RoleThreshold) ids() []string {
	if len(r.Keyids) > 0 {
		return r.Keyids
	}
	return r.Pubkeys
}

// Signature is one entry in a role file's "signatures" map: the keyid
// the signature claims, its hex-encoded bytes, and (for an OpenPGP
// detached signature) the trailer appended to the canonical bytes
// before hashing.
type Signature struct {
	Keyid        string `json:"-"`
	SignatureHex string `json:"signature"`
	OtherHeaders string `json:"other_headers,omitempty"` // pgp_trailer, when present
}

// rawSigned is the common envelope shape of every role file: a
// "signed" payload (whose exact inner shape depends on the role and
// spec version) and a "signatures" map.
type rawSigned struct {
	Signed     json.RawMessage          `json:"signed"`
	Signatures map[string]rawSignature  `json:"signatures"`
}

type rawSignature struct {
	Signature    string `json:"signature"`
	OtherHeaders string `json:"other_headers,omitempty"`
}

// commonFields are the fields every "signed" payload carries regardless
// of role or spec version, enough to dispatch to the right full parse.
type commonFields struct {
	Type        string `json:"type"`
	Version     int64  `json:"version"`
	SpecVersion string `json:"spec_version"`
	Expiration  string `json:"expiration"`
}
