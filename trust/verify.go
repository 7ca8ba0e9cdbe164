package trust

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// verifySignature checks one signature against one candidate key. When
// the signature carries a pgp_trailer (via OtherHeaders), it is treated
// as an OpenPGP-style detached signature whose hashed message is
// canonicalBytes || trailer; otherwise it is a raw Ed25519 signature
// over canonicalBytes directly.
func verifySignature(canonicalBytes []byte, key KeyInfo, sig Signature) bool {
	if sig.OtherHeaders != "" {
		return verifyPGPTrailer(canonicalBytes, key, sig)
	}
	return verifyEd25519(canonicalBytes, key, sig)
}

func verifyEd25519(canonicalBytes []byte, key KeyInfo, sig Signature) bool {
	pubBytes, err := hex.DecodeString(key.Keyval)
	if err != nil || len(pubBytes) != ed25519.PublicKeySize {
		return false
	}
	sigBytes, err := hex.DecodeString(sig.SignatureHex)
	if err != nil || len(sigBytes) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubBytes), canonicalBytes, sigBytes)
}

// verifyPGPTrailer verifies a detached OpenPGP signature whose signed
// message is canonicalBytes with sig.OtherHeaders (the pgp_trailer)
// appended, against an armored public key bundle in key.Keyval.
func verifyPGPTrailer(canonicalBytes []byte, key KeyInfo, sig Signature) bool {
	msg := append(append([]byte{}, canonicalBytes...), sig.OtherHeaders...)

	sigBytes, err := hex.DecodeString(sig.SignatureHex)
	if err != nil {
		return false
	}

	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader([]byte(key.Keyval)))
	if err != nil || len(keyring) == 0 {
		return false
	}
	_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(msg), bytes.NewReader(sigBytes), nil)
	return err == nil
}
