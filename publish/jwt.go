// Package publish uploads a built package archive and its
// repodata_record.json to a channel's write endpoint, authenticating
// with a bearer JWT derived from an SSH key: discover a usable SSH
// key, wrap its ssh.Signer as a crypto.Signer, and sign a short-lived
// token with it.
package publish

import (
	"crypto"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/crypto/ssh"
)

// tokenFromSSHKeys discovers local SSH keys and returns a bearer JWT
// signed by the first one usable for JWT signing (RSA or ECDSA;
// ed25519 SSH keys aren't supported by signJWT's RS256/ES256 signing
// methods).
func tokenFromSSHKeys(log *slog.Logger) (string, error) {
	keys, err := discoverSSHKeys(log)
	if err != nil {
		return "", fmt.Errorf("publish: discovering SSH keys: %w", err)
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("publish: no SSH keys found")
	}

	for _, key := range keys {
		if key.signer == nil {
			continue
		}
		pubKey := key.signer.PublicKey()
		if !isSupportedKeyType(pubKey) {
			continue
		}
		token, err := signJWT(&cryptoSignerWrapper{sshSigner: key.signer}, pubKey)
		if err != nil {
			log.Debug("publish: failed to sign JWT with key", "fingerprint", key.fingerprint, "err", err)
			continue
		}
		log.Info("publish: authenticating with SSH key", "fingerprint", key.fingerprint, "source", key.source)
		return token, nil
	}
	return "", fmt.Errorf("publish: no usable SSH key found for JWT signing")
}

func isSupportedKeyType(pubKey ssh.PublicKey) bool {
	switch pubKey.Type() {
	case ssh.KeyAlgoRSA, ssh.KeyAlgoECDSA256, ssh.KeyAlgoECDSA384, ssh.KeyAlgoECDSA521:
		return true
	default:
		return false
	}
}

// cryptoSignerWrapper adapts an ssh.Signer to crypto.Signer so an
// SSH-agent-backed (or file-backed) key can sign a JWT without ever
// exposing its private bytes to this process.
type cryptoSignerWrapper struct {
	sshSigner ssh.Signer
}

func (w *cryptoSignerWrapper) Public() crypto.PublicKey {
	cryptoPubKey, err := cryptoPublicKeyFromSSH(w.sshSigner.PublicKey())
	if err != nil {
		panic(fmt.Sprintf("publish: unsupported key type reached signer wrapper: %v", err))
	}
	return cryptoPubKey
}

func (w *cryptoSignerWrapper) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	sig, err := w.sshSigner.Sign(rand, digest)
	if err != nil {
		return nil, err
	}
	return sig.Blob, nil
}
