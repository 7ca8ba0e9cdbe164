package publish

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/ssh"
)

// publishClaims identifies the signing key behind a publish request;
// there's no server-side verification path in this binary, only the
// minting half a channel's write endpoint is expected to check.
type publishClaims struct {
	KeyFingerprint string `json:"key_fingerprint"`
	jwt.RegisteredClaims
}

// signJWT mints a short-lived bearer token over privateKey, identified
// by publicKey's SSH fingerprint, for a single publish upload.
func signJWT(privateKey crypto.Signer, publicKey ssh.PublicKey) (string, error) {
	claims := publishClaims{
		KeyFingerprint: ssh.FingerprintSHA256(publicKey),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}

	var signingMethod jwt.SigningMethod
	switch privateKey.Public().(type) {
	case *rsa.PublicKey:
		signingMethod = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		signingMethod = jwt.SigningMethodES256
	default:
		return "", fmt.Errorf("unsupported private key type")
	}

	token := jwt.NewWithClaims(signingMethod, claims)
	signingString, err := token.SigningString()
	if err != nil {
		return "", fmt.Errorf("failed to get signing string: %w", err)
	}

	hash := sha256.Sum256([]byte(signingString))
	signature, err := privateKey.Sign(nil, hash[:], crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return strings.Join([]string{signingString, base64.RawURLEncoding.EncodeToString(signature)}, "."), nil
}

// cryptoPublicKeyFromSSH converts an RSA or ECDSA SSH public key to its
// crypto.PublicKey form, needed to report the signer's Public() for the
// crypto.Signer interface jwt signing goes through.
func cryptoPublicKeyFromSSH(sshKey ssh.PublicKey) (crypto.PublicKey, error) {
	switch sshKey.Type() {
	case ssh.KeyAlgoRSA:
		key, ok := sshKey.(ssh.CryptoPublicKey)
		if !ok {
			return nil, fmt.Errorf("SSH key does not implement CryptoPublicKey")
		}
		rsaKey, ok := key.CryptoPublicKey().(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("failed to cast to RSA public key")
		}
		return rsaKey, nil
	case ssh.KeyAlgoECDSA256, ssh.KeyAlgoECDSA384, ssh.KeyAlgoECDSA521:
		key, ok := sshKey.(ssh.CryptoPublicKey)
		if !ok {
			return nil, fmt.Errorf("SSH key does not implement CryptoPublicKey")
		}
		ecdsaKey, ok := key.CryptoPublicKey().(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("failed to cast to ECDSA public key")
		}
		return ecdsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported SSH key type: %s", sshKey.Type())
	}
}
