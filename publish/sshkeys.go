package publish

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// sshKey is one candidate signing identity discovered on the local
// machine: either live in ssh-agent (or gpg-agent's ssh-agent
// emulation) or sitting as a private key file next to a ~/.ssh/*.pub.
type sshKey struct {
	source      string // "agent" or "file"
	alg         string
	fingerprint string // SHA256
	comment     string
	signer      ssh.Signer // nil if the private half isn't available
}

// discoverSSHKeys enumerates local SSH keys in the order Publish should
// try them: agent-resident keys first (never touch private bytes),
// then ~/.ssh/*.pub files with a loadable sibling private key.
func discoverSSHKeys(log *slog.Logger) (out []sshKey, err error) {
	log.Debug("discovering SSH keys for publish authentication")

	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		log.Debug("SSH_AUTH_SOCK not set, trying gpg-agent's SSH socket")
		s, err := gpgAgentSSHSock()
		if err != nil {
			log.Debug("error getting gpg-agent SSH socket", slog.Any("error", err))
		}
		if err == nil && s != "" {
			sock = s
			log.Debug("using gpg-agent SSH socket", slog.String("socket", sock))
		}
	}
	if sock != "" {
		log.Debug("listing agent keys", slog.String("socket", sock))
		keys, err := listAgentKeys(sock)
		if err != nil {
			log.Warn("failed to list SSH agent keys", slog.Any("error", err))
		}
		if err == nil {
			out = append(out, keys...)
		}
	}

	log.Debug("scanning ~/.ssh directory for key files")
	keys, err := listFileKeys()
	if err != nil {
		log.Warn("failed to scan for key files", slog.Any("error", err))
	}
	if err == nil {
		out = append(out, keys...)
	}

	return out, nil
}

func listAgentKeys(sock string) (out []sshKey, err error) {
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ac := agent.NewClient(conn)
	keys, err := ac.List()
	if err != nil {
		return nil, err
	}

	for _, k := range keys {
		pub, err := ssh.ParsePublicKey(k.Marshal())
		if err != nil {
			continue
		}
		out = append(out, sshKey{
			source:      "agent",
			alg:         algorithmName(pub.Type()),
			fingerprint: ssh.FingerprintSHA256(pub),
			comment:     strings.TrimSpace(k.Comment),
			signer:      &agentSigner{socket: sock, publicKey: pub},
		})
	}
	return out, nil
}

func listFileKeys() ([]sshKey, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	matches, _ := filepath.Glob(filepath.Join(home, ".ssh", "*.pub"))

	var out []sshKey
	for _, p := range matches {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		fields := bytes.Fields(data)
		if len(fields) < 2 {
			continue
		}
		pub, comment, _, _, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			continue
		}

		privateKeyPath := strings.TrimSuffix(p, ".pub")
		signer, err := loadPrivateKey(privateKeyPath)
		if err != nil {
			signer = nil // encrypted or missing; skip as a signing candidate
		}

		out = append(out, sshKey{
			source:      "file",
			alg:         algorithmName(pub.Type()),
			fingerprint: ssh.FingerprintSHA256(pub),
			comment:     strings.TrimSpace(comment),
			signer:      signer,
		})
	}
	return out, nil
}

func algorithmName(t string) string {
	switch t {
	case "ssh-ed25519":
		return "ed25519"
	case "ssh-rsa":
		return "rsa"
	case "ecdsa-sha2-nistp256":
		return "ecdsa-p256"
	case "sk-ecdsa-sha2-nistp256@openssh.com":
		return "ecdsa-sk"
	case "sk-ssh-ed25519@openssh.com":
		return "ed25519-sk"
	default:
		return t
	}
}

func gpgAgentSSHSock() (string, error) {
	cmd := exec.Command("gpgconf", "--list-dirs", "agent-ssh-socket")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func loadPrivateKey(path string) (ssh.Signer, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("encrypted keys not supported: %w", err)
	}
	return signer, nil
}

// agentSigner implements ssh.Signer against a live ssh-agent connection,
// reconnecting per signature rather than holding the socket open.
type agentSigner struct {
	socket    string
	publicKey ssh.PublicKey
}

func (s *agentSigner) PublicKey() ssh.PublicKey {
	return s.publicKey
}

func (s *agentSigner) Sign(rand io.Reader, data []byte) (*ssh.Signature, error) {
	conn, err := net.Dial("unix", s.socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ssh-agent: %w", err)
	}
	defer conn.Close()

	ac := agent.NewClient(conn)
	return ac.Sign(s.publicKey, data)
}
