// Package sshsig implements the envelope's key and signature wire formats:
// reconstructing an OpenSSH public key line from a bare key body, and
// parsing + verifying a detached SSH signature (the "SSHSIG" format
// produced by `ssh-keygen -Y sign`) from a bare signature body.
//
// golang.org/x/crypto/ssh exposes public-key parsing and the
// ssh.PublicKey.Verify primitive, but not the SSHSIG envelope itself, so
// the envelope framing is implemented here on top of it.
package sshsig

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/ssh"
)

const (
	armorHeader = "-----BEGIN SSH SIGNATURE-----"
	armorFooter = "-----END SSH SIGNATURE-----"
	magic       = "SSHSIG"
)

// ParsePublicKey reconstructs the canonical OpenSSH line the envelope's bare
// key body implies — "ssh-ed25519 <body> request" — and parses it.
func ParsePublicKey(bareBody string) (ssh.PublicKey, error) {
	line := fmt.Sprintf("ssh-ed25519 %s request", bareBody)

	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
	if err != nil {
		return nil, err
	}

	return key, nil
}

// Signature is a parsed detached SSH signature.
type Signature struct {
	PublicKeyBlob []byte
	Namespace     string
	HashAlgorithm string
	Format        string
	Blob          []byte
}

// ParseSignature reconstructs the PEM-like armor around the envelope's bare
// signature body and decodes the SSHSIG blob.
func ParseSignature(bareBody string) (*Signature, error) {
	armored := armorHeader + "\n" + bareBody + "\n" + armorFooter

	return parseArmoredSignature(armored)
}

func parseArmoredSignature(armored string) (*Signature, error) {
	lines := strings.Split(armored, "\n")
	if len(lines) < 3 || strings.TrimSpace(lines[0]) != armorHeader {
		return nil, fmt.Errorf("missing SSH signature armor header")
	}

	var b64 strings.Builder
	sawFooter := false

	for _, line := range lines[1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == armorFooter {
			sawFooter = true

			break
		}

		b64.WriteString(trimmed)
	}

	if !sawFooter {
		return nil, fmt.Errorf("missing SSH signature armor footer")
	}

	raw, err := base64.StdEncoding.DecodeString(b64.String())
	if err != nil {
		return nil, fmt.Errorf("decode SSH signature blob: %w", err)
	}

	return decodeBlob(raw)
}

// wire is a cursor over an SSH binary-packet-format byte slice (RFC 4251
// §5): uint32 length-prefixed strings and raw uint32s, big-endian.
type wire struct {
	data []byte
	pos  int
}

func (w *wire) bytes(n int) ([]byte, error) {
	if w.pos+n > len(w.data) {
		return nil, fmt.Errorf("SSH signature blob truncated")
	}

	b := w.data[w.pos : w.pos+n]
	w.pos += n

	return b, nil
}

func (w *wire) uint32() (uint32, error) {
	b, err := w.bytes(4)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(b), nil
}

func (w *wire) string() ([]byte, error) {
	n, err := w.uint32()
	if err != nil {
		return nil, err
	}

	return w.bytes(int(n))
}

func decodeBlob(raw []byte) (*Signature, error) {
	w := &wire{data: raw}

	preamble, err := w.bytes(len(magic))
	if err != nil || string(preamble) != magic {
		return nil, fmt.Errorf("not an SSH signature blob: bad magic preamble")
	}

	version, err := w.uint32()
	if err != nil {
		return nil, fmt.Errorf("read signature version: %w", err)
	}

	if version != 1 {
		return nil, fmt.Errorf("unsupported SSH signature version %d", version)
	}

	pubKeyBlob, err := w.string()
	if err != nil {
		return nil, fmt.Errorf("read public key blob: %w", err)
	}

	namespace, err := w.string()
	if err != nil {
		return nil, fmt.Errorf("read namespace: %w", err)
	}

	if _, err := w.string(); err != nil { // reserved
		return nil, fmt.Errorf("read reserved field: %w", err)
	}

	hashAlg, err := w.string()
	if err != nil {
		return nil, fmt.Errorf("read hash algorithm: %w", err)
	}

	sigBlob, err := w.string()
	if err != nil {
		return nil, fmt.Errorf("read signature blob: %w", err)
	}

	inner := &wire{data: sigBlob}

	format, err := inner.string()
	if err != nil {
		return nil, fmt.Errorf("read signature format: %w", err)
	}

	blob, err := inner.string()
	if err != nil {
		return nil, fmt.Errorf("read signature value: %w", err)
	}

	return &Signature{
		PublicKeyBlob: pubKeyBlob,
		Namespace:     string(namespace),
		HashAlgorithm: string(hashAlg),
		Format:        string(format),
		Blob:          blob,
	}, nil
}

func newHash(name string) (hash.Hash, error) {
	switch name {
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", name)
	}
}

func stringField(b []byte) []byte {
	out := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(out, uint32(len(b)))
	copy(out[4:], b)

	return out
}

// Verify checks that sig is a valid SSHSIG signature by key over message
// under the given namespace, per the "to-be-signed" blob construction from
// the SSHSIG format: the magic preamble, namespace, an empty reserved
// field, the hash algorithm name, and the digest of message.
func Verify(key ssh.PublicKey, namespace string, message []byte, sig *Signature) error {
	if sig.Namespace != namespace {
		return fmt.Errorf("signature namespace %q does not match expected %q", sig.Namespace, namespace)
	}

	h, err := newHash(sig.HashAlgorithm)
	if err != nil {
		return err
	}

	h.Write(message)
	digest := h.Sum(nil)

	var toSign []byte
	toSign = append(toSign, magic...)
	toSign = append(toSign, stringField([]byte(sig.Namespace))...)
	toSign = append(toSign, stringField(nil)...) // reserved
	toSign = append(toSign, stringField([]byte(sig.HashAlgorithm))...)
	toSign = append(toSign, stringField(digest)...)

	return key.Verify(toSign, &ssh.Signature{Format: sig.Format, Blob: sig.Blob})
}
