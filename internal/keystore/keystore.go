// Package keystore loads the directory of PEM-encoded public keys that are
// authorized to sign gateway requests (C1 in the design).
package keystore

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"

	"github.com/rs/zerolog/log"
)

// Algorithm identifies the key family of a stored entry.
type Algorithm string

const (
	AlgorithmRSA       Algorithm = "rsa"
	AlgorithmEd25519   Algorithm = "ed25519"
	AlgorithmBignP256  Algorithm = "bign-p256"
	AlgorithmNistP192  Algorithm = "nist-p192"
	AlgorithmNistP224  Algorithm = "nist-p224"
	AlgorithmNistP256  Algorithm = "nist-p256"
	AlgorithmNistP384  Algorithm = "nist-p384"
	AlgorithmNistP521  Algorithm = "nist-p521"
	AlgorithmSM2       Algorithm = "sm2"
)

// Entry is a single authorized public key, reduced to the minimum needed for
// membership comparison: an algorithm tag and the raw key bytes. Keeping a
// flat record here (rather than one Go type per curve) is the generalization
// the design notes ask for in place of a nested enum of curve types.
type Entry struct {
	Algorithm Algorithm
	Bytes     []byte
}

// Equal reports whether two entries represent the same key by structural
// comparison, not by comparing PEM text.
func (e Entry) Equal(other Entry) bool {
	if e.Algorithm != other.Algorithm || len(e.Bytes) != len(other.Bytes) {
		return false
	}

	for i := range e.Bytes {
		if e.Bytes[i] != other.Bytes[i] {
			return false
		}
	}

	return true
}

// EqualSSH reports whether this entry represents the same key material as
// the given SSH public key. Only Ed25519 entries can ever match, since the
// gateway's signing algorithm gate (C3 step 3) restricts requests to
// Ed25519; other algorithms are retained in the set for completeness and
// future reload but never satisfy membership today.
func (e Entry) EqualSSH(key ssh.PublicKey) bool {
	if e.Algorithm != AlgorithmEd25519 || key.Type() != ssh.KeyAlgoED25519 {
		return false
	}

	cryptoKey, ok := key.(ssh.CryptoPublicKey)
	if !ok {
		return false
	}

	edKey, ok := cryptoKey.CryptoPublicKey().(ed25519.PublicKey)
	if !ok {
		return false
	}

	return ed25519.PublicKey(e.Bytes).Equal(edKey)
}

// Set is the authorized-key set, an unordered collection of Entry values.
type Set struct {
	entries []Entry
}

// NewSet wraps a slice of entries into a Set.
func NewSet(entries []Entry) Set {
	return Set{entries: entries}
}

// Len reports the number of entries in the set.
func (s Set) Len() int {
	return len(s.entries)
}

// Contains reports whether key matches any entry in the set.
func (s Set) Contains(key ssh.PublicKey) bool {
	for _, e := range s.entries {
		if e.EqualSSH(key) {
			return true
		}
	}

	return false
}

// ErrEmptySet is returned by Load when a directory yields no usable keys.
// Per the invariant in the data model, the set must never be (re)placed
// with an empty one.
var ErrEmptySet = fmt.Errorf("authorized key set is empty")

// curve-identifying OIDs, the second OID in a PKCS8 EC AlgorithmIdentifier
// sequence. Only Bign-P256, NIST P-192/224/256/384/521 and SM2 are
// supported, matching the fixed dispatch table in the design.
var curveOIDs = map[string]Algorithm{
	"1.2.112.0.2.0.34.101.45.3.1": AlgorithmBignP256,
	"1.2.840.10045.3.1.1":         AlgorithmNistP192,
	"1.3.132.0.33":                AlgorithmNistP224,
	"1.2.840.10045.3.1.7":         AlgorithmNistP256,
	"1.3.132.0.34":                AlgorithmNistP384,
	"1.3.132.0.35":                AlgorithmNistP521,
	"1.2.156.10197.1.301":         AlgorithmSM2,
}

const (
	oidECPublicKey = "1.2.840.10045.2.1"
	oidEd25519     = "1.3.101.112"
)

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type subjectPublicKeyInfo struct {
	Algorithm algorithmIdentifier
	PublicKey asn1.BitString
}

// Load reads every regular file directly inside dir, parses each as a
// PEM-encoded public key, and returns the resulting set. A file that fails
// to parse is logged and skipped; Load only fails if the directory itself
// cannot be read, or if no file in it yields a usable key.
func Load(dir string) (Set, error) {
	canonical, err := filepath.Abs(dir)
	if err != nil {
		return Set{}, fmt.Errorf("canonicalize authorized keys path %q: %w", dir, err)
	}

	entries, err := os.ReadDir(canonical)
	if err != nil {
		return Set{}, fmt.Errorf("list authorized keys directory %q: %w", canonical, err)
	}

	var keys []Entry

	for _, dirEntry := range entries {
		if dirEntry.IsDir() {
			log.Warn().
				Str("dir", canonical).
				Str("entry", dirEntry.Name()).
				Msg("authorized keys directory contains a subdirectory, recursive reading is not supported")

			continue
		}

		path := filepath.Join(canonical, dirEntry.Name())

		content, err := os.ReadFile(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("failed to read authorized key file")

			continue
		}

		key, err := parsePublicKeyPEM(content)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("failed to load public key from file")

			continue
		}

		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return Set{}, ErrEmptySet
	}

	return NewSet(keys), nil
}

func parsePublicKeyPEM(content []byte) (Entry, error) {
	block, _ := pem.Decode(content)
	if block == nil {
		return Entry{}, fmt.Errorf("not a PEM block")
	}

	if block.Type != "RSA PUBLIC KEY" && block.Type != "PUBLIC KEY" {
		return Entry{}, fmt.Errorf("unknown key type label %q", block.Type)
	}

	if block.Type == "RSA PUBLIC KEY" {
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return Entry{}, fmt.Errorf("load RSA key: %w", err)
		}

		return Entry{Algorithm: AlgorithmRSA, Bytes: x509.MarshalPKCS1PublicKey(pub)}, nil
	}

	var info subjectPublicKeyInfo
	if _, err := asn1.Unmarshal(block.Bytes, &info); err != nil {
		return Entry{}, fmt.Errorf("decode SubjectPublicKeyInfo: %w", err)
	}

	topOID := info.Algorithm.Algorithm.String()

	if topOID == oidEd25519 {
		return Entry{Algorithm: AlgorithmEd25519, Bytes: info.PublicKey.RightAlign()}, nil
	}

	if topOID != oidECPublicKey {
		return Entry{}, fmt.Errorf("unsupported key algorithm OID %s", topOID)
	}

	var curveOID asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(info.Algorithm.Parameters.FullBytes, &curveOID); err != nil {
		return Entry{}, fmt.Errorf("decode curve OID: %w", err)
	}

	algo, ok := curveOIDs[curveOID.String()]
	if !ok {
		return Entry{}, fmt.Errorf("unsupported curve with OID %s", curveOID.String())
	}

	return Entry{Algorithm: algo, Bytes: info.PublicKey.RightAlign()}, nil
}
