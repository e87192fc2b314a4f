package keystore

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ed25519PubPEM = `-----BEGIN PUBLIC KEY-----
MCowBQYDK2VwAyEAhSnN5FSeNuLCHKo3oJorON9aEwmHDUar5VW4wZzk6IU=
-----END PUBLIC KEY-----
`

	rsaPubPEM = `-----BEGIN RSA PUBLIC KEY-----
MIIBCgKCAQEAv85teTp6p0rk1PSinivlrHxOAgJ/RYvvikeoNWjTwsvo5T//udDH
n/dB92pXb95I4T8wDUQMwz9WH0DauYAdx3vvaQ4nLWkKNM/X1+tKtuOy0JRrrmyR
Dgnq6SjxcZKzwVH+UZ6W6dYSWQbU8c88b968w5SIUaCF6M1Z7kGKYU2R8aVyhQ+Q
dtTzj2VVP/hvn+SEhBWvuz+7pYuai/ZD2vYaKmpxj3ewJkjyzLj1jW4G5n5+cd2X
Qx01dDD7OYVgBkzP8v5z72lqLMhH24WDn2SkuMktWdqTfUSxMlmsetYQi2tgq3lw
oyVJFe2fKQFcbUQhRiq8quIVsgC/sjeyoQIDAQAB
-----END RSA PUBLIC KEY-----
`

	nistP256PubPEM = `-----BEGIN PUBLIC KEY-----
MFkwEwYHKoZIzj0CAQYIKoZIzj0DAQcDQgAEfb3F79iepMARw8tcZ872YDLWaZwo
jQqhm9ttcTzVPG3lgD8fM5eJdM/ukaeAVYefgoKa7+fJxmI5PPt6mb16Rg==
-----END PUBLIC KEY-----
`
)

func writeKey(t *testing.T, dir, name, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoad_MixedAlgorithms(t *testing.T) {
	dir := t.TempDir()
	writeKey(t, dir, "ed25519.pem", ed25519PubPEM)
	writeKey(t, dir, "rsa.pem", rsaPubPEM)
	writeKey(t, dir, "nistp256.pem", nistP256PubPEM)

	set, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())
}

func TestLoad_SkipsUnparseableFiles(t *testing.T) {
	dir := t.TempDir()
	writeKey(t, dir, "ed25519.pem", ed25519PubPEM)
	writeKey(t, dir, "garbage.pem", "not a pem file at all")

	set, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
}

func TestLoad_SkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	writeKey(t, dir, "ed25519.pem", ed25519PubPEM)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o700))

	set, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
}

func TestLoad_EmptyDirectoryIsRejected(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrEmptySet)
}

func TestLoad_AllUnparseableIsRejected(t *testing.T) {
	dir := t.TempDir()
	writeKey(t, dir, "garbage.pem", "not a pem file at all")

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrEmptySet)
}

func TestLoad_NonexistentDirectory(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestEntry_Equal(t *testing.T) {
	a := Entry{Algorithm: AlgorithmEd25519, Bytes: []byte{1, 2, 3}}
	b := Entry{Algorithm: AlgorithmEd25519, Bytes: []byte{1, 2, 3}}
	c := Entry{Algorithm: AlgorithmEd25519, Bytes: []byte{1, 2, 4}}
	d := Entry{Algorithm: AlgorithmRSA, Bytes: []byte{1, 2, 3}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}

func TestEntry_EqualSSH(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	entry := Entry{Algorithm: AlgorithmEd25519, Bytes: pub}
	assert.True(t, entry.EqualSSH(sshPub))

	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	otherSSHPub, err := ssh.NewPublicKey(otherPub)
	require.NoError(t, err)

	assert.False(t, entry.EqualSSH(otherSSHPub))
}

func TestEntry_EqualSSH_NonEd25519NeverMatches(t *testing.T) {
	entry := Entry{Algorithm: AlgorithmRSA, Bytes: []byte{1, 2, 3}}

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	assert.False(t, entry.EqualSSH(sshPub))
}

func TestSet_Contains(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	set := NewSet([]Entry{{Algorithm: AlgorithmEd25519, Bytes: pub}})
	assert.True(t, set.Contains(sshPub))

	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	otherSSHPub, err := ssh.NewPublicKey(otherPub)
	require.NoError(t, err)

	assert.False(t, set.Contains(otherSSHPub))
}
