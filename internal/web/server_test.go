package web

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"encoding/pem"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"ldap-rest-gateway/internal/envelope"
	"ldap-rest-gateway/internal/options"
)

// --- fixture plumbing: a throwaway Ed25519 keypair written to a temp
// authorized_keys directory, and a hand-rolled SSHSIG encoder so the test
// exercises the real signature pipeline instead of calling back into the
// sshsig package that produced it. ---

type fixture struct {
	priv   ed25519.PrivateKey
	sshPub ssh.PublicKey
	keyPEM string
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	return fixture{priv: priv, sshPub: sshPub, keyPEM: base64.StdEncoding.EncodeToString(sshPub.Marshal())}
}

func stringField(b []byte) []byte {
	out := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(out, uint32(len(b)))
	copy(out[4:], b)

	return out
}

func buildSSHSIGBlob(t *testing.T, priv ed25519.PrivateKey, pubBlob []byte, namespace string, message []byte) string {
	t.Helper()

	sum := sha256Sum(message)

	toSign := []byte("SSHSIG")
	toSign = append(toSign, stringField([]byte(namespace))...)
	toSign = append(toSign, stringField(nil)...)
	toSign = append(toSign, stringField([]byte("sha256"))...)
	toSign = append(toSign, stringField(sum)...)

	rawSig := ed25519.Sign(priv, toSign)

	sigBlob := stringField([]byte("ssh-ed25519"))
	sigBlob = append(sigBlob, stringField(rawSig)...)

	blob := []byte("SSHSIG")
	version := make([]byte, 4)
	binary.BigEndian.PutUint32(version, 1)
	blob = append(blob, version...)
	blob = append(blob, stringField(pubBlob)...)
	blob = append(blob, stringField([]byte(namespace))...)
	blob = append(blob, stringField(nil)...)
	blob = append(blob, stringField([]byte("sha256"))...)
	blob = append(blob, stringField(sigBlob)...)

	return base64.StdEncoding.EncodeToString(blob)
}

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)

	return sum[:]
}

func signEnvelope(t *testing.T, f fixture, namespace, data string, timestamp int64) envelope.Request {
	t.Helper()

	type signatureMessage struct {
		Data      string `json:"data"`
		Timestamp int64  `json:"timestamp"`
		PublicKey string `json:"public_key"`
	}

	msg, err := json.Marshal(signatureMessage{Data: data, Timestamp: timestamp, PublicKey: f.keyPEM})
	require.NoError(t, err)

	sigBody := buildSSHSIGBlob(t, f.priv, f.sshPub.Marshal(), namespace, msg)

	return envelope.Request{
		PublicKey: f.keyPEM,
		Data:      data,
		Timestamp: timestamp,
		Signature: sigBody,
	}
}

// --- test app wiring ---

func newTestApp(t *testing.T, f fixture, namespace string) *App {
	t.Helper()

	dir := t.TempDir()
	keyPath := dir + "/key.pem"
	require.NoError(t, writeSSHEd25519PEM(keyPath, f.sshPub))

	opts := &options.Opts{
		AuthorizedKeysPath: dir,
		Namespace:          namespace,
		RequestTimeout:     2 * time.Second,
		LDAPDialTimeout:    2 * time.Second,
	}

	app, _, _, _, err := NewApp(opts)
	require.NoError(t, err)

	return app
}

func writeSSHEd25519PEM(path string, pub ssh.PublicKey) error {
	cryptoPub := pub.(ssh.CryptoPublicKey).CryptoPublicKey().(ed25519.PublicKey)

	spki, err := x509.MarshalPKIXPublicKey(cryptoPub)
	if err != nil {
		return err
	}

	block := &pem.Block{Type: "PUBLIC KEY", Bytes: spki}

	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

// --- fake LDAP server: bind/unbind only, enough to exercise a full query
// round trip through the HTTP surface. ---

type fakeLDAPServer struct {
	ln net.Listener
}

func startFakeLDAPServer(t *testing.T) (host string, port uint16) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &fakeLDAPServer{ln: ln}
	go srv.serve()
	t.Cleanup(func() { _ = ln.Close() })

	tcpAddr := ln.Addr().(*net.TCPAddr)

	return tcpAddr.IP.String(), uint16(tcpAddr.Port)
}

func (s *fakeLDAPServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)

	for {
		packet, err := ber.ReadPacket(r)
		if err != nil {
			return
		}

		if len(packet.Children) < 2 {
			return
		}

		messageID := packet.Children[0].Value.(int64)
		op := packet.Children[1]

		if op.Tag == 2 {
			continue
		}

		respTag := op.Tag
		if op.Tag == 0 {
			respTag = 1
		}

		result := ber.Encode(ber.ClassApplication, ber.TypeConstructed, respTag, nil, "LDAPResult")
		result.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(0), "resultCode"))
		result.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, "", "matchedDN"))
		result.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, "", "diagnosticMessage"))

		msg := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "LDAPMessage")
		msg.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, messageID, "messageID"))
		msg.AppendChild(result)

		if _, err := conn.Write(msg.Bytes()); err != nil {
			return
		}
	}
}

func doRequest(t *testing.T, app *App, req envelope.Request) *http.Response {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := app.fiber.Test(httpReq, -1)
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))

	return out
}

func TestLivenessHandler_ReturnsOK(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(t, f, "ldap-rest")

	req := httptest.NewRequest(http.MethodGet, "/", nil)

	resp, err := app.fiber.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["result"])
}

func TestQueryHandler_RunsSignedBatchAgainstLDAPTarget(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(t, f, "ldap-rest")

	host, port := startFakeLDAPServer(t)

	data := `{"host":"` + host + `","port":` + strconv.Itoa(int(port)) + `,"commands":[{"type":"bind","dn":"cn=admin,dc=example,dc=org","pw":"x"},{"type":"unbind"}]}`
	envReq := signEnvelope(t, f, "ldap-rest", data, time.Now().Unix())

	resp := doRequest(t, app, envReq)
	defer resp.Body.Close()

	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["result"])

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body["data"].(string)), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "Common", results[0]["type"])
	assert.Nil(t, results[1])
}

func TestQueryHandler_RejectsMalformedEnvelopeBody(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(t, f, "ldap-rest")

	httpReq := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader([]byte("not json")))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := app.fiber.Test(httpReq)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["result"])
}

func TestQueryHandler_RejectsUnauthorizedKey(t *testing.T) {
	f := newFixture(t)
	stranger := newFixture(t)
	app := newTestApp(t, f, "ldap-rest")

	data := `{"commands":[]}`
	envReq := signEnvelope(t, stranger, "ldap-rest", data, time.Now().Unix())

	resp := doRequest(t, app, envReq)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestQueryHandler_RejectsStaleTimestamp(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(t, f, "ldap-rest")

	data := `{"commands":[]}`
	envReq := signEnvelope(t, f, "ldap-rest", data, time.Now().Add(-1*time.Hour).Unix())

	resp := doRequest(t, app, envReq)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["result"])
}

func TestQueryHandler_RejectsMalformedBatchData(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(t, f, "ldap-rest")

	envReq := signEnvelope(t, f, "ldap-rest", "not json", time.Now().Unix())

	resp := doRequest(t, app, envReq)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueryHandler_LDAPConnectFailureYieldsBadGateway(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(t, f, "ldap-rest")

	data := `{"host":"127.0.0.1","port":1,"commands":[{"type":"unbind"}]}`
	envReq := signEnvelope(t, f, "ldap-rest", data, time.Now().Unix())

	resp := doRequest(t, app, envReq)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["result"])
}
