// Package envelope implements the signed-request authentication pipeline
// (C3 in the design): timestamp gate, key reconstruction, algorithm gate,
// authorized-key membership test, canonical message construction, and
// detached SSH signature verification.
package envelope

import (
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"ldap-rest-gateway/internal/gatewayerr"
	"ldap-rest-gateway/internal/keystore"
	"ldap-rest-gateway/internal/sshsig"
)

const staleWindow = 5 * time.Minute

// Request is the outer JSON object clients submit to POST /query.
type Request struct {
	PublicKey string `json:"public_key"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// signatureMessage mirrors Request's signed subset with the exact field
// order the canonical message requires: data, timestamp, public_key.
type signatureMessage struct {
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
	PublicKey string `json:"public_key"`
}

// KeySet is the subset of keystore.Set's behavior the verifier needs,
// guarded by a mutex the caller owns (the Application State's shared
// authorized-key set).
type KeySet interface {
	Contains(key ssh.PublicKey) bool
}

// Verifier validates Request envelopes against a live, swappable key set.
type Verifier struct {
	mu        *sync.RWMutex
	keys      *keystore.Set
	namespace string
}

// NewVerifier builds a Verifier over a shared key set and mutex, the same
// ones the reload controller (C6) swaps under.
func NewVerifier(mu *sync.RWMutex, keys *keystore.Set, namespace string) *Verifier {
	return &Verifier{mu: mu, keys: keys, namespace: namespace}
}

// Verify runs the seven-step pipeline from the design and returns nil on
// acceptance, or a *gatewayerr.Error describing the rejection.
func (v *Verifier) Verify(req Request) error {
	now := time.Now()

	ts := time.Unix(req.Timestamp, 0)

	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}

	if diff > staleWindow {
		return gatewayerr.Stale()
	}

	pub, err := sshsig.ParsePublicKey(req.PublicKey)
	if err != nil {
		return gatewayerr.BadKey(err)
	}

	if pub.Type() != ssh.KeyAlgoED25519 {
		return gatewayerr.BadAlg()
	}

	v.mu.RLock()
	authorized := v.keys.Contains(pub)
	v.mu.RUnlock()

	if !authorized {
		return gatewayerr.Unauthorized()
	}

	message, err := json.Marshal(signatureMessage{
		Data:      req.Data,
		Timestamp: req.Timestamp,
		PublicKey: req.PublicKey,
	})
	if err != nil {
		return gatewayerr.Serialization(err)
	}

	sig, err := sshsig.ParseSignature(req.Signature)
	if err != nil {
		return gatewayerr.BadSignature("Invalid signature", err)
	}

	if err := sshsig.Verify(pub, v.namespace, message, sig); err != nil {
		return gatewayerr.BadSignature("Failed to verify signature", err)
	}

	return nil
}
