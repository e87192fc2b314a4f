// Package tlsmaterial provides the gateway's TLS certificate and key,
// either loaded from disk or synthesized as a self-signed pair, with
// support for atomic hot-swap on reload (C2 in the design).
package tlsmaterial

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"
)

const selfSignedValidity = 365 * 24 * time.Hour

// Load builds a tls.Certificate either from the given cert/key PEM paths,
// or by synthesizing a self-signed ECDSA P-384 certificate for CN=localhost
// when either path is empty.
func Load(certPath, keyPath string) (tls.Certificate, error) {
	if certPath != "" && keyPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("load TLS material from %s/%s: %w", certPath, keyPath, err)
		}

		return cert, nil
	}

	return synthesize()
}

func synthesize() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate self-signed key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"LDAP-REST Bridge"},
			CommonName:   "localhost",
		},
		NotBefore:             now,
		NotAfter:              now.Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("self-sign certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        template,
	}, nil
}

// Handle is a live-swappable reference to the current TLS material. The
// serving socket reads through GetCertificate so an atomic Swap is visible
// to the next handshake without rebinding the listener.
type Handle struct {
	current atomic.Pointer[tls.Certificate]
}

// NewHandle creates a Handle pre-populated with cert.
func NewHandle(cert tls.Certificate) *Handle {
	h := &Handle{}
	h.Swap(cert)

	return h
}

// Swap atomically replaces the current certificate.
func (h *Handle) Swap(cert tls.Certificate) {
	h.current.Store(&cert)
}

// GetCertificate satisfies tls.Config.GetCertificate.
func (h *Handle) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return h.current.Load(), nil
}

// Config builds a *tls.Config that always serves the handle's current
// certificate, regardless of future swaps.
func (h *Handle) Config() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: h.GetCertificate,
	}
}
