// Package testpki builds throwaway certificates, keys, and keystores for
// tests.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/sensiblebit/jksconvert"
)

// PKI is a CA and a leaf certificate signed by it.
type PKI struct {
	CA      *x509.Certificate
	Leaf    *x509.Certificate
	LeafKey crypto.PrivateKey
}

// Chain returns the leaf followed by the CA.
func (p *PKI) Chain() []*x509.Certificate {
	return []*x509.Certificate{p.Leaf, p.CA}
}

// LeafPEM returns the leaf certificate as PEM.
func (p *PKI) LeafPEM() []byte {
	return jksconvert.CertToPEM(p.Leaf)
}

// KeyPEM returns the leaf key as PKCS#8 PEM.
func (p *PKI) KeyPEM(t testing.TB) []byte {
	t.Helper()
	keyPEM, err := jksconvert.MarshalPrivateKeyToPEM(p.LeafKey)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return keyPEM
}

// RSAKeyPEM returns the leaf key as PKCS#1 PEM. It fails the test if the leaf
// key is not RSA.
func (p *PKI) RSAKeyPEM(t testing.TB) []byte {
	t.Helper()
	key, ok := p.LeafKey.(*rsa.PrivateKey)
	if !ok {
		t.Fatalf("leaf key is %T, not RSA", p.LeafKey)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

// New creates an ECDSA CA and an RSA leaf for commonName.
func New(t testing.TB, commonName string) *PKI {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate CA key: %v", err)
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          randomSerial(t),
		Subject:               pkix.Name{CommonName: "Test CA"},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create CA: %v", err)
	}
	ca, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parse CA: %v", err)
	}

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate leaf key: %v", err)
	}
	leafTmpl := &x509.Certificate{
		SerialNumber: randomSerial(t),
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     []string{commonName},
		NotBefore:    time.Now().Add(-1 * time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, ca, &leafKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create leaf: %v", err)
	}
	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}

	return &PKI{CA: ca, Leaf: leaf, LeafKey: leafKey}
}

// JKS returns a keystore holding the leaf key and chain under alias.
func (p *PKI) JKS(t testing.TB, alias, password string) []byte {
	t.Helper()
	data, err := jksconvert.EncodeJKS(p.LeafKey, p.Chain(), alias, password)
	if err != nil {
		t.Fatalf("encode JKS: %v", err)
	}
	return data
}

// PKCS12 returns a PKCS#12 container holding the leaf key and chain.
func (p *PKI) PKCS12(t testing.TB, password string) []byte {
	t.Helper()
	data, err := jksconvert.EncodePKCS12(p.LeafKey, p.Leaf, []*x509.Certificate{p.CA}, password)
	if err != nil {
		t.Fatalf("encode PKCS#12: %v", err)
	}
	return data
}

func randomSerial(t testing.TB) *big.Int {
	t.Helper()
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("generate serial: %v", err)
	}
	return serial
}
