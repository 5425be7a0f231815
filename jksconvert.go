// Package jksconvert provides the certificate and key codecs shared by the
// conversion pipeline: PEM parsing and encoding, JKS and PKCS#12 containers,
// and key/certificate matching.
package jksconvert

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// ParsePEMCertificates parses all certificates from a PEM bundle.
func ParsePEMCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificates found in PEM data")
	}
	return certs, nil
}

// ParseCertificatesAny parses certificates from PEM, a single DER
// certificate, or a certs-only PKCS#7 bundle, in that order.
func ParseCertificatesAny(data []byte) ([]*x509.Certificate, error) {
	if IsPEM(data) {
		return ParsePEMCertificates(data)
	}
	cert, derErr := x509.ParseCertificate(data)
	if derErr == nil {
		return []*x509.Certificate{cert}, nil
	}
	certs, p7Err := DecodePKCS7(data)
	if p7Err == nil {
		return certs, nil
	}
	return nil, fmt.Errorf("not PEM, DER (%v), or PKCS#7 (%v)", derErr, p7Err)
}

// normalizeKey dereferences *ed25519.PrivateKey (returned by
// ssh.ParseRawPrivateKey) so type switches only need the value form.
func normalizeKey(key crypto.PrivateKey) crypto.PrivateKey {
	if ptr, ok := key.(*ed25519.PrivateKey); ok {
		return *ptr
	}
	return key
}

// ParsePEMPrivateKey parses the first private key block in pemData. PKCS#1,
// SEC 1, PKCS#8 and OpenSSH encodings are accepted; "PRIVATE KEY" blocks fall
// back to PKCS#1 and SEC 1 for tools that mislabel them. Encrypted keys are
// rejected.
func ParsePEMPrivateKey(pemData []byte) (crypto.PrivateKey, error) {
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, errors.New("no private key PEM block found")
		}
		switch block.Type {
		case "RSA PRIVATE KEY":
			return x509.ParsePKCS1PrivateKey(block.Bytes)
		case "EC PRIVATE KEY":
			return x509.ParseECPrivateKey(block.Bytes)
		case "PRIVATE KEY":
			if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
				return normalizeKey(key), nil
			}
			if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
				return key, nil
			}
			if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
				return key, nil
			}
			return nil, errors.New("parsing PRIVATE KEY block with any known format")
		case "ENCRYPTED PRIVATE KEY":
			return nil, errors.New("encrypted private keys are not supported; decrypt the key first")
		case "OPENSSH PRIVATE KEY":
			key, err := ssh.ParseRawPrivateKey(pem.EncodeToMemory(block))
			if err != nil {
				return nil, fmt.Errorf("parsing OpenSSH private key: %w", err)
			}
			return normalizeKey(key), nil
		}
	}
}

// CertToPEM encodes a certificate as PEM.
func CertToPEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// MarshalPrivateKeyToPEM marshals a private key to unencrypted PKCS#8 PEM.
func MarshalPrivateKeyToPEM(key crypto.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(normalizeKey(key))
	if err != nil {
		return nil, fmt.Errorf("marshaling private key to PKCS#8: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// CertFingerprint returns the SHA-256 fingerprint of a certificate as a
// lowercase hex string.
func CertFingerprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(hash[:])
}

// KeyMatchesCert reports whether a private key corresponds to the public key
// in a certificate.
func KeyMatchesCert(priv crypto.PrivateKey, cert *x509.Certificate) (bool, error) {
	signer, ok := normalizeKey(priv).(crypto.Signer)
	if !ok {
		return false, fmt.Errorf("unsupported private key type: %T", priv)
	}
	type equalKey interface {
		Equal(crypto.PublicKey) bool
	}
	eq, ok := signer.Public().(equalKey)
	if !ok {
		return false, fmt.Errorf("unsupported public key type: %T", signer.Public())
	}
	return eq.Equal(cert.PublicKey), nil
}

// IsPEM returns true if the data appears to contain PEM-encoded content.
func IsPEM(data []byte) bool {
	return bytes.Contains(data, []byte("-----BEGIN"))
}

// SelectLeaf returns the certificate in certs matching key, followed by the
// remaining certificates in their original order.
func SelectLeaf(key crypto.PrivateKey, certs []*x509.Certificate) (*x509.Certificate, []*x509.Certificate, error) {
	for i, cert := range certs {
		match, err := KeyMatchesCert(key, cert)
		if err != nil {
			return nil, nil, err
		}
		if match {
			rest := make([]*x509.Certificate, 0, len(certs)-1)
			rest = append(rest, certs[:i]...)
			rest = append(rest, certs[i+1:]...)
			return cert, rest, nil
		}
	}
	return nil, nil, fmt.Errorf("private key does not match any of the %d certificate(s) provided", len(certs))
}
