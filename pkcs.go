package jksconvert

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/smallstep/pkcs7"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// EncodePKCS12 builds the intermediate container for a key entry: the key,
// its leaf, and the rest of the chain, protected with AES-256 and PBKDF2.
// RSA, ECDSA and Ed25519 keys are accepted.
func EncodePKCS12(key crypto.PrivateKey, leaf *x509.Certificate, chain []*x509.Certificate, password string) ([]byte, error) {
	key = normalizeKey(key)
	switch key.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
	default:
		return nil, fmt.Errorf("PKCS#12 cannot carry a %T key", key)
	}
	data, err := gopkcs12.Modern.Encode(key, leaf, chain, password)
	if err != nil {
		return nil, fmt.Errorf("encoding PKCS#12: %w", err)
	}
	return data, nil
}

// DecodePKCS12 opens a container produced by EncodePKCS12, keytool or
// openssl and returns its key, leaf, and remaining chain.
func DecodePKCS12(data []byte, password string) (crypto.PrivateKey, *x509.Certificate, []*x509.Certificate, error) {
	key, leaf, chain, err := gopkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decoding PKCS#12: %w", err)
	}
	return normalizeKey(key), leaf, chain, nil
}

// DecodePKCS7 returns the certificates of a DER certs-only PKCS#7 bundle,
// the .p7b form some CAs deliver chains in.
func DecodePKCS7(der []byte) ([]*x509.Certificate, error) {
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS#7: %w", err)
	}
	if len(p7.Certificates) == 0 {
		return nil, errors.New("PKCS#7 bundle holds no certificates")
	}
	return p7.Certificates, nil
}
