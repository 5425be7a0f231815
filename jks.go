package jksconvert

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

// jksMagic is the leading magic number of every JKS file.
const jksMagic = 0xFEEDFEED

// ErrAliasNotFound is returned when a keystore has no private key entry under
// the requested alias.
var ErrAliasNotFound = errors.New("alias not found in keystore")

// IsJKS reports whether data starts with the JKS magic number. It says
// nothing about integrity.
func IsJKS(data []byte) bool {
	return len(data) >= 4 && binary.BigEndian.Uint32(data) == jksMagic
}

// LoadJKS loads a Java KeyStore, verifying its integrity digest against
// password. Aliases are kept exactly as stored.
func LoadJKS(data []byte, password string) (keystore.KeyStore, error) {
	ks := keystore.New(keystore.WithCaseExactAliases(), keystore.WithOrderedAliases())
	if err := ks.Load(bytes.NewReader(data), []byte(password)); err != nil {
		return keystore.KeyStore{}, fmt.Errorf("loading JKS: %w", err)
	}
	return ks, nil
}

// ListJKSAliases returns the aliases stored in a keystore after verifying its
// integrity with password.
func ListJKSAliases(data []byte, password string) ([]string, error) {
	ks, err := LoadJKS(data, password)
	if err != nil {
		return nil, err
	}
	return ks.Aliases(), nil
}

// DecodeJKSEntry returns the private key and certificate chain stored under
// alias. The same password protects the store and the entry (standard Java
// convention). Alias lookup is case-insensitive because keytool lower-cases
// aliases when it writes JKS files.
func DecodeJKSEntry(data []byte, alias, password string) (crypto.PrivateKey, []*x509.Certificate, error) {
	ks, err := LoadJKS(data, password)
	if err != nil {
		return nil, nil, err
	}

	stored, ok := findAlias(ks.Aliases(), alias)
	if !ok || !ks.IsPrivateKeyEntry(stored) {
		return nil, nil, fmt.Errorf("%w: %q", ErrAliasNotFound, alias)
	}

	entry, err := ks.GetPrivateKeyEntry(stored, []byte(password))
	if err != nil {
		return nil, nil, fmt.Errorf("reading private key entry %q: %w", alias, err)
	}

	key, err := x509.ParsePKCS8PrivateKey(entry.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing PKCS#8 private key: %w", err)
	}

	chain := make([]*x509.Certificate, 0, len(entry.CertificateChain))
	for _, c := range entry.CertificateChain {
		cert, err := x509.ParseCertificate(c.Content)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing certificate chain of %q: %w", alias, err)
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, nil, fmt.Errorf("private key entry %q has no certificate chain", alias)
	}

	return normalizeKey(key), chain, nil
}

// EncodeJKS creates a Java KeyStore holding one private key entry under alias.
// chain[0] must be the certificate for key. The same password protects the
// store and the key entry.
func EncodeJKS(privateKey crypto.PrivateKey, chain []*x509.Certificate, alias, password string) ([]byte, error) {
	if len(chain) == 0 {
		return nil, errors.New("certificate chain is empty")
	}
	if alias == "" {
		return nil, errors.New("alias is empty")
	}

	pkcs8Key, err := x509.MarshalPKCS8PrivateKey(normalizeKey(privateKey))
	if err != nil {
		return nil, fmt.Errorf("marshaling private key to PKCS#8: %w", err)
	}

	certs := make([]keystore.Certificate, 0, len(chain))
	for _, c := range chain {
		certs = append(certs, keystore.Certificate{Type: "X.509", Content: c.Raw})
	}

	ks := keystore.New(keystore.WithCaseExactAliases())
	if err := ks.SetPrivateKeyEntry(alias, keystore.PrivateKeyEntry{
		CreationTime:     time.Now(),
		PrivateKey:       pkcs8Key,
		CertificateChain: certs,
	}, []byte(password)); err != nil {
		return nil, fmt.Errorf("setting JKS private key entry: %w", err)
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(password)); err != nil {
		return nil, fmt.Errorf("storing JKS: %w", err)
	}
	return buf.Bytes(), nil
}

func findAlias(aliases []string, want string) (string, bool) {
	for _, a := range aliases {
		if a == want {
			return a, true
		}
	}
	for _, a := range aliases {
		if strings.EqualFold(a, want) {
			return a, true
		}
	}
	return "", false
}
