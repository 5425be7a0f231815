package toolchain

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/sensiblebit/jksconvert"
)

// errNotJKS rejects source containers other than JKS. Entries in PKCS#12
// input cannot be selected by alias.
var errNotJKS = errors.New("not a JKS keystore")

// Native runs conversions in-process with keystore-go and go-pkcs12.
type Native struct {
	logger *slog.Logger
}

// NewNative returns a Native toolchain.
func NewNative(logger *slog.Logger) *Native {
	if logger == nil {
		logger = slog.Default()
	}
	return &Native{logger: logger}
}

// Name implements Toolchain.
func (n *Native) Name() string { return NameNative }

// ProbeKeystore implements Toolchain. Only JKS keystores are accepted;
// without a password only the magic number is checked.
func (n *Native) ProbeKeystore(ctx context.Context, keystore, password string) error {
	return n.run(ctx, OpProbe, func() error {
		data, err := os.ReadFile(keystore)
		if err != nil {
			return err
		}
		if !jksconvert.IsJKS(data) {
			return errNotJKS
		}
		if password == "" {
			return nil
		}
		_, err = jksconvert.ListJKSAliases(data, password)
		return err
	})
}

// ExportPKCS12 implements Toolchain.
func (n *Native) ExportPKCS12(ctx context.Context, in KeystoreExport) error {
	return n.run(ctx, OpExportPKCS12, func() error {
		data, err := os.ReadFile(in.Keystore)
		if err != nil {
			return err
		}
		key, chain, err := readKeystoreEntry(data, in.Alias, in.SourcePassword)
		if err != nil {
			return err
		}
		p12, err := jksconvert.EncodePKCS12(key, chain[0], chain[1:], in.DestPassword)
		if err != nil {
			return err
		}
		return os.WriteFile(in.PKCS12, p12, 0600)
	})
}

// ExtractKey implements Toolchain.
func (n *Native) ExtractKey(ctx context.Context, in Extract) error {
	return n.run(ctx, OpExtractKey, func() error {
		key, _, _, err := readPKCS12(in.PKCS12, in.Password)
		if err != nil {
			return err
		}
		keyPEM, err := jksconvert.MarshalPrivateKeyToPEM(key)
		if err != nil {
			return err
		}
		return os.WriteFile(in.Out, keyPEM, 0600)
	})
}

// ExtractCertificate implements Toolchain. Only the leaf is written, as
// openssl -clcerts does.
func (n *Native) ExtractCertificate(ctx context.Context, in Extract) error {
	return n.run(ctx, OpExtractCert, func() error {
		_, leaf, _, err := readPKCS12(in.PKCS12, in.Password)
		if err != nil {
			return err
		}
		return os.WriteFile(in.Out, jksconvert.CertToPEM(leaf), 0600)
	})
}

// PEMToPKCS12 implements Toolchain. The certificate file may hold a chain;
// the certificate matching the key becomes the leaf.
func (n *Native) PEMToPKCS12(ctx context.Context, in PEMExport) error {
	return n.run(ctx, OpPEMToPKCS12, func() error {
		certData, err := os.ReadFile(in.Certificate)
		if err != nil {
			return err
		}
		keyData, err := os.ReadFile(in.Key)
		if err != nil {
			return err
		}
		certs, err := jksconvert.ParseCertificatesAny(certData)
		if err != nil {
			return err
		}
		key, err := jksconvert.ParsePEMPrivateKey(keyData)
		if err != nil {
			return err
		}
		leaf, rest, err := jksconvert.SelectLeaf(key, certs)
		if err != nil {
			return err
		}
		p12, err := jksconvert.EncodePKCS12(key, leaf, rest, in.Password)
		if err != nil {
			return err
		}
		return os.WriteFile(in.PKCS12, p12, 0600)
	})
}

// ImportKeystore implements Toolchain.
func (n *Native) ImportKeystore(ctx context.Context, in KeystoreImport) error {
	return n.run(ctx, OpImportKeystore, func() error {
		key, leaf, cas, err := readPKCS12(in.PKCS12, in.SourcePassword)
		if err != nil {
			return err
		}
		chain := append([]*x509.Certificate{leaf}, cas...)
		jks, err := jksconvert.EncodeJKS(key, chain, in.Alias, in.DestPassword)
		if err != nil {
			return err
		}
		n.logger.DebugContext(ctx, "keystore entry encoded", "alias", in.Alias, "leaf_sha256", jksconvert.CertFingerprint(leaf))
		return os.WriteFile(in.Keystore, jks, 0600)
	})
}

// run logs the operation like the exec toolchain logs a command, and turns
// a failure into an error that names only the operation.
func (n *Native) run(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n.logger.InfoContext(ctx, "executing native conversion", "operation", op)
	if err := fn(); err != nil {
		n.logger.ErrorContext(ctx, "native conversion failed", "operation", op, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// readKeystoreEntry reads the private key entry stored under alias.
func readKeystoreEntry(data []byte, alias, password string) (crypto.PrivateKey, []*x509.Certificate, error) {
	if !jksconvert.IsJKS(data) {
		return nil, nil, errNotJKS
	}
	return jksconvert.DecodeJKSEntry(data, alias, password)
}

func readPKCS12(path, password string) (crypto.PrivateKey, *x509.Certificate, []*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}
	return jksconvert.DecodePKCS12(data, password)
}
