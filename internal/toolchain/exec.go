package toolchain

import (
	"context"

	"github.com/sensiblebit/jksconvert/internal/toolexec"
)

// Exec runs conversions with keytool and openssl.
type Exec struct {
	exec    *toolexec.Executor
	keytool string
	openssl string
}

// NewExec returns an Exec toolchain. Empty tool paths resolve "keytool" and
// "openssl" through PATH.
func NewExec(exec *toolexec.Executor, keytool, openssl string) *Exec {
	if keytool == "" {
		keytool = "keytool"
	}
	if openssl == "" {
		openssl = "openssl"
	}
	return &Exec{exec: exec, keytool: keytool, openssl: openssl}
}

// Name implements Toolchain.
func (e *Exec) Name() string { return NameExec }

// ProbeKeystore implements Toolchain with keytool -list.
func (e *Exec) ProbeKeystore(ctx context.Context, keystore, password string) error {
	cmd := toolexec.New(e.keytool, "-list").FlagValue("-keystore", keystore)
	if password != "" {
		cmd.SecretFlag("-storepass", "", password)
	}
	_, err := e.exec.Execute(ctx, cmd, OpProbe)
	return err
}

// ExportPKCS12 implements Toolchain with keytool -importkeystore.
func (e *Exec) ExportPKCS12(ctx context.Context, in KeystoreExport) error {
	cmd := toolexec.New(e.keytool, "-importkeystore", "-noprompt").
		FlagValue("-srckeystore", in.Keystore).
		FlagValue("-destkeystore", in.PKCS12).
		FlagValue("-deststoretype", "PKCS12").
		FlagValue("-srcalias", in.Alias).
		SecretFlag("-srcstorepass", "", in.SourcePassword).
		SecretFlag("-deststorepass", "", in.DestPassword)
	_, err := e.exec.Execute(ctx, cmd, OpExportPKCS12)
	return err
}

// ExtractKey implements Toolchain with openssl pkcs12 -nocerts -nodes.
func (e *Exec) ExtractKey(ctx context.Context, in Extract) error {
	cmd := toolexec.New(e.openssl, "pkcs12", "-nocerts", "-nodes").
		FlagValue("-in", in.PKCS12).
		FlagValue("-out", in.Out).
		SecretFlag("-password", "pass:", in.Password)
	_, err := e.exec.Execute(ctx, cmd, OpExtractKey)
	return err
}

// ExtractCertificate implements Toolchain with openssl pkcs12 -clcerts -nokeys.
func (e *Exec) ExtractCertificate(ctx context.Context, in Extract) error {
	cmd := toolexec.New(e.openssl, "pkcs12", "-clcerts", "-nokeys").
		FlagValue("-in", in.PKCS12).
		FlagValue("-out", in.Out).
		SecretFlag("-password", "pass:", in.Password)
	_, err := e.exec.Execute(ctx, cmd, OpExtractCert)
	return err
}

// PEMToPKCS12 implements Toolchain with openssl pkcs12 -export.
func (e *Exec) PEMToPKCS12(ctx context.Context, in PEMExport) error {
	cmd := toolexec.New(e.openssl, "pkcs12", "-export").
		FlagValue("-in", in.Certificate).
		FlagValue("-inkey", in.Key).
		FlagValue("-out", in.PKCS12).
		FlagValue("-name", in.Alias).
		SecretFlag("-password", "pass:", in.Password)
	_, err := e.exec.Execute(ctx, cmd, OpPEMToPKCS12)
	return err
}

// ImportKeystore implements Toolchain with keytool -importkeystore. When the
// destination password differs from the source, the entry is addressed by
// alias so its key password can be changed along with the store password.
func (e *Exec) ImportKeystore(ctx context.Context, in KeystoreImport) error {
	cmd := toolexec.New(e.keytool, "-importkeystore", "-noprompt").
		FlagValue("-srckeystore", in.PKCS12).
		FlagValue("-srcstoretype", "PKCS12").
		FlagValue("-destkeystore", in.Keystore).
		FlagValue("-deststoretype", "JKS").
		SecretFlag("-srcstorepass", "", in.SourcePassword).
		SecretFlag("-deststorepass", "", in.DestPassword)
	if in.DestPassword != in.SourcePassword {
		cmd.FlagValue("-srcalias", in.Alias).
			FlagValue("-destalias", in.Alias).
			SecretFlag("-destkeypass", "", in.DestPassword)
	}
	_, err := e.exec.Execute(ctx, cmd, OpImportKeystore)
	return err
}
