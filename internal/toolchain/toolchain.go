// Package toolchain implements the opaque format conversions the pipeline
// sequences: keystore to PKCS#12, PKCS#12 to PEM key and certificate, PEM to
// PKCS#12, and PKCS#12 to keystore.
//
// Two implementations exist. Exec drives keytool and openssl through
// toolexec. Native performs the same conversions in-process and is used
// where a JDK or openssl is not installed.
package toolchain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sensiblebit/jksconvert/internal/toolexec"
)

// Operation labels used in logs and errors.
const (
	OpProbe          = "validate keystore"
	OpExportPKCS12   = "export keystore to PKCS12"
	OpExtractKey     = "extract private key"
	OpExtractCert    = "extract certificate"
	OpPEMToPKCS12    = "export PEM to PKCS12"
	OpImportKeystore = "import PKCS12 into keystore"
)

// Names accepted by New.
const (
	NameExec   = "exec"
	NameNative = "native"
)

// KeystoreExport re-encrypts one keystore entry into a PKCS#12 container.
type KeystoreExport struct {
	Keystore       string
	PKCS12         string
	Alias          string
	SourcePassword string
	DestPassword   string
}

// Extract reads one part of a PKCS#12 container into an unencrypted PEM file.
type Extract struct {
	PKCS12   string
	Out      string
	Password string
}

// PEMExport combines a certificate and key into a PKCS#12 container.
type PEMExport struct {
	Certificate string
	Key         string
	PKCS12      string
	Alias       string
	Password    string
}

// KeystoreImport converts a PKCS#12 container into a JKS keystore.
type KeystoreImport struct {
	PKCS12         string
	Keystore       string
	Alias          string
	SourcePassword string
	DestPassword   string
}

// Toolchain performs the conversions. All paths are files inside the
// caller's workspace. Each method is a single invocation: it either produces
// its output file or returns an error.
type Toolchain interface {
	Name() string
	// ProbeKeystore checks keystore integrity without modifying it. With an
	// empty password only the file format can be checked.
	ProbeKeystore(ctx context.Context, keystore, password string) error
	ExportPKCS12(ctx context.Context, in KeystoreExport) error
	ExtractKey(ctx context.Context, in Extract) error
	ExtractCertificate(ctx context.Context, in Extract) error
	PEMToPKCS12(ctx context.Context, in PEMExport) error
	ImportKeystore(ctx context.Context, in KeystoreImport) error
}

// Options configures New.
type Options struct {
	Name        string
	KeytoolPath string
	OpenSSLPath string
	Runner      toolexec.Runner
	Logger      *slog.Logger
}

// New returns the toolchain selected by opts.Name.
func New(opts Options) (Toolchain, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch opts.Name {
	case "", NameExec:
		return NewExec(toolexec.NewExecutor(opts.Runner, logger), opts.KeytoolPath, opts.OpenSSLPath), nil
	case NameNative:
		return NewNative(logger), nil
	default:
		return nil, fmt.Errorf("unknown toolchain %q (use %s or %s)", opts.Name, NameExec, NameNative)
	}
}
