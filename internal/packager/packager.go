// Package packager turns pipeline output into the download returned to the
// caller. Archives are built in memory; nothing is written to disk.
package packager

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fixed download and entry names.
const (
	KeystoreName = "keystore.jks"
	ArchiveName  = "converted_files.zip"
	KeyEntry     = "private.key"
	CertEntry    = "certificate.pem"
)

// Format selects how a certificate and key are bundled.
type Format string

// Supported formats.
const (
	FormatZip       Format = "zip"
	FormatK8sSecret Format = "k8s-secret"
	FormatVault     Format = "vault"
)

// ParseFormat parses a format name. An empty name selects FormatZip.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatZip, nil
	case FormatZip, FormatK8sSecret, FormatVault:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use zip, k8s-secret, or vault)", s)
	}
}

// Artifact is a named file produced by the pipeline.
type Artifact struct {
	Name string
	Data []byte
}

// Download is a response body with its file name and media type.
type Download struct {
	Name        string
	ContentType string
	Body        []byte
}

// Single returns a as a download under its own name.
func Single(a Artifact) *Download {
	return &Download{Name: a.Name, ContentType: "application/octet-stream", Body: a.Data}
}

// Bundle packages a private key and certificate. name is used for the
// Kubernetes secret and the output file names of the non-archive formats.
func Bundle(format Format, name string, key, cert []byte) (*Download, error) {
	if len(key) == 0 || len(cert) == 0 {
		return nil, fmt.Errorf("bundle needs both %s and %s", KeyEntry, CertEntry)
	}
	switch format {
	case "", FormatZip:
		body, err := Zip([]Artifact{{Name: KeyEntry, Data: key}, {Name: CertEntry, Data: cert}})
		if err != nil {
			return nil, err
		}
		return &Download{Name: ArchiveName, ContentType: "application/zip", Body: body}, nil
	case FormatK8sSecret:
		body, err := K8sSecretYAML(name, key, cert)
		if err != nil {
			return nil, err
		}
		return &Download{Name: fileStem(name) + ".k8s.yaml", ContentType: "application/yaml", Body: body}, nil
	case FormatVault:
		body, err := VaultPayload(key, cert)
		if err != nil {
			return nil, err
		}
		return &Download{Name: fileStem(name) + ".vault.json", ContentType: "application/json", Body: body}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// Zip writes artifacts into a deflate-compressed archive in entry order.
func Zip(artifacts []Artifact) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, a := range artifacts {
		entry, err := zw.Create(a.Name)
		if err != nil {
			return nil, fmt.Errorf("creating ZIP entry %s: %w", a.Name, err)
		}
		if _, err := entry.Write(a.Data); err != nil {
			return nil, fmt.Errorf("writing ZIP entry %s: %w", a.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing ZIP: %w", err)
	}
	return buf.Bytes(), nil
}

// K8sSecret represents a Kubernetes TLS secret.
type K8sSecret struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Type       string            `yaml:"type"`
	Metadata   K8sMetadata       `yaml:"metadata"`
	Data       map[string]string `yaml:"data"`
}

// K8sMetadata represents Kubernetes resource metadata.
type K8sMetadata struct {
	Name string `yaml:"name"`
}

// K8sSecretYAML renders a kubernetes.io/tls Secret named after name.
func K8sSecretYAML(name string, key, cert []byte) ([]byte, error) {
	secret := K8sSecret{
		APIVersion: "v1",
		Kind:       "Secret",
		Type:       "kubernetes.io/tls",
		Metadata:   K8sMetadata{Name: secretName(name)},
		Data: map[string]string{
			"tls.crt": base64.StdEncoding.EncodeToString(cert),
			"tls.key": base64.StdEncoding.EncodeToString(key),
		},
	}
	data, err := yaml.Marshal(secret)
	if err != nil {
		return nil, fmt.Errorf("marshaling kubernetes secret YAML: %w", err)
	}
	return data, nil
}

// VaultSecret is the body accepted by a Vault KV v2 write.
type VaultSecret struct {
	Data VaultData `json:"data"`
}

// VaultData holds the base64-encoded PEM blocks.
type VaultData struct {
	Certificate string `json:"certificate"`
	PrivateKey  string `json:"private_key"`
}

// VaultPayload renders the certificate and key as a Vault KV payload.
func VaultPayload(key, cert []byte) ([]byte, error) {
	data, err := json.MarshalIndent(VaultSecret{Data: VaultData{
		Certificate: base64.StdEncoding.EncodeToString(cert),
		PrivateKey:  base64.StdEncoding.EncodeToString(key),
	}}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling vault payload: %w", err)
	}
	return append(data, '\n'), nil
}

// secretName lowercases name and replaces characters Kubernetes rejects in
// object names. Aliases such as "1" are prefixed so the name starts with a
// letter.
func secretName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	s := strings.Trim(b.String(), "-.")
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		s = "tls-" + s
	}
	return strings.TrimSuffix(s, "-")
}

func fileStem(name string) string {
	if name == "" {
		return "converted"
	}
	return secretName(name)
}
