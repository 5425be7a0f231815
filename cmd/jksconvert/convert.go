package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/jksconvert/internal/convert"
	"github.com/sensiblebit/jksconvert/internal/packager"
)

var (
	convAlias        string
	convPassword     string
	convDestPassword string
	convFormat       string
	convOut          string
)

var jksToPemCmd = &cobra.Command{
	Use:   "jks-to-pem <keystore>",
	Short: "Extract the private key and certificate from a keystore",
	Long: `Export one keystore entry as an unencrypted PEM private key and certificate.

The result is written as converted_files.zip (entries private.key and
certificate.pem) unless --format selects a Kubernetes TLS secret or a Vault
payload.`,
	Example: `  jksconvert jks-to-pem keystore.jks --alias 1 --password changeit
  jksconvert jks-to-pem keystore.jks --format k8s-secret -o secret.yaml
  jksconvert jks-to-pem keystore.jks --password-file ./secret -o - > bundle.zip`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: keystoreFiles,
	RunE:              runJKSToPEM,
}

var pemToJksCmd = &cobra.Command{
	Use:   "pem-to-jks <certificate> <key>",
	Short: "Build a keystore from a PEM certificate and private key",
	Long: `Combine a PEM certificate (optionally followed by its chain) and an
unencrypted private key into a JKS keystore with a single entry.

--dest-password sets the keystore password; it defaults to --password.`,
	Example: `  jksconvert pem-to-jks cert.pem key.pem --alias server --password changeit
  jksconvert pem-to-jks cert.pem key.pem --password tmp-pass --dest-password s3cret -o server.jks`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: pemFiles,
	RunE:              runPEMToJKS,
}

func init() {
	for _, cmd := range []*cobra.Command{jksToPemCmd, pemToJksCmd} {
		cmd.Flags().StringVarP(&convAlias, "alias", "a", "", "Keystore entry alias (default: configured default alias)")
		cmd.Flags().StringVarP(&convPassword, "password", "p", "", "Source password (default: configured default password)")
		cmd.Flags().StringVar(&convDestPassword, "dest-password", "", "Destination password (default: --password)")
		cmd.Flags().StringVarP(&convOut, "out", "o", "", "Output file, or - for stdout (default: the download name in the current directory)")
		completeFlags(cmd, map[string]completer{"out": anyFile})
	}
	jksToPemCmd.Flags().StringVarP(&convFormat, "format", "f", string(packager.FormatZip), "Output format: zip, k8s-secret, or vault")
	completeFlags(jksToPemCmd, map[string]completer{
		"format": oneOf(string(packager.FormatZip), string(packager.FormatK8sSecret), string(packager.FormatVault)),
	})
}

func runJKSToPEM(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading keystore: %w", err)
	}
	return runConversion(cmd, convert.Request{
		Direction: convert.ContainerToPem,
		Format:    packager.Format(convFormat),
		Inputs:    map[convert.Role][]byte{convert.RoleKeystore: data},
	})
}

func runPEMToJKS(cmd *cobra.Command, args []string) error {
	cert, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading certificate: %w", err)
	}
	key, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading private key: %w", err)
	}
	return runConversion(cmd, convert.Request{
		Direction: convert.PemToContainer,
		Inputs: map[convert.Role][]byte{
			convert.RoleCertificate: cert,
			convert.RoleKey:         key,
		},
	})
}

func runConversion(cmd *cobra.Command, req convert.Request) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	req.Alias = convAlias
	req.SourcePassword = convPassword
	req.DestPassword = convDestPassword

	res, err := a.pipeline.Run(cmd.Context(), req)
	if err != nil {
		var ce *convert.Error
		if errors.As(err, &ce) {
			return errors.New(ce.UserMessage())
		}
		return err
	}

	if convOut == "-" {
		_, err := cmd.OutOrStdout().Write(res.Download.Body)
		return err
	}
	out := convOut
	if out == "" {
		out = res.Download.Name
	}
	// Outputs may hold an unencrypted private key.
	if err := os.WriteFile(out, res.Download.Body, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	abs, _ := filepath.Abs(out)
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", abs)
	return nil
}
