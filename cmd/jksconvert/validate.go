package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/jksconvert/internal/convert"
)

var validatePassword string

var validateCmd = &cobra.Command{
	Use:   "validate <keystore>",
	Short: "Check that a keystore opens with a password",
	Long: `Probe a keystore without modifying it. Exits 0 when the keystore opens with
the password and 1 otherwise; a wrong password and a damaged file are not
distinguished.`,
	Example: `  jksconvert validate keystore.jks --password changeit
  jksconvert validate keystore.jks --password-file ./secret`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: keystoreFiles,
	RunE:              runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validatePassword, "password", "p", "", "Keystore password (default: configured default password)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	password := validatePassword
	if password == "" {
		password = a.cfg.DefaultPassword
	}
	v := convert.NewValidator(a.toolchain, a.cfg.ValidateTimeout, a.logger)
	if !v.Validate(cmd.Context(), args[0], password) {
		return errors.New(convert.ValidationMessage)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", args[0])
	return nil
}
