package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sensiblebit/jksconvert/internal/config"
	"github.com/sensiblebit/jksconvert/internal/convert"
	"github.com/sensiblebit/jksconvert/internal/logging"
	"github.com/sensiblebit/jksconvert/internal/toolchain"
	"github.com/sensiblebit/jksconvert/internal/workspace"
)

var (
	configPath    string
	envFile       string
	logLevel      string
	logFile       string
	toolchainName string
	workspaceRoot string
	passwordFile  string
)

var rootCmd = &cobra.Command{
	Use:   "jksconvert",
	Short: "Convert between Java keystores and PEM certificate/key pairs",
	Long: `Convert a Java keystore (JKS) into a PEM private key and certificate, or a
PEM certificate and key into a JKS keystore.

Conversions run keytool and openssl by default (--toolchain exec). The native
toolchain performs the same conversions in-process for hosts without a JDK.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file with JKSCONVERT_* settings")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file")
	rootCmd.PersistentFlags().StringVar(&toolchainName, "toolchain", "", "Conversion toolchain: exec or native")
	rootCmd.PersistentFlags().StringVar(&workspaceRoot, "workspace-root", "", "Directory for per-request workspaces (default: system temp)")
	rootCmd.PersistentFlags().StringVar(&passwordFile, "password-file", "", "File whose first non-blank line is the keystore password")

	completeFlags(rootCmd, map[string]completer{
		"config":         withExtensions("yaml", "yml"),
		"env-file":       anyFile,
		"log-level":      oneOf("debug", "info", "warn", "error"),
		"log-file":       anyFile,
		"toolchain":      oneOf(toolchain.NameExec, toolchain.NameNative),
		"workspace-root": dirsOnly,
		"password-file":  anyFile,
	})

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jksToPemCmd)
	rootCmd.AddCommand(pemToJksCmd)
	rootCmd.AddCommand(validateCmd)
}

// app is everything a command needs, built from configuration and flags.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	toolchain toolchain.Toolchain
	pipeline  *convert.Pipeline
	close     func() error
}

// setup loads configuration, applies persistent flags that were set
// explicitly, and wires the pipeline.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	override(flags, "log-level", &cfg.LogLevel, logLevel)
	override(flags, "log-file", &cfg.LogFile, logFile)
	override(flags, "toolchain", &cfg.Toolchain, toolchainName)
	override(flags, "workspace-root", &cfg.WorkspaceRoot, workspaceRoot)
	if passwordFile != "" {
		pw, err := readPasswordFile(passwordFile)
		if err != nil {
			return nil, err
		}
		cfg.DefaultPassword = pw
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}

	tc, err := toolchain.New(toolchain.Options{
		Name:        cfg.Toolchain,
		KeytoolPath: cfg.KeytoolPath,
		OpenSSLPath: cfg.OpenSSLPath,
		Logger:      logger,
	})
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	pipeline := convert.New(convert.Options{
		Toolchain:       tc,
		Workspaces:      workspace.NewManager(cfg.WorkspaceRoot, logger),
		ValidateTimeout: cfg.ValidateTimeout,
		Defaults:        convert.Defaults{Password: cfg.DefaultPassword, Alias: cfg.DefaultAlias},
		Logger:          logger,
	})
	return &app{cfg: cfg, logger: logger, toolchain: tc, pipeline: pipeline, close: closeLog}, nil
}

// override sets *dst to value when the named flag was given on the command
// line, so flags win over configuration but unset flags do not erase it.
func override[T any](flags *pflag.FlagSet, name string, dst *T, value T) {
	if flags.Changed(name) {
		*dst = value
	}
}
