package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// completer proposes values for a flag or positional argument.
type completer = func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective)

// completeFlags attaches completers to the named flags of cmd. A name that
// does not match a flag panics during init.
func completeFlags(cmd *cobra.Command, completers map[string]completer) {
	for name, fn := range completers {
		if err := cmd.RegisterFlagCompletionFunc(name, fn); err != nil {
			panic(fmt.Sprintf("%s --%s: %v", cmd.Name(), name, err))
		}
	}
}

// oneOf completes exactly the given values.
func oneOf(values ...string) completer {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// withExtensions completes files ending in one of exts.
func withExtensions(exts ...string) completer {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return exts, cobra.ShellCompDirectiveFilterFileExt
	}
}

func anyFile(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveDefault
}

func dirsOnly(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveFilterDirs
}

var (
	keystoreFiles = withExtensions("jks", "keystore", "ks")
	pemFiles      = withExtensions("pem", "crt", "cer", "key")
)
