// Package toolexec runs external tools from structured argument vectors.
// Arguments carrying secrets are tagged when the command is built, so the
// logged form of a command is derived by position and never by matching text.
package toolexec

import "strings"

// Redacted replaces every secret argument in logged command lines.
const Redacted = "[REDACTED]"

// Arg is one element of an argument vector.
type Arg struct {
	Value  string
	Secret bool
	// Prefix is prepended to Value on the command line, e.g. "pass:" for
	// openssl password sources.
	Prefix string
}

// Command is an external tool invocation.
type Command struct {
	// Tool is the executable name or path.
	Tool string
	// Args are passed to the tool verbatim; no shell is involved.
	Args []Arg
	// Dir is the working directory; empty means the current directory.
	Dir string
}

// New starts a command for tool with the given plain arguments.
func New(tool string, args ...string) *Command {
	c := &Command{Tool: tool}
	return c.Flag(args...)
}

// Flag appends plain arguments.
func (c *Command) Flag(args ...string) *Command {
	for _, a := range args {
		c.Args = append(c.Args, Arg{Value: a})
	}
	return c
}

// FlagValue appends a flag followed by a plain value.
func (c *Command) FlagValue(flag, value string) *Command {
	c.Args = append(c.Args, Arg{Value: flag}, Arg{Value: value})
	return c
}

// SecretFlag appends a flag followed by a secret value. prefix is prepended
// to the secret (e.g. "pass:" for openssl) and is hidden along with it.
func (c *Command) SecretFlag(flag, prefix, secret string) *Command {
	c.Args = append(c.Args, Arg{Value: flag}, Arg{Value: secret, Secret: true, Prefix: prefix})
	return c
}

// In sets the working directory.
func (c *Command) In(dir string) *Command {
	c.Dir = dir
	return c
}

// Argv returns the full argument vector, secrets included. It must only be
// handed to the process launcher.
func (c *Command) Argv() []string {
	argv := make([]string, 0, len(c.Args))
	for _, a := range c.Args {
		argv = append(argv, a.Prefix+a.Value)
	}
	return argv
}

// String renders the command for logs with secret arguments replaced.
func (c *Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Tool)
	for _, a := range c.Args {
		if a.Secret {
			parts = append(parts, a.Prefix+Redacted)
			continue
		}
		parts = append(parts, a.Value)
	}
	return strings.Join(parts, " ")
}

// Scrub replaces every occurrence of the command's secret values in text.
func (c *Command) Scrub(text string) string {
	for _, a := range c.Args {
		if a.Secret && a.Value != "" {
			text = strings.ReplaceAll(text, a.Value, Redacted)
		}
	}
	return text
}
