package convert

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sensiblebit/jksconvert/internal/toolexec"
)

func TestError_IsMatchesKind(t *testing.T) {
	// WHY: Callers branch on the error kind through errors.Is, including
	// when the error has been wrapped again.
	t.Parallel()

	err := fmt.Errorf("request: %w", &Error{Kind: KindValidation, State: StateReceived, Msg: ValidationMessage})
	if !errors.Is(err, ErrValidation) {
		t.Error("errors.Is(err, ErrValidation) = false")
	}
	if errors.Is(err, ErrInput) {
		t.Error("validation error matched ErrInput")
	}
	if KindOf(err) != KindValidation {
		t.Errorf("KindOf = %v", KindOf(err))
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Error("KindOf(plain error) != 0")
	}
}

func TestError_UserMessageHidesInternals(t *testing.T) {
	// WHY: Tool and resource failures must not surface paths, exit codes, or
	// tool output to the caller, while the cause stays available for logs.
	t.Parallel()

	cause := &toolexec.ExternalToolError{Operation: "extract private key", ExitCode: 1}
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Kind: KindExternalTool, Err: cause}, "conversion failed"},
		{&Error{Kind: KindResource, Err: errors.New("mkdir /tmp/jksconvert-x: no space left")}, "internal error"},
		{&Error{Kind: KindInput, Msg: "missing keystore file"}, "missing keystore file"},
		{&Error{Kind: KindInput}, "invalid request"},
	}
	for _, tt := range tests {
		if got := tt.err.UserMessage(); got != tt.want {
			t.Errorf("%v: UserMessage = %q, want %q", tt.err.Kind, got, tt.want)
		}
		if strings.Contains(tt.err.UserMessage(), "/tmp") {
			t.Errorf("user message leaks a path")
		}
	}

	var toolErr *toolexec.ExternalToolError
	if !errors.As(tests[0].err, &toolErr) || toolErr.ExitCode != 1 {
		t.Error("cause not reachable through errors.As")
	}
}

func TestParseDirection(t *testing.T) {
	// WHY: The form field historically used underscores.
	t.Parallel()

	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"jks-to-pem", ContainerToPem, false},
		{"jks_to_pem", ContainerToPem, false},
		{"PEM_TO_JKS", PemToContainer, false},
		{"", "", true},
		{"p12-to-pem", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDirection(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseDirection(%q) = %q, %v", tt.in, got, err)
		}
		if err != nil && !errors.Is(err, ErrInput) {
			t.Errorf("ParseDirection(%q) error is not an InputError", tt.in)
		}
	}
}
