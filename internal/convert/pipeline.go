// Package convert sequences the keystore and PEM conversions. Each direction
// is a fixed linear state machine; every stage is one toolchain call inside
// a private workspace that is removed when the request ends.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sensiblebit/jksconvert/internal/packager"
	"github.com/sensiblebit/jksconvert/internal/toolchain"
	"github.com/sensiblebit/jksconvert/internal/workspace"
)

// State is a pipeline state.
type State string

// ContainerToPem moves through Received, Validated, ExportedIntermediate,
// KeyExtracted, CertExtracted, Packaged, Done. PemToContainer moves through
// Received, Exported, Imported, Done.
const (
	StateReceived             State = "Received"
	StateValidated            State = "Validated"
	StateExportedIntermediate State = "ExportedIntermediate"
	StateKeyExtracted         State = "KeyExtracted"
	StateCertExtracted        State = "CertExtracted"
	StatePackaged             State = "Packaged"
	StateExported             State = "Exported"
	StateImported             State = "Imported"
	StateDone                 State = "Done"
)

// Workspace artifact names.
const (
	inputKeystore     = "input.jks"
	inputCertificate  = "input.pem"
	inputKey          = "input.key"
	intermediatePKCS  = "intermediate.p12"
	outputKey         = packager.KeyEntry
	outputCertificate = packager.CertEntry
	outputKeystore    = packager.KeystoreName
)

// ValidationMessage is shown for a keystore that fails the probe. It does
// not say whether the file or the password was wrong.
const ValidationMessage = "invalid keystore or password"

// Options configures a Pipeline.
type Options struct {
	Toolchain       toolchain.Toolchain
	Workspaces      *workspace.Manager
	ValidateTimeout time.Duration
	Defaults        Defaults
	Logger          *slog.Logger
}

// Pipeline runs conversions. It holds no per-request state and is safe for
// concurrent use.
type Pipeline struct {
	toolchain  toolchain.Toolchain
	workspaces *workspace.Manager
	validator  *Validator
	defaults   Defaults
	logger     *slog.Logger
}

// New returns a Pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workspaces := opts.Workspaces
	if workspaces == nil {
		workspaces = workspace.NewManager("", logger)
	}
	defaults := opts.Defaults
	if defaults.Alias == "" {
		defaults.Alias = "1"
	}
	return &Pipeline{
		toolchain:  opts.Toolchain,
		workspaces: workspaces,
		validator:  NewValidator(opts.Toolchain, opts.ValidateTimeout, logger),
		defaults:   defaults,
		logger:     logger,
	}
}

// Result is a completed conversion.
type Result struct {
	Download *packager.Download
	// Artifacts are the pipeline outputs before packaging.
	Artifacts []packager.Artifact
	// Trace lists every state reached, ending in StateDone.
	Trace []State
}

// run tracks the state of one request.
type run struct {
	ws     *workspace.Workspace
	req    Request
	trace  []State
	logger *slog.Logger
}

func (r *run) reach(s State) {
	r.trace = append(r.trace, s)
	r.logger.Debug("conversion state", "state", s)
}

func (r *run) last() State { return r.trace[len(r.trace)-1] }

// fail wraps err as a kind error at the current state.
func (r *run) fail(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, State: r.last(), Msg: msg, Err: err}
}

// Run executes req and returns its result. Every error is a *Error. The
// workspace is released on every return path.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	req, err := req.normalize(p.defaults)
	if err != nil {
		return nil, err
	}

	logger := p.logger.With("direction", string(req.Direction))
	if req.ID != "" {
		logger = logger.With("request_id", req.ID)
	}

	ws, err := p.workspaces.Acquire()
	if err != nil {
		logger.ErrorContext(ctx, "workspace unavailable", "error", err)
		return nil, &Error{Kind: KindResource, State: StateReceived, Err: err}
	}
	defer p.workspaces.Release(ws)

	r := &run{ws: ws, req: req, logger: logger.With("workspace", ws.ID())}
	r.reach(StateReceived)
	r.logger.InfoContext(ctx, "conversion started", "alias", req.Alias, "toolchain", p.toolchain.Name())

	var res *Result
	switch req.Direction {
	case ContainerToPem:
		res, err = p.containerToPem(ctx, r)
	case PemToContainer:
		res, err = p.pemToContainer(ctx, r)
	}
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			r.logger.WarnContext(ctx, "conversion failed", "kind", ce.Kind.String(), "state", ce.State)
		}
		return nil, err
	}
	r.reach(StateDone)
	res.Trace = r.trace
	r.logger.InfoContext(ctx, "conversion completed", "download", res.Download.Name)
	return res, nil
}

func (p *Pipeline) containerToPem(ctx context.Context, r *run) (*Result, error) {
	keystore, err := r.ws.Put(inputKeystore, r.req.Inputs[RoleKeystore])
	if err != nil {
		return nil, r.fail(KindResource, "", err)
	}
	if !p.validator.Validate(ctx, keystore, r.req.SourcePassword) {
		return nil, r.fail(KindValidation, ValidationMessage, nil)
	}
	r.reach(StateValidated)

	out, err := artifactPaths(r.ws, intermediatePKCS, outputKey, outputCertificate)
	if err != nil {
		return nil, r.fail(KindResource, "", err)
	}
	p12, keyOut, certOut := out[0], out[1], out[2]

	if err := p.toolchain.ExportPKCS12(ctx, toolchain.KeystoreExport{
		Keystore:       keystore,
		PKCS12:         p12,
		Alias:          r.req.Alias,
		SourcePassword: r.req.SourcePassword,
		DestPassword:   r.req.DestPassword,
	}); err != nil {
		return nil, r.fail(KindExternalTool, "", err)
	}
	r.reach(StateExportedIntermediate)

	if err := p.toolchain.ExtractKey(ctx, toolchain.Extract{PKCS12: p12, Out: keyOut, Password: r.req.DestPassword}); err != nil {
		return nil, r.fail(KindExternalTool, "", err)
	}
	r.reach(StateKeyExtracted)

	if err := p.toolchain.ExtractCertificate(ctx, toolchain.Extract{PKCS12: p12, Out: certOut, Password: r.req.DestPassword}); err != nil {
		return nil, r.fail(KindExternalTool, "", err)
	}
	r.reach(StateCertExtracted)

	key, err := readOutput(r.ws, outputKey)
	if err != nil {
		return nil, r.fail(KindExternalTool, "", err)
	}
	cert, err := readOutput(r.ws, outputCertificate)
	if err != nil {
		return nil, r.fail(KindExternalTool, "", err)
	}

	dl, err := packager.Bundle(r.req.Format, r.req.Alias, key, cert)
	if err != nil {
		return nil, r.fail(KindResource, "", err)
	}
	r.reach(StatePackaged)

	return &Result{
		Download: dl,
		Artifacts: []packager.Artifact{
			{Name: outputKey, Data: key},
			{Name: outputCertificate, Data: cert},
		},
	}, nil
}

func (p *Pipeline) pemToContainer(ctx context.Context, r *run) (*Result, error) {
	cert, err := r.ws.Put(inputCertificate, r.req.Inputs[RoleCertificate])
	if err != nil {
		return nil, r.fail(KindResource, "", err)
	}
	key, err := r.ws.Put(inputKey, r.req.Inputs[RoleKey])
	if err != nil {
		return nil, r.fail(KindResource, "", err)
	}
	out, err := artifactPaths(r.ws, intermediatePKCS, outputKeystore)
	if err != nil {
		return nil, r.fail(KindResource, "", err)
	}
	p12, keystore := out[0], out[1]

	if err := p.toolchain.PEMToPKCS12(ctx, toolchain.PEMExport{
		Certificate: cert,
		Key:         key,
		PKCS12:      p12,
		Alias:       r.req.Alias,
		Password:    r.req.SourcePassword,
	}); err != nil {
		return nil, r.fail(KindExternalTool, "", err)
	}
	r.reach(StateExported)

	if err := p.toolchain.ImportKeystore(ctx, toolchain.KeystoreImport{
		PKCS12:         p12,
		Keystore:       keystore,
		Alias:          r.req.Alias,
		SourcePassword: r.req.SourcePassword,
		DestPassword:   r.req.DestPassword,
	}); err != nil {
		return nil, r.fail(KindExternalTool, "", err)
	}
	r.reach(StateImported)

	data, err := readOutput(r.ws, outputKeystore)
	if err != nil {
		return nil, r.fail(KindExternalTool, "", err)
	}
	ks := packager.Artifact{Name: outputKeystore, Data: data}
	return &Result{Download: packager.Single(ks), Artifacts: []packager.Artifact{ks}}, nil
}

// readOutput reads a stage output. A tool that exits zero without writing
// its output is treated as a failed stage.
func readOutput(ws *workspace.Workspace, name string) ([]byte, error) {
	data, err := ws.Read(name)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", name)
	}
	return data, nil
}

func artifactPaths(ws *workspace.Workspace, names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		p, err := ws.Path(name)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
