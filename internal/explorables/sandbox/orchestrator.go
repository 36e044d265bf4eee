package sandbox

import (
	"context"
	"strings"
	"time"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
	"github.com/explorable-research/explorable-backend/internal/explorables/templates"
	"github.com/explorable-research/explorable-backend/internal/logger"
)

const cleanupTimeout = 15 * time.Second

// Provider is the sandbox capability used by the orchestrator.
type Provider interface {
	Create(ctx context.Context, templateID string, metadata map[string]string, timeout time.Duration) (*Sandbox, error)
	Connect(ctx context.Context, sandboxID string, timeout time.Duration) (*Sandbox, error)
	RunCommand(ctx context.Context, sandboxID, cmd string) (*CommandResult, error)
	WriteFile(ctx context.Context, sandboxID, path, content string) error
	RunCode(ctx context.Context, sandboxID, code string) (*Execution, error)
	Kill(ctx context.Context, sandboxID string) error
	HostURL(sandboxID string, port int) string
}

// Options carry per-run context. OnStage is called before the external call
// of each stage so the caller can persist progress first. An OnStage error
// aborts the deploy before that stage runs.
type Options struct {
	UserID    string
	ProjectID string
	OnStage   func(ctx context.Context, stage domain.Status) error
}

func (o Options) stage(ctx context.Context, s domain.Status) error {
	if o.OnStage == nil {
		return nil
	}
	return o.OnStage(ctx, s)
}

type Orchestrator struct {
	provider Provider
	catalog  *templates.Catalog
	lifetime time.Duration
}

// NewOrchestrator creates an orchestrator. lifetime is how long a sandbox stays alive.
func NewOrchestrator(provider Provider, catalog *templates.Catalog, lifetime time.Duration) *Orchestrator {
	return &Orchestrator{provider: provider, catalog: catalog, lifetime: lifetime}
}

// CreateFromFragment provisions a fresh sandbox and deploys f into it.
func (o *Orchestrator) CreateFromFragment(ctx context.Context, f *domain.Fragment, opts Options) (*domain.ExecutionResult, error) {
	tmpl, err := o.catalog.Resolve(f.Template)
	if err != nil {
		return nil, err
	}
	if err := opts.stage(ctx, domain.StatusCreatingSandbox); err != nil {
		return nil, err
	}
	sbx, err := o.create(ctx, tmpl, opts)
	if err != nil {
		return nil, err
	}
	return o.deploy(ctx, sbx, tmpl, f, opts)
}

// UpdateCode deploys f into the sandbox that served the previous version.
// An expired or unreachable sandbox is replaced by a new one.
func (o *Orchestrator) UpdateCode(ctx context.Context, existingSandboxID string, f *domain.Fragment, opts Options) (*domain.ExecutionResult, error) {
	tmpl, err := o.catalog.Resolve(f.Template)
	if err != nil {
		return nil, err
	}
	if err := opts.stage(ctx, domain.StatusCreatingSandbox); err != nil {
		return nil, err
	}
	sbx, err := o.reconnectOrCreate(ctx, existingSandboxID, tmpl, opts)
	if err != nil {
		return nil, err
	}
	return o.deploy(ctx, sbx, tmpl, f, opts)
}

// Kill terminates a sandbox, ignoring sandboxes that are already gone.
func (o *Orchestrator) Kill(ctx context.Context, sandboxID string) error {
	return o.provider.Kill(ctx, sandboxID)
}

func (o *Orchestrator) reconnectOrCreate(ctx context.Context, sandboxID string, tmpl templates.Template, opts Options) (*Sandbox, error) {
	if sandboxID != "" {
		sbx, err := o.provider.Connect(ctx, sandboxID, o.lifetime)
		if err == nil {
			return sbx, nil
		}
		logger.New(ctx).Infof("update_code", "sandbox %s unavailable, creating a new one: %v", sandboxID, err)
	}
	return o.create(ctx, tmpl, opts)
}

func (o *Orchestrator) create(ctx context.Context, tmpl templates.Template, opts Options) (*Sandbox, error) {
	metadata := map[string]string{"template": tmpl.ID}
	if opts.UserID != "" {
		metadata["userId"] = opts.UserID
	}
	if opts.ProjectID != "" {
		metadata["projectId"] = opts.ProjectID
	}
	sbx, err := o.provider.Create(ctx, o.catalog.SandboxTemplateID(tmpl.ID), metadata, o.lifetime)
	if err != nil {
		return nil, domain.Wrap(domain.CodeSandboxCreationFailed, err, "Failed to create sandbox: %v", err)
	}
	return sbx, nil
}

func (o *Orchestrator) deploy(ctx context.Context, sbx *Sandbox, tmpl templates.Template, f *domain.Fragment, opts Options) (*domain.ExecutionResult, error) {
	res, err := o.runStages(ctx, sbx, tmpl, f, opts)
	if err != nil {
		o.cleanup(ctx, sbx.ID)
		return nil, err
	}
	return res, nil
}

func (o *Orchestrator) runStages(ctx context.Context, sbx *Sandbox, tmpl templates.Template, f *domain.Fragment, opts Options) (*domain.ExecutionResult, error) {
	if f.HasAdditionalDependencies {
		if err := opts.stage(ctx, domain.StatusInstallingDependencies); err != nil {
			return nil, err
		}
		cmdRes, err := o.provider.RunCommand(ctx, sbx.ID, f.InstallDependenciesCommand)
		if err != nil {
			return nil, domain.Wrap(domain.CodeDependencyInstallFailed, err, "Failed to install dependencies: %v", err)
		}
		if cmdRes.ExitCode != 0 {
			return nil, domain.NewError(domain.CodeDependencyInstallFailed,
				"Failed to install dependencies: exit code %d: %s", cmdRes.ExitCode, strings.TrimSpace(cmdRes.Stderr))
		}
	}

	if err := opts.stage(ctx, domain.StatusExecutingCode); err != nil {
		return nil, err
	}
	files := f.Files()
	for _, file := range files {
		if err := o.provider.WriteFile(ctx, sbx.ID, file.Path, file.Content); err != nil {
			return nil, domain.Wrap(domain.CodeCodeWriteFailed, err, "Failed to write %s: %v", file.Path, err)
		}
	}

	if tmpl.Kind == templates.KindInterpreter {
		exec, err := o.provider.RunCode(ctx, sbx.ID, entryCode(f, files))
		if err != nil {
			return nil, domain.Wrap(domain.CodeExecutionFailed, err, "Failed to execute code: %v", err)
		}
		return domain.NewInterpreterResult(sbx.ID, tmpl.ID, exec.Stdout, exec.Stderr, exec.Error, exec.Results), nil
	}

	return domain.NewWebResult(sbx.ID, tmpl.ID, o.provider.HostURL(sbx.ID, f.ServePort())), nil
}

// cleanup kills a sandbox after a failed deploy. Errors are only logged so the
// deploy error stays the one reported.
func (o *Orchestrator) cleanup(ctx context.Context, sandboxID string) {
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := o.provider.Kill(killCtx, sandboxID); err != nil {
		logger.New(ctx).Warnf("sandbox_cleanup", "failed to kill sandbox %s: %v", sandboxID, err)
	}
}

// entryCode picks the code the interpreter runs: the single source, or the
// file at FilePath (first file otherwise) for multi-file fragments.
func entryCode(f *domain.Fragment, files []domain.File) string {
	if f.Code.Kind != domain.CodeMultiFile {
		return f.Code.Source
	}
	for _, file := range files {
		if file.Path == f.FilePath {
			return file.Content
		}
	}
	if len(files) > 0 {
		return files[0].Content
	}
	return ""
}

var _ Provider = (*Client)(nil)
