package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
	"github.com/explorable-research/explorable-backend/internal/explorables/generator"
	"github.com/explorable-research/explorable-backend/internal/explorables/sandbox"
	"github.com/explorable-research/explorable-backend/internal/explorables/source"
	"github.com/explorable-research/explorable-backend/internal/explorables/templates"
	"github.com/explorable-research/explorable-backend/internal/logger"
)

// MaxInstructionLength bounds user instructions, counted in characters.
const MaxInstructionLength = 10000

// ProjectStore persists projects, scoped to their owner.
type ProjectStore interface {
	Create(ctx context.Context, p *domain.Project) error
	Get(ctx context.Context, userID, id string) (*domain.Project, error)
	List(ctx context.Context, userID string, limit, offset int) ([]domain.Project, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Project, error)
	UpdateStatus(ctx context.Context, userID, id string, status domain.Status) error
	Restart(ctx context.Context, userID, id string) error
	AttachSource(ctx context.Context, userID, id, title string, sourcePDFPath, arxivID *string) error
	SaveFragment(ctx context.Context, userID, id string, f *domain.Fragment, msgs []domain.Message) error
	Complete(ctx context.Context, userID, id string, result *domain.ExecutionResult, msgs []domain.Message) error
	Fail(ctx context.Context, userID, id, message string) error
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// Locker grants at most one in-flight run per project.
type Locker interface {
	Acquire(ctx context.Context, projectID string, ttl time.Duration) (func(), error)
}

// Publisher broadcasts status changes to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, rec domain.StatusRecord) error
}

type SourceResolver interface {
	Check(ref source.Ref, opts source.Options) error
	Resolve(ctx context.Context, ref source.Ref, opts source.Options) (*source.Resolved, error)
}

type FragmentGenerator interface {
	Generate(ctx context.Context, msgs []domain.Message, tmpl templates.Template, cfg generator.ModelConfig) (*domain.Fragment, error)
}

type SandboxOrchestrator interface {
	CreateFromFragment(ctx context.Context, f *domain.Fragment, opts sandbox.Options) (*domain.ExecutionResult, error)
	UpdateCode(ctx context.Context, existingSandboxID string, f *domain.Fragment, opts sandbox.Options) (*domain.ExecutionResult, error)
	Kill(ctx context.Context, sandboxID string) error
}

// BlobDeleter removes stored source documents.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// Deps are the capabilities a Pipeline drives. Locks, Events and Blobs are optional.
type Deps struct {
	Store     ProjectStore
	Resolver  SourceResolver
	Generator FragmentGenerator
	Sandboxes SandboxOrchestrator
	Catalog   *templates.Catalog
	Locks     Locker
	Events    Publisher
	Blobs     BlobDeleter
}

type Config struct {
	DefaultModel    string
	DefaultTemplate string
	// RunTimeout bounds one pipeline run in both modes.
	RunTimeout time.Duration
	LockTTL    time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTemplate == "" {
		c.DefaultTemplate = "explorable-research-developer"
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 5 * time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * c.RunTimeout
	}
	return c
}

// Pipeline drives projects through
// created → generating_code → creating_sandbox → installing_dependencies → executing_code → ready,
// persisting each status before the step it names.
type Pipeline struct {
	deps Deps
	cfg  Config

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPipeline(deps Deps, cfg Config) *Pipeline {
	return &Pipeline{deps: deps, cfg: cfg.withDefaults()}
}

// Start sets the parent context of background runs. Stop cancels it and waits
// for runs in flight.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctx, p.cancel = context.WithCancel(ctx)
}

func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *Pipeline) baseContext() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return context.Background()
	}
	return p.ctx
}

// run is the state of one pipeline execution.
type run struct {
	project *domain.Project
	release func()
}

func (r *run) userID() string { return r.project.UserID }
func (r *run) id() string     { return r.project.ID }

// spawn executes fn in the background, detached from the request that
// started it but keeping its request id for logging.
func (p *Pipeline) spawn(reqCtx context.Context, r *run, operation string, fn func(ctx context.Context, r *run) error) {
	ctx := logger.WithRequestID(p.baseContext(), logger.RequestID(reqCtx))
	ctx = logger.WithProject(ctx, r.id())

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer r.release()

		ctx, cancel := context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()

		if err := p.guard(ctx, r, fn); err != nil {
			logger.New(ctx).Error(operation, err)
		}
	}()
}

// execute runs fn within the request, bounded by the run timeout.
func (p *Pipeline) execute(ctx context.Context, r *run, fn func(ctx context.Context, r *run) error) (*domain.Project, error) {
	defer r.release()
	ctx = logger.WithProject(ctx, r.id())
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RunTimeout)
	defer cancel()

	if err := p.guard(ctx, r, fn); err != nil {
		return nil, err
	}
	return r.project, nil
}

// guard runs fn and turns any failure, panics included, into a persisted failed status.
func (p *Pipeline) guard(ctx context.Context, r *run, fn func(ctx context.Context, r *run) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.New(ctx).Errorf("pipeline_panic", "panic=%v stack=%s", rec, debug.Stack())
			err = domain.NewError(domain.CodeInternal, "internal server error")
			p.fail(ctx, r, err)
		}
	}()
	if err = fn(ctx, r); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && domain.CodeOf(err) == domain.CodeInternal {
			err = domain.Wrap(domain.CodeInternal, err, timedOutMessage)
		}
		p.fail(ctx, r, err)
	}
	return err
}

// advance persists the status of the step about to run. The step must not
// run when the write fails.
func (p *Pipeline) advance(ctx context.Context, r *run, next domain.Status) error {
	if !domain.CanTransition(r.project.Status, next) {
		logger.New(ctx).Warnf("advance", "ignoring transition %s -> %s", r.project.Status, next)
		return nil
	}
	if err := p.deps.Store.UpdateStatus(ctx, r.userID(), r.id(), next); err != nil {
		return domain.Wrap(domain.CodeInternal, err, "Failed to record progress")
	}
	r.project.Status = next
	r.project.UpdatedAt = time.Now().UTC()
	p.publish(ctx, r)
	return nil
}

// fail persists the failed status with a client-safe message.
func (p *Pipeline) fail(ctx context.Context, r *run, cause error) {
	if r.project.Status.IsTerminal() {
		return
	}
	msg := domain.MessageOf(cause)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := p.deps.Store.Fail(wctx, r.userID(), r.id(), msg); err != nil {
		logger.New(ctx).Errorf("fail_project", "persist failure %q: %v", msg, err)
	}
	r.project.Status = domain.StatusFailed
	r.project.ErrorMessage = &msg
	r.project.Result = nil
	r.project.UpdatedAt = time.Now().UTC()
	p.publish(wctx, r)
}

func (p *Pipeline) publish(ctx context.Context, r *run) {
	if p.deps.Events == nil {
		return
	}
	if err := p.deps.Events.Publish(ctx, r.project.Record()); err != nil {
		logger.New(ctx).Warnf("publish_status", "status=%s: %v", r.project.Status, err)
	}
}

// lock takes the per-project run lock when a Locker is configured.
func (p *Pipeline) lock(ctx context.Context, projectID string) (func(), error) {
	if p.deps.Locks == nil {
		return func() {}, nil
	}
	release, err := p.deps.Locks.Acquire(ctx, projectID, p.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrProjectBusy) {
			return nil, domain.Wrap(domain.CodeConflict, err, "Project is already being processed")
		}
		return nil, domain.Wrap(domain.CodeInternal, err, "Failed to lock project")
	}
	return release, nil
}

// stageRecorder persists orchestrator stages as project statuses.
func (p *Pipeline) stageRecorder(r *run) sandbox.Options {
	return sandbox.Options{
		UserID:    r.userID(),
		ProjectID: r.id(),
		OnStage: func(ctx context.Context, stage domain.Status) error {
			return p.advance(ctx, r, stage)
		},
	}
}

// deploy runs the sandbox stages and persists the terminal ready state.
func (p *Pipeline) deploy(ctx context.Context, r *run, f *domain.Fragment, history []domain.Message, previousSandboxID string) error {
	var (
		result *domain.ExecutionResult
		err    error
	)
	opts := p.stageRecorder(r)
	if previousSandboxID != "" {
		result, err = p.deps.Sandboxes.UpdateCode(ctx, previousSandboxID, f, opts)
	} else {
		result, err = p.deps.Sandboxes.CreateFromFragment(ctx, f, opts)
	}
	if err != nil {
		return err
	}

	history = append(domain.SanitizeMessages(history), domain.Message{
		Role:    domain.RoleAssistant,
		Content: assistantContent(f),
		Object:  f,
		Result:  result,
	})
	if err := p.deps.Store.Complete(ctx, r.userID(), r.id(), result, history); err != nil {
		return fmt.Errorf("complete project: %w", err)
	}

	r.project.Status = domain.StatusReady
	r.project.Fragment = f
	r.project.Result = result
	r.project.Messages = history
	r.project.ErrorMessage = nil
	r.project.UpdatedAt = time.Now().UTC()
	p.publish(ctx, r)
	return nil
}

func (p *Pipeline) saveFragment(ctx context.Context, r *run, f *domain.Fragment, history []domain.Message) error {
	history = domain.SanitizeMessages(history)
	if err := p.deps.Store.SaveFragment(ctx, r.userID(), r.id(), f, history); err != nil {
		return fmt.Errorf("save fragment: %w", err)
	}
	r.project.Fragment = f
	r.project.Template = f.Template
	r.project.Messages = history
	if f.Title != "" {
		r.project.Title = f.Title
	}
	if f.Description != "" {
		desc := f.Description
		r.project.Description = &desc
	}
	return nil
}

func (p *Pipeline) modelConfig(model string, temperature *float64) generator.ModelConfig {
	if model == "" {
		model = p.cfg.DefaultModel
	}
	return generator.ModelConfig{Model: model, Temperature: temperature}
}

func assistantContent(f *domain.Fragment) []domain.ContentBlock {
	var content []domain.ContentBlock
	if f.Commentary != "" {
		content = append(content, domain.TextBlock(f.Commentary))
	}
	return append(content, domain.ContentBlock{Type: domain.BlockCode, Text: f.CodeText()})
}
