package service

import (
	"context"
	"errors"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
	"github.com/explorable-research/explorable-backend/internal/explorables/messages"
	"github.com/explorable-research/explorable-backend/internal/explorables/templates"
)

// ContinueRequest asks for a revision of a ready project.
type ContinueRequest struct {
	UserID      string
	ProjectID   string
	Instruction string
	Images      []string
	Model       string
	Temperature *float64
}

// ContinueAsync revises a ready project in the background.
func (p *Pipeline) ContinueAsync(ctx context.Context, req ContinueRequest) (*domain.Project, error) {
	r, tmpl, err := p.startContinue(ctx, req)
	if err != nil {
		return nil, err
	}
	started := *r.project
	previous := r.project.Fragment
	history := r.project.Messages
	p.spawn(ctx, r, "continue_explorable", func(ctx context.Context, r *run) error {
		return p.runContinue(ctx, r, req, tmpl, previous, history)
	})
	return &started, nil
}

// ContinueSync revises a ready project within the caller's request.
func (p *Pipeline) ContinueSync(ctx context.Context, req ContinueRequest) (*domain.Project, error) {
	r, tmpl, err := p.startContinue(ctx, req)
	if err != nil {
		return nil, err
	}
	previous := r.project.Fragment
	history := r.project.Messages
	return p.execute(ctx, r, func(ctx context.Context, r *run) error {
		return p.runContinue(ctx, r, req, tmpl, previous, history)
	})
}

// startContinue checks the project is ready and moves it back to created.
// Nothing is generated or deployed when a check fails.
func (p *Pipeline) startContinue(ctx context.Context, req ContinueRequest) (*run, templates.Template, error) {
	if req.UserID == "" {
		return nil, templates.Template{}, domain.NewError(domain.CodeUnauthorized, "authentication required")
	}
	if err := checkInstruction(req.Instruction, true); err != nil {
		return nil, templates.Template{}, err
	}

	project, err := p.deps.Store.Get(ctx, req.UserID, req.ProjectID)
	if err != nil {
		return nil, templates.Template{}, notFound(err)
	}
	if project.Status != domain.StatusReady {
		return nil, templates.Template{}, notReady(project.Status)
	}

	templateID := project.Template
	if project.Fragment != nil && project.Fragment.Template != "" {
		templateID = project.Fragment.Template
	}
	tmpl, err := p.deps.Catalog.Resolve(templateID)
	if err != nil {
		return nil, templates.Template{}, err
	}

	release, err := p.lock(ctx, project.ID)
	if err != nil {
		return nil, templates.Template{}, err
	}
	if err := p.deps.Store.Restart(ctx, req.UserID, project.ID); err != nil {
		release()
		if errors.Is(err, domain.ErrProjectBusy) {
			return nil, templates.Template{}, notReady("")
		}
		return nil, templates.Template{}, notFound(err)
	}
	project.Status = domain.StatusCreated
	project.ErrorMessage = nil
	return &run{project: project, release: release}, tmpl, nil
}

func (p *Pipeline) runContinue(ctx context.Context, r *run, req ContinueRequest, tmpl templates.Template,
	previous *domain.Fragment, history []domain.Message) error {
	if err := p.advance(ctx, r, domain.StatusGeneratingCode); err != nil {
		return err
	}

	opts := messages.ContinuationOptions{Images: req.Images, Instruction: req.Instruction}
	if !endsWithFragment(history) {
		opts.PreviousFragment = previous
	}
	history = messages.AppendContinuation(history, opts)

	fragment, err := p.deps.Generator.Generate(ctx, history, tmpl, p.modelConfig(req.Model, req.Temperature))
	if err != nil {
		return err
	}
	if err := p.saveFragment(ctx, r, fragment, history); err != nil {
		return err
	}

	var previousSandboxID string
	if res := r.project.Result; res != nil {
		previousSandboxID = res.SandboxID
	}
	return p.deploy(ctx, r, fragment, history, previousSandboxID)
}

// endsWithFragment reports whether the last turn already shows the model its
// previous output.
func endsWithFragment(history []domain.Message) bool {
	if len(history) == 0 {
		return false
	}
	last := history[len(history)-1]
	return last.Role == domain.RoleAssistant && last.Object != nil
}

func notReady(status domain.Status) error {
	if status == "" {
		return domain.NewError(domain.CodeInvalidState, "Project is not ready for changes")
	}
	return domain.NewError(domain.CodeInvalidState, "Project is not ready for changes (status: %s)", status)
}

func notFound(err error) error {
	if errors.Is(err, domain.ErrProjectNotFound) {
		return domain.Wrap(domain.CodeNotFound, err, "Project not found")
	}
	return domain.Wrap(domain.CodeInternal, err, "Failed to load project")
}
