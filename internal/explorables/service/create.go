package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/explorable-research/explorable-backend/internal/explorables/arxiv"
	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
	"github.com/explorable-research/explorable-backend/internal/explorables/messages"
	"github.com/explorable-research/explorable-backend/internal/explorables/source"
	"github.com/explorable-research/explorable-backend/internal/explorables/templates"
	"github.com/explorable-research/explorable-backend/internal/logger"
)

const untitled = "Untitled explorable"

// CreateRequest starts a project from a paper.
type CreateRequest struct {
	UserID      string
	ArxivURL    string
	PDF         []byte
	PDFFilename string
	Instruction string
	// Images are data URLs.
	Images      []string
	Template    string
	Model       string
	Temperature *float64
}

func (r CreateRequest) sourceRef() source.Ref {
	return source.Ref{ArxivURL: r.ArxivURL, PDF: r.PDF, Filename: r.PDFFilename}
}

// CreateAsync validates req, records the project in status created and runs
// the pipeline in the background. The returned project is the created record.
func (p *Pipeline) CreateAsync(ctx context.Context, req CreateRequest) (*domain.Project, error) {
	r, tmpl, err := p.startCreate(ctx, req)
	if err != nil {
		return nil, err
	}
	created := *r.project
	p.spawn(ctx, r, "create_explorable", func(ctx context.Context, r *run) error {
		return p.runCreate(ctx, r, req, tmpl)
	})
	return &created, nil
}

// CreateSync runs the whole pipeline within the caller's request and returns
// the terminal project, or the error that failed it.
func (p *Pipeline) CreateSync(ctx context.Context, req CreateRequest) (*domain.Project, error) {
	r, tmpl, err := p.startCreate(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.execute(ctx, r, func(ctx context.Context, r *run) error {
		return p.runCreate(ctx, r, req, tmpl)
	})
}

// CreateFromFragment deploys a fragment the caller already has, skipping
// generation. The run starts at creating_sandbox in the background.
func (p *Pipeline) CreateFromFragment(ctx context.Context, userID string, f *domain.Fragment) (*domain.Project, error) {
	if userID == "" {
		return nil, domain.NewError(domain.CodeUnauthorized, "authentication required")
	}
	if f == nil {
		return nil, domain.NewError(domain.CodeValidation, "fragment is required")
	}
	if err := f.Validate(); err != nil {
		return nil, domain.Wrap(domain.CodeValidation, err, "invalid fragment: %v", err)
	}
	tmpl, err := p.deps.Catalog.Resolve(f.Template)
	if err != nil {
		return nil, err
	}
	f.Template = tmpl.ID

	title := f.Title
	if title == "" {
		title = untitled
	}
	project := &domain.Project{UserID: userID, Title: title, Template: tmpl.ID}
	if f.Description != "" {
		desc := f.Description
		project.Description = &desc
	}
	r, err := p.insert(ctx, project)
	if err != nil {
		return nil, err
	}
	if err := p.saveFragment(ctx, r, f, nil); err != nil {
		r.release()
		return nil, err
	}

	created := *project
	p.spawn(ctx, r, "create_from_fragment", func(ctx context.Context, r *run) error {
		return p.deploy(ctx, r, f, nil, "")
	})
	return &created, nil
}

// startCreate validates req and inserts the project record.
func (p *Pipeline) startCreate(ctx context.Context, req CreateRequest) (*run, templates.Template, error) {
	if req.UserID == "" {
		return nil, templates.Template{}, domain.NewError(domain.CodeUnauthorized, "authentication required")
	}
	if err := checkInstruction(req.Instruction, false); err != nil {
		return nil, templates.Template{}, err
	}
	templateID := req.Template
	if strings.TrimSpace(templateID) == "" {
		templateID = p.cfg.DefaultTemplate
	}
	tmpl, err := p.deps.Catalog.Resolve(templateID)
	if err != nil {
		return nil, templates.Template{}, err
	}
	if err := p.deps.Resolver.Check(req.sourceRef(), source.Options{UserID: req.UserID}); err != nil {
		return nil, templates.Template{}, err
	}

	r, err := p.insert(ctx, &domain.Project{
		UserID:   req.UserID,
		Title:    provisionalTitle(req),
		Template: tmpl.ID,
	})
	if err != nil {
		return nil, templates.Template{}, err
	}
	return r, tmpl, nil
}

// insert locks a fresh project id and records the project in status created.
func (p *Pipeline) insert(ctx context.Context, project *domain.Project) (*run, error) {
	project.ID = uuid.New().String()
	release, err := p.lock(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if err := p.deps.Store.Create(ctx, project); err != nil {
		release()
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &run{project: project, release: release}, nil
}

func (p *Pipeline) runCreate(ctx context.Context, r *run, req CreateRequest, tmpl templates.Template) error {
	resolved, err := p.deps.Resolver.Resolve(ctx, req.sourceRef(), source.Options{UserID: req.UserID})
	if err != nil {
		return err
	}
	p.attachSource(ctx, r, resolved)

	if err := p.advance(ctx, r, domain.StatusGeneratingCode); err != nil {
		return err
	}
	opts := messages.InitialOptions{
		PDF: &messages.PDFInput{
			StoragePath: resolved.PDF.StoragePath,
			Data:        resolved.PDF.Data,
			Filename:    resolved.Filename,
		},
		Images:      req.Images,
		Instruction: req.Instruction,
	}
	if resolved.HasMetadata() {
		opts.Metadata = &messages.PaperMetadata{Title: resolved.Title, Abstract: resolved.Abstract}
	}
	history := messages.BuildInitial(opts)

	fragment, err := p.deps.Generator.Generate(ctx, history, tmpl, p.modelConfig(req.Model, req.Temperature))
	if err != nil {
		return err
	}
	if err := p.saveFragment(ctx, r, fragment, history); err != nil {
		return err
	}
	return p.deploy(ctx, r, fragment, history, "")
}

// attachSource records the resolved paper. A failed write only costs metadata.
func (p *Pipeline) attachSource(ctx context.Context, r *run, res *source.Resolved) {
	var storagePath, arxivID *string
	if res.PDF.Stored() {
		storagePath = &res.PDF.StoragePath
	}
	if res.ArxivID != "" {
		arxivID = &res.ArxivID
	}
	if err := p.deps.Store.AttachSource(ctx, r.userID(), r.id(), res.Title, storagePath, arxivID); err != nil {
		logger.New(ctx).Warnf("attach_source", "project metadata not saved: %v", err)
		return
	}
	if res.Title != "" {
		r.project.Title = res.Title
	}
	r.project.SourcePDFPath = storagePath
	r.project.ArxivID = arxivID
}

func provisionalTitle(req CreateRequest) string {
	if id, ok := arxiv.ExtractID(req.ArxivURL); ok {
		return "arXiv:" + id
	}
	if name := strings.TrimSpace(req.PDFFilename); name != "" {
		return strings.TrimSuffix(path.Base(name), path.Ext(name))
	}
	return untitled
}

// checkInstruction enforces the instruction length bound. Continuations also
// require a non-empty instruction.
func checkInstruction(s string, required bool) error {
	if required && strings.TrimSpace(s) == "" {
		return domain.NewError(domain.CodeValidation, "instruction is required")
	}
	if n := utf8.RuneCountInString(s); n > MaxInstructionLength {
		err := domain.NewError(domain.CodeValidation, "instruction must be at most %d characters", MaxInstructionLength)
		err.Details = map[string]int{"length": n, "max": MaxInstructionLength}
		return err
	}
	return nil
}
