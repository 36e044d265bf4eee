package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
	"github.com/explorable-research/explorable-backend/internal/explorables/generator"
	"github.com/explorable-research/explorable-backend/internal/explorables/sandbox"
	"github.com/explorable-research/explorable-backend/internal/explorables/source"
	"github.com/explorable-research/explorable-backend/internal/explorables/templates"
)

// journal is the ordered log of persisted writes and external calls shared by the fakes.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

type fakeStore struct {
	mu       sync.Mutex
	log      *journal
	projects map[string]*domain.Project
	// statusErr fails UpdateStatus for that status.
	statusErr domain.Status
}

func newFakeStore(log *journal) *fakeStore {
	return &fakeStore{log: log, projects: map[string]*domain.Project{}}
}

func (s *fakeStore) put(p *domain.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.projects[p.ID] = &cp
}

func (s *fakeStore) snapshot(id string) *domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (s *fakeStore) update(userID, id string, fn func(p *domain.Project)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok || p.UserID != userID {
		return domain.ErrProjectNotFound
	}
	fn(p)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *fakeStore) Create(_ context.Context, p *domain.Project) error {
	p.Status = domain.StatusCreated
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	s.put(p)
	s.log.add("status:created")
	return nil
}

func (s *fakeStore) Get(_ context.Context, userID, id string) (*domain.Project, error) {
	p := s.snapshot(id)
	if p == nil || p.UserID != userID {
		return nil, domain.ErrProjectNotFound
	}
	return p, nil
}

func (s *fakeStore) List(_ context.Context, userID string, _, _ int) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Project
	for _, p := range s.projects {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeStore) ListStale(_ context.Context, before time.Time, _ int) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Project
	for _, p := range s.projects {
		if !p.Status.IsTerminal() && p.UpdatedAt.Before(before) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, userID, id string, status domain.Status) error {
	if status == s.statusErr {
		return errors.New("connection reset")
	}
	s.log.add("status:%s", status)
	return s.update(userID, id, func(p *domain.Project) { p.Status = status })
}

func (s *fakeStore) Restart(_ context.Context, userID, id string) error {
	s.mu.Lock()
	p, ok := s.projects[id]
	ready := ok && p.Status == domain.StatusReady
	s.mu.Unlock()
	if !ready {
		return domain.ErrProjectBusy
	}
	s.log.add("status:created")
	return s.update(userID, id, func(p *domain.Project) {
		p.Status = domain.StatusCreated
		p.ErrorMessage = nil
	})
}

func (s *fakeStore) AttachSource(_ context.Context, userID, id, title string, sourcePDFPath, arxivID *string) error {
	return s.update(userID, id, func(p *domain.Project) {
		if title != "" {
			p.Title = title
		}
		p.SourcePDFPath = sourcePDFPath
		p.ArxivID = arxivID
	})
}

func (s *fakeStore) SaveFragment(_ context.Context, userID, id string, f *domain.Fragment, msgs []domain.Message) error {
	s.log.add("fragment")
	return s.update(userID, id, func(p *domain.Project) {
		p.Fragment = f
		p.Template = f.Template
		p.Messages = msgs
	})
}

func (s *fakeStore) Complete(_ context.Context, userID, id string, result *domain.ExecutionResult, msgs []domain.Message) error {
	s.log.add("status:ready")
	return s.update(userID, id, func(p *domain.Project) {
		p.Status = domain.StatusReady
		p.Result = result
		p.Messages = msgs
		p.ErrorMessage = nil
	})
}

func (s *fakeStore) Fail(_ context.Context, userID, id, message string) error {
	s.log.add("status:failed")
	return s.update(userID, id, func(p *domain.Project) {
		p.Status = domain.StatusFailed
		p.ErrorMessage = &message
		p.Result = nil
	})
}

func (s *fakeStore) Delete(_ context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok || p.UserID != userID {
		return false, nil
	}
	delete(s.projects, id)
	return true, nil
}

type fakeResolver struct {
	checkErr   error
	resolveErr error
	resolved   *source.Resolved
}

func (r *fakeResolver) Check(source.Ref, source.Options) error { return r.checkErr }

func (r *fakeResolver) Resolve(context.Context, source.Ref, source.Options) (*source.Resolved, error) {
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	if r.resolved != nil {
		return r.resolved, nil
	}
	return &source.Resolved{
		PDF:      source.PDFRef{StoragePath: "pdfs/user-1/paper.pdf"},
		Filename: "2301.00001.pdf",
		Title:    "Attention Is All You Need",
		Abstract: "Transformers.",
		ArxivID:  "2301.00001",
	}, nil
}

type fakeGenerator struct {
	log      *journal
	fragment *domain.Fragment
	err      error

	mu       sync.Mutex
	calls    int
	lastMsgs []domain.Message
	lastTmpl string
	lastCfg  generator.ModelConfig
}

func (g *fakeGenerator) Generate(_ context.Context, msgs []domain.Message, tmpl templates.Template, cfg generator.ModelConfig) (*domain.Fragment, error) {
	g.log.add("generate")
	g.mu.Lock()
	g.calls++
	g.lastMsgs = msgs
	g.lastTmpl = tmpl.ID
	g.lastCfg = cfg
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	f := *g.fragment
	f.Template = tmpl.ID
	return &f, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// fakeProvider stands in for the sandbox service behind a real orchestrator.
type fakeProvider struct {
	log       *journal
	createErr error
	writeErr  error
	connected []string
	killed    []string
	mu        sync.Mutex
}

func (f *fakeProvider) Create(_ context.Context, templateID string, _ map[string]string, _ time.Duration) (*sandbox.Sandbox, error) {
	f.log.add("sandbox:create")
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &sandbox.Sandbox{ID: "sbx-1", TemplateID: templateID}, nil
}

func (f *fakeProvider) Connect(_ context.Context, sandboxID string, _ time.Duration) (*sandbox.Sandbox, error) {
	f.log.add("sandbox:connect")
	f.mu.Lock()
	f.connected = append(f.connected, sandboxID)
	f.mu.Unlock()
	return &sandbox.Sandbox{ID: sandboxID}, nil
}

func (f *fakeProvider) RunCommand(_ context.Context, _, cmd string) (*sandbox.CommandResult, error) {
	f.log.add("sandbox:command")
	return &sandbox.CommandResult{}, nil
}

func (f *fakeProvider) WriteFile(_ context.Context, _, path, _ string) error {
	f.log.add("sandbox:write")
	return f.writeErr
}

func (f *fakeProvider) RunCode(_ context.Context, _, _ string) (*sandbox.Execution, error) {
	f.log.add("sandbox:run")
	return &sandbox.Execution{Stdout: []string{"ok"}}, nil
}

func (f *fakeProvider) Kill(_ context.Context, sandboxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, sandboxID)
	return nil
}

func (f *fakeProvider) HostURL(sandboxID string, port int) string {
	return fmt.Sprintf("https://%d-%s.sandbox.test", port, sandboxID)
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocks) Acquire(_ context.Context, projectID string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[projectID] {
		return nil, domain.ErrProjectBusy
	}
	l.held[projectID] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, projectID)
	}, nil
}

type fakeEvents struct {
	mu       sync.Mutex
	statuses []domain.Status
}

func (e *fakeEvents) Publish(_ context.Context, rec domain.StatusRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses = append(e.statuses, rec.Status)
	return nil
}
