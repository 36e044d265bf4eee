package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
)

// fakeProvider records calls in order and fails the configured step.
type fakeProvider struct {
	calls []string

	createErr  error
	connectErr error
	installRes *CommandResult
	writeErr   error
	runErr     error
	killErr    error
	exec       *Execution

	createdTemplate string
	written         map[string]string
	killed          []string
}

func (f *fakeProvider) Create(_ context.Context, templateID string, _ map[string]string, _ time.Duration) (*Sandbox, error) {
	f.calls = append(f.calls, "create")
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdTemplate = templateID
	return &Sandbox{ID: "sbx-new", TemplateID: templateID}, nil
}

func (f *fakeProvider) Connect(_ context.Context, sandboxID string, _ time.Duration) (*Sandbox, error) {
	f.calls = append(f.calls, "connect")
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return &Sandbox{ID: sandboxID}, nil
}

func (f *fakeProvider) RunCommand(_ context.Context, _ string, cmd string) (*CommandResult, error) {
	f.calls = append(f.calls, "command:"+cmd)
	if f.installRes != nil {
		return f.installRes, nil
	}
	return &CommandResult{}, nil
}

func (f *fakeProvider) WriteFile(_ context.Context, _ string, path, content string) error {
	f.calls = append(f.calls, "write:"+path)
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.written == nil {
		f.written = map[string]string{}
	}
	f.written[path] = content
	return nil
}

func (f *fakeProvider) RunCode(_ context.Context, _ string, code string) (*Execution, error) {
	f.calls = append(f.calls, "run")
	if f.runErr != nil {
		return nil, f.runErr
	}
	if f.exec != nil {
		return f.exec, nil
	}
	return &Execution{Stdout: []string{code}}, nil
}

func (f *fakeProvider) Kill(_ context.Context, sandboxID string) error {
	f.calls = append(f.calls, "kill")
	f.killed = append(f.killed, sandboxID)
	return f.killErr
}

func (f *fakeProvider) HostURL(sandboxID string, port int) string {
	return fmt.Sprintf("https://%d-%s.sandbox.test", port, sandboxID)
}

type stageRecorder struct {
	stages []domain.Status
	calls  *[]string
	// failAt makes recording that stage fail.
	failAt domain.Status
}

func (r *stageRecorder) record(_ context.Context, s domain.Status) error {
	if s == r.failAt {
		return errors.New("status write failed")
	}
	r.stages = append(r.stages, s)
	if r.calls != nil {
		*r.calls = append(*r.calls, "stage:"+string(s))
	}
	return nil
}
