package service

import (
	"context"
	"fmt"
	"time"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
	"github.com/explorable-research/explorable-backend/internal/logger"
)

const timedOutMessage = "Processing timed out"

// Get loads a project with its fragment, result and history.
func (p *Pipeline) Get(ctx context.Context, userID, id string) (*domain.Project, error) {
	project, err := p.deps.Store.Get(ctx, userID, id)
	if err != nil {
		return nil, notFound(err)
	}
	return project, nil
}

// Status returns the pollable status record of a project.
func (p *Pipeline) Status(ctx context.Context, userID, id string) (*domain.StatusRecord, error) {
	project, err := p.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	rec := project.Record()
	return &rec, nil
}

// List returns the status records of the user's projects, newest first.
func (p *Pipeline) List(ctx context.Context, userID string, limit, offset int) ([]domain.StatusRecord, error) {
	projects, err := p.deps.Store.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]domain.StatusRecord, 0, len(projects))
	for i := range projects {
		out = append(out, projects[i].Record())
	}
	return out, nil
}

// Delete removes a project and releases what it holds: its sandbox and its
// stored source document. Those releases are best effort.
func (p *Pipeline) Delete(ctx context.Context, userID, id string) error {
	project, err := p.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	deleted, err := p.deps.Store.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if !deleted {
		return notFound(domain.ErrProjectNotFound)
	}

	log := logger.New(logger.WithProject(ctx, id))
	if project.Result != nil && project.Result.SandboxID != "" {
		if err := p.deps.Sandboxes.Kill(ctx, project.Result.SandboxID); err != nil {
			log.Warnf("delete_project", "kill sandbox %s: %v", project.Result.SandboxID, err)
		}
	}
	if p.deps.Blobs != nil && project.SourcePDFPath != nil {
		if err := p.deps.Blobs.Delete(ctx, *project.SourcePDFPath); err != nil {
			log.Warnf("delete_project", "delete source %s: %v", *project.SourcePDFPath, err)
		}
	}
	return nil
}

// ReapStale fails in-flight projects that have not progressed for olderThan
// and kills their sandboxes. Projects whose run still holds the lock are left
// alone. It returns how many projects were failed.
func (p *Pipeline) ReapStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := p.deps.Store.ListStale(ctx, time.Now().UTC().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale projects: %w", err)
	}

	reaped := 0
	for i := range stale {
		project := &stale[i]
		pctx := logger.WithProject(ctx, project.ID)
		log := logger.New(pctx)

		release, err := p.lock(pctx, project.ID)
		if err != nil {
			log.Infof("reap_stale", "skipped: %v", err)
			continue
		}
		r := &run{project: project, release: release}
		p.fail(pctx, r, domain.NewError(domain.CodeInternal, timedOutMessage))
		release()
		reaped++

		if project.Result != nil && project.Result.SandboxID != "" {
			if err := p.deps.Sandboxes.Kill(pctx, project.Result.SandboxID); err != nil {
				log.Warnf("reap_stale", "kill sandbox %s: %v", project.Result.SandboxID, err)
			}
		}
	}
	return reaped, nil
}
