package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
)

const projectColumns = `id::text, user_id, title, description, template, fragment, result, messages,
  status, error_message, source_pdf_path, arxiv_id, created_at, updated_at`

// ProjectRepository persists projects. Every query is scoped to the owning user.
type ProjectRepository struct {
	db DB
}

func NewProjectRepository(db DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts p in status created and fills its id and timestamps.
func (r *ProjectRepository) Create(ctx context.Context, p *domain.Project) error {
	if p.UserID == "" {
		return fmt.Errorf("user id required")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = domain.StatusCreated
	}
	msgs, err := json.Marshal(nonNilMessages(p.Messages))
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	const q = `
insert into projects (id, user_id, title, description, template, messages, status, source_pdf_path, arxiv_id)
values ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
returning created_at, updated_at;
`
	err = r.db.QueryRow(ctx, q, p.ID, p.UserID, p.Title, p.Description, p.Template, msgs,
		string(p.Status), p.SourcePDFPath, p.ArxivID).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// Get loads a project owned by userID.
func (r *ProjectRepository) Get(ctx context.Context, userID, id string) (*domain.Project, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrProjectNotFound
	}
	q := `select ` + projectColumns + ` from projects where id = $1::uuid and user_id = $2`
	p, err := scanProject(r.db.QueryRow(ctx, q, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, err
	}
	return p, nil
}

// List returns the user's projects, newest first.
func (r *ProjectRepository) List(ctx context.Context, userID string, limit, offset int) ([]domain.Project, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `select ` + projectColumns + ` from projects where user_id = $1 order by created_at desc limit $2 offset $3`
	return r.queryProjects(ctx, q, userID, limit, offset)
}

// ListStale returns in-flight projects not updated since before.
func (r *ProjectRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Project, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `select ` + projectColumns + ` from projects
where status not in ('ready', 'failed') and updated_at < $1
order by updated_at asc limit $2`
	return r.queryProjects(ctx, q, before, limit)
}

// UpdateStatus records the step a project is entering.
func (r *ProjectRepository) UpdateStatus(ctx context.Context, userID, id string, status domain.Status) error {
	const q = `
update projects set status = $3, updated_at = now()
where id = $1::uuid and user_id = $2;
`
	return r.execOne(ctx, q, id, userID, string(status))
}

// Restart moves a ready project back to created for a continuation. It
// reports domain.ErrProjectBusy when the project is no longer ready.
func (r *ProjectRepository) Restart(ctx context.Context, userID, id string) error {
	const q = `
update projects set status = 'created', error_message = null, updated_at = now()
where id = $1::uuid and user_id = $2 and status = 'ready';
`
	tag, err := r.db.Exec(ctx, q, id, userID)
	if err != nil {
		return fmt.Errorf("restart project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProjectBusy
	}
	return nil
}

// AttachSource records where the paper came from once it has been resolved.
func (r *ProjectRepository) AttachSource(ctx context.Context, userID, id, title string, sourcePDFPath, arxivID *string) error {
	const q = `
update projects
set title = coalesce(nullif($3, ''), title), source_pdf_path = $4, arxiv_id = $5, updated_at = now()
where id = $1::uuid and user_id = $2;
`
	return r.execOne(ctx, q, id, userID, title, sourcePDFPath, arxivID)
}

// SaveFragment stores a freshly generated fragment and the conversation that produced it.
func (r *ProjectRepository) SaveFragment(ctx context.Context, userID, id string, f *domain.Fragment, msgs []domain.Message) error {
	fragment, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal fragment: %w", err)
	}
	history, err := json.Marshal(nonNilMessages(msgs))
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	const q = `
update projects
set fragment = $3, template = $4, messages = $5,
    title = coalesce(nullif($6, ''), title),
    description = coalesce(nullif($7, ''), description),
    updated_at = now()
where id = $1::uuid and user_id = $2;
`
	return r.execOne(ctx, q, id, userID, fragment, f.Template, history, f.Title, f.Description)
}

// Complete marks the project ready with its execution result.
func (r *ProjectRepository) Complete(ctx context.Context, userID, id string, result *domain.ExecutionResult, msgs []domain.Message) error {
	res, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	history, err := json.Marshal(nonNilMessages(msgs))
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	const q = `
update projects
set status = 'ready', result = $3, messages = $4, error_message = null, updated_at = now()
where id = $1::uuid and user_id = $2;
`
	return r.execOne(ctx, q, id, userID, res, history)
}

// Fail marks the project failed with a client-safe message and drops the
// result of any earlier run.
func (r *ProjectRepository) Fail(ctx context.Context, userID, id, message string) error {
	const q = `
update projects
set status = 'failed', error_message = $3, result = null, updated_at = now()
where id = $1::uuid and user_id = $2;
`
	return r.execOne(ctx, q, id, userID, message)
}

// Delete removes a project. It reports whether a row was deleted.
func (r *ProjectRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	const q = `delete from projects where id = $1::uuid and user_id = $2;`
	tag, err := r.db.Exec(ctx, q, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ProjectRepository) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

func (r *ProjectRepository) queryProjects(ctx context.Context, q string, args ...any) ([]domain.Project, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Project, 0, 16)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	var (
		p                          domain.Project
		status                     string
		fragment, result, messages []byte
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &p.Template, &fragment, &result, &messages,
		&status, &p.ErrorMessage, &p.SourcePDFPath, &p.ArxivID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = domain.Status(status)

	if present(fragment) {
		var f domain.Fragment
		if err := json.Unmarshal(fragment, &f); err != nil {
			return nil, fmt.Errorf("decode fragment of %s: %w", p.ID, err)
		}
		p.Fragment = &f
	}
	if present(result) {
		var res domain.ExecutionResult
		if err := json.Unmarshal(result, &res); err != nil {
			return nil, fmt.Errorf("decode result of %s: %w", p.ID, err)
		}
		p.Result = &res
	}
	if present(messages) {
		if err := json.Unmarshal(messages, &p.Messages); err != nil {
			return nil, fmt.Errorf("decode messages of %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func present(b []byte) bool {
	return len(b) > 0 && string(b) != "null"
}

func nonNilMessages(msgs []domain.Message) []domain.Message {
	if msgs == nil {
		return []domain.Message{}
	}
	return msgs
}
