package domain

import "time"

// Project is the persisted record of one generation pipeline and its artifact.
type Project struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	Title         string           `json:"title"`
	Description   *string          `json:"description"`
	Template      string           `json:"template"`
	Fragment      *Fragment        `json:"fragment,omitempty"`
	Result        *ExecutionResult `json:"result,omitempty"`
	Messages      []Message        `json:"messages"`
	Status        Status           `json:"status"`
	ErrorMessage  *string          `json:"error_message"`
	SourcePDFPath *string          `json:"source_pdf_path,omitempty"`
	ArxivID       *string          `json:"arxiv_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// StatusRecord is the externally visible, pollable projection of a project.
type StatusRecord struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	Title        string    `json:"title"`
	Description  *string   `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	PreviewURL   string    `json:"preview_url,omitempty"`
	SandboxID    string    `json:"sandbox_id,omitempty"`
	Template     string    `json:"template"`
	Code         string    `json:"code,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
}

// Record projects p into its status record.
func (p *Project) Record() StatusRecord {
	rec := StatusRecord{
		ID:           p.ID,
		Status:       p.Status,
		Title:        p.Title,
		Description:  p.Description,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		Template:     p.Template,
		ErrorMessage: p.ErrorMessage,
	}
	if p.Fragment != nil {
		rec.Code = p.Fragment.CodeText()
	}
	if p.Result != nil {
		rec.SandboxID = p.Result.SandboxID
		rec.PreviewURL = p.Result.URL
	}
	return rec
}
