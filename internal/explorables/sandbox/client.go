package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
)

// ErrSandboxNotFound is returned when the provider no longer knows a sandbox.
var ErrSandboxNotFound = errors.New("sandbox not found")

// Client talks to the sandbox provider REST API.
type Client struct {
	baseURL    string
	apiKey     string
	domain     string
	httpClient *http.Client
}

// NewClient creates a provider client. domain is the host suffix used for preview URLs.
func NewClient(baseURL, apiKey, domain string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		domain:  domain,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// Sandbox identifies a running sandbox instance.
type Sandbox struct {
	ID         string `json:"sandboxId"`
	TemplateID string `json:"templateId"`
}

type createSandboxRequest struct {
	TemplateID string            `json:"templateId"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	TimeoutMs  int64             `json:"timeoutMs,omitempty"`
}

// CommandResult is the outcome of a shell command.
type CommandResult struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Execution is the outcome of running code in the sandbox interpreter.
type Execution struct {
	Stdout  []string             `json:"stdout"`
	Stderr  []string             `json:"stderr"`
	Error   *domain.RuntimeError `json:"error"`
	Results []domain.CellResult  `json:"results"`
}

// Create starts a sandbox from templateID that lives for timeout.
func (c *Client) Create(ctx context.Context, templateID string, metadata map[string]string, timeout time.Duration) (*Sandbox, error) {
	var sbx Sandbox
	err := c.do(ctx, http.MethodPost, "/sandboxes", createSandboxRequest{
		TemplateID: templateID,
		Metadata:   metadata,
		TimeoutMs:  timeout.Milliseconds(),
	}, &sbx)
	if err != nil {
		return nil, err
	}
	if sbx.ID == "" {
		return nil, fmt.Errorf("sandbox provider returned no sandbox id")
	}
	return &sbx, nil
}

// Connect attaches to an existing sandbox and extends its lifetime.
func (c *Client) Connect(ctx context.Context, sandboxID string, timeout time.Duration) (*Sandbox, error) {
	q := url.Values{}
	if timeout > 0 {
		q.Set("timeoutMs", fmt.Sprint(timeout.Milliseconds()))
	}
	path := "/sandboxes/" + url.PathEscape(sandboxID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var sbx Sandbox
	if err := c.do(ctx, http.MethodGet, path, nil, &sbx); err != nil {
		return nil, err
	}
	if sbx.ID == "" {
		sbx.ID = sandboxID
	}
	return &sbx, nil
}

func (c *Client) RunCommand(ctx context.Context, sandboxID, cmd string) (*CommandResult, error) {
	var res CommandResult
	err := c.do(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(sandboxID)+"/commands", map[string]string{"cmd": cmd}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) WriteFile(ctx context.Context, sandboxID, path, content string) error {
	body := map[string]string{"path": path, "content": content}
	return c.do(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(sandboxID)+"/files", body, nil)
}

func (c *Client) RunCode(ctx context.Context, sandboxID, code string) (*Execution, error) {
	var exec Execution
	err := c.do(ctx, http.MethodPost, "/sandboxes/"+url.PathEscape(sandboxID)+"/code/execute", map[string]string{"code": code}, &exec)
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

func (c *Client) Kill(ctx context.Context, sandboxID string) error {
	err := c.do(ctx, http.MethodDelete, "/sandboxes/"+url.PathEscape(sandboxID), nil, nil)
	if errors.Is(err, ErrSandboxNotFound) {
		return nil
	}
	return err
}

// HostURL is the public URL of port inside the sandbox.
func (c *Client) HostURL(sandboxID string, port int) string {
	return fmt.Sprintf("https://%d-%s.%s", port, sandboxID, c.domain)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call sandbox provider: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrSandboxNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sandbox provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
