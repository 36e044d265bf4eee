package domain

import "encoding/json"

// ResultKind discriminates execution results by template runtime.
type ResultKind string

const (
	ResultWeb         ResultKind = "web"
	ResultInterpreter ResultKind = "interpreter"
)

// RuntimeError is an error raised by interpreted code inside the sandbox.
type RuntimeError struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Traceback string `json:"traceback"`
}

// CellResult is one rich output produced by an interpreter cell.
type CellResult struct {
	Text string            `json:"text,omitempty"`
	Data map[string]string `json:"data,omitempty"`
}

// ExecutionResult is the outcome of deploying a fragment. Web results carry URL;
// interpreter results carry Stdout, Stderr, RuntimeError and CellResults. The
// fields of the other shape are always empty.
type ExecutionResult struct {
	SandboxID    string        `json:"sbxId"`
	Template     string        `json:"template"`
	URL          string        `json:"url,omitempty"`
	Stdout       []string      `json:"stdout,omitempty"`
	Stderr       []string      `json:"stderr,omitempty"`
	RuntimeError *RuntimeError `json:"runtimeError,omitempty"`
	CellResults  []CellResult  `json:"cellResults,omitempty"`
}

// NewWebResult builds the result for a served template.
func NewWebResult(sandboxID, template, url string) *ExecutionResult {
	return &ExecutionResult{SandboxID: sandboxID, Template: template, URL: url}
}

// NewInterpreterResult builds the result for an interpreter template. Nil
// slices are normalized so the interpreter shape is always recognizable.
func NewInterpreterResult(sandboxID, template string, stdout, stderr []string, rtErr *RuntimeError, cells []CellResult) *ExecutionResult {
	if stdout == nil {
		stdout = []string{}
	}
	if stderr == nil {
		stderr = []string{}
	}
	if cells == nil {
		cells = []CellResult{}
	}
	return &ExecutionResult{
		SandboxID:    sandboxID,
		Template:     template,
		Stdout:       stdout,
		Stderr:       stderr,
		RuntimeError: rtErr,
		CellResults:  cells,
	}
}

// Kind reports which result shape applies.
func (r *ExecutionResult) Kind() ResultKind {
	if r.URL != "" {
		return ResultWeb
	}
	return ResultInterpreter
}

type webResultJSON struct {
	SandboxID string `json:"sbxId"`
	Template  string `json:"template"`
	URL       string `json:"url"`
}

type interpreterResultJSON struct {
	SandboxID    string        `json:"sbxId"`
	Template     string        `json:"template"`
	Stdout       []string      `json:"stdout"`
	Stderr       []string      `json:"stderr"`
	RuntimeError *RuntimeError `json:"runtimeError,omitempty"`
	CellResults  []CellResult  `json:"cellResults"`
}

// MarshalJSON emits exactly one of the two result shapes.
func (r ExecutionResult) MarshalJSON() ([]byte, error) {
	if r.Kind() == ResultWeb {
		return json.Marshal(webResultJSON{SandboxID: r.SandboxID, Template: r.Template, URL: r.URL})
	}
	n := NewInterpreterResult(r.SandboxID, r.Template, r.Stdout, r.Stderr, r.RuntimeError, r.CellResults)
	return json.Marshal(interpreterResultJSON{
		SandboxID:    n.SandboxID,
		Template:     n.Template,
		Stdout:       n.Stdout,
		Stderr:       n.Stderr,
		RuntimeError: n.RuntimeError,
		CellResults:  n.CellResults,
	})
}
