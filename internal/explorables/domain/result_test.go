package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultShapes(t *testing.T) {
	web := NewWebResult("sbx1", "explorable-research-developer", "https://5173-sbx1.example.com")
	out, err := json.Marshal(web)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sbxId":"sbx1","template":"explorable-research-developer","url":"https://5173-sbx1.example.com"}`, string(out))
	assert.Equal(t, ResultWeb, web.Kind())

	interp := NewInterpreterResult("sbx2", "code-interpreter-v1", nil, nil, nil, nil)
	out, err = json.Marshal(interp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sbxId":"sbx2","template":"code-interpreter-v1","stdout":[],"stderr":[],"cellResults":[]}`, string(out))
	assert.Equal(t, ResultInterpreter, interp.Kind())

	var fields map[string]any
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.NotContains(t, fields, "url")
}

func TestProjectRecord(t *testing.T) {
	msg := "boom"
	p := &Project{
		ID:           "p1",
		Status:       StatusReady,
		Template:     "html-developer",
		Fragment:     &Fragment{Code: SingleFileCode("<p>")},
		Result:       NewWebResult("sbx", "html-developer", "https://80-sbx.example.com"),
		ErrorMessage: &msg,
	}
	rec := p.Record()
	assert.Equal(t, "https://80-sbx.example.com", rec.PreviewURL)
	assert.Equal(t, "sbx", rec.SandboxID)
	assert.Equal(t, "<p>", rec.Code)
}
