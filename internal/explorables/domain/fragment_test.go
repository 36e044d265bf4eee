package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentCodeAcceptsStringOrFiles(t *testing.T) {
	var single Fragment
	require.NoError(t, json.Unmarshal([]byte(`{"template":"html-developer","file_path":"index.html","code":"<p>hi</p>"}`), &single))
	assert.Equal(t, CodeSingleFile, single.Code.Kind)
	assert.Equal(t, []File{{Path: "index.html", Content: "<p>hi</p>"}}, single.Files())

	var multi Fragment
	require.NoError(t, json.Unmarshal([]byte(`{"template":"t","code":[{"file_path":"a.js","file_content":"1"},{"file_path":"b.js","file_content":"2"}]}`), &multi))
	assert.Equal(t, CodeMultiFile, multi.Code.Kind)
	assert.Len(t, multi.Files(), 2)
	assert.Equal(t, "// a.js\n1\n\n// b.js\n2", multi.CodeText())

	out, err := json.Marshal(multi.Code)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"file_path":"a.js","file_content":"1"},{"file_path":"b.js","file_content":"2"}]`, string(out))

	var bad Fragment
	assert.Error(t, json.Unmarshal([]byte(`{"code":42}`), &bad))
}

func TestFragmentValidate(t *testing.T) {
	valid := func() *Fragment {
		return &Fragment{Template: "html-developer", FilePath: "index.html", Code: SingleFileCode("<p>")}
	}
	assert.NoError(t, valid().Validate())

	f := valid()
	f.HasAdditionalDependencies = true
	assert.Error(t, f.Validate())
	f.InstallDependenciesCommand = "npm i three"
	assert.NoError(t, f.Validate())

	f = valid()
	f.FilePath = ""
	assert.Error(t, f.Validate())

	f = valid()
	f.Code = MultiFileCode(File{Path: "", Content: "x"})
	assert.Error(t, f.Validate())

	f = valid()
	f.Template = ""
	assert.Error(t, f.Validate())
}

func TestServePort(t *testing.T) {
	f := &Fragment{}
	assert.Equal(t, 80, f.ServePort())
	p := 3000
	f.Port = &p
	assert.Equal(t, 3000, f.ServePort())
}
