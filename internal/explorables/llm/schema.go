package llm

// FragmentSchema is the JSON schema the model must follow for a fragment.
func FragmentSchema() map[string]any {
	str := map[string]any{"type": "string"}
	file := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path":    map[string]any{"type": "string", "description": "Relative path of the file"},
			"file_content": map[string]any{"type": "string", "description": "Full content of the file"},
		},
		"required":             []string{"file_path", "file_content"},
		"additionalProperties": false,
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"commentary": map[string]any{
				"type":        "string",
				"description": "Short explanation of what was built and the steps taken",
			},
			"template":    map[string]any{"type": "string", "description": "Id of the template used"},
			"title":       map[string]any{"type": "string", "description": "Short title of the explorable"},
			"description": map[string]any{"type": "string", "description": "One sentence description"},
			"additional_dependencies": map[string]any{
				"type":  "array",
				"items": str,
			},
			"has_additional_dependencies": map[string]any{"type": "boolean"},
			"install_dependencies_command": map[string]any{
				"type":        "string",
				"description": "Command installing additional_dependencies, empty when none",
			},
			"port": map[string]any{
				"type":        []string{"integer", "null"},
				"description": "Port the app listens on, null when nothing is served",
			},
			"file_path": map[string]any{"type": "string", "description": "Entry file path"},
			"code": map[string]any{
				"anyOf": []any{
					map[string]any{"type": "string"},
					map[string]any{"type": "array", "items": file},
				},
			},
		},
		"required": []string{
			"commentary", "template", "title", "description",
			"additional_dependencies", "has_additional_dependencies",
			"install_dependencies_command", "port", "file_path", "code",
		},
		"additionalProperties": false,
	}
}
