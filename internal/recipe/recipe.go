// Package recipe manages spack package recipes inside a session's private
// repository: creating them (by copy from the global repo or by template
// generation), reading, writing with validation, and deleting.
package recipe

// Info is recipe file metadata, cheap to produce without reading content.
type Info struct {
	PackageName string   `json:"package_name"`
	FilePath    string   `json:"file_path"`
	Exists      bool     `json:"exists"`
	Size        int64    `json:"size,omitempty"`
	Modified    *float64 `json:"modified,omitempty"`
}

// Content is a recipe file with its full text.
type Content struct {
	PackageName string  `json:"package_name"`
	Content     string  `json:"content"`
	FilePath    string  `json:"file_path"`
	Size        int64   `json:"size"`
	Modified    float64 `json:"modified"`
}

// ValidationResult reports heuristic checks over recipe content. Errors make
// the recipe invalid; warnings are advisory.
type ValidationResult struct {
	PackageName string   `json:"package_name"`
	IsValid     bool     `json:"is_valid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	SyntaxValid bool     `json:"syntax_valid"`
}

// CreateAction describes how Create satisfied the request.
type CreateAction string

const (
	ActionExists    CreateAction = "exists"
	ActionCopied    CreateAction = "copied"
	ActionGenerated CreateAction = "generated_and_cleaned"
)

// CreateResult reports the outcome of a create-or-copy request.
type CreateResult struct {
	PackageName string       `json:"package_name"`
	Action      CreateAction `json:"action"`
	FilePath    string       `json:"file_path"`
	Size        int64        `json:"size,omitempty"`
	CopiedFiles []string     `json:"copied_files,omitempty"`
	PatchFiles  []string     `json:"patch_files,omitempty"`
	ToolOutput  string       `json:"tool_output,omitempty"`
}
