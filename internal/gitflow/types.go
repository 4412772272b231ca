// Package gitflow drives the source-control side of recipe development:
// keeping the shared spack repository current, deriving version pins from
// upstream git history, and pushing session recipes out as pull-request
// branches.
package gitflow

// PullResult reports one repository update.
type PullResult struct {
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	RepositoryPath string   `json:"repository_path"`
	ChangesPulled  bool     `json:"changes_pulled"`
	CommitHash     string   `json:"commit_hash,omitempty"`
	FilesChanged   []string `json:"files_changed,omitempty"`
}

// CommitInfoResult reports an upstream HEAD inspection and the recipe
// rewrite derived from it.
type CommitInfoResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	CommitHash string `json:"commit_hash"`
	CommitDate string `json:"commit_date"`
	RepoURL    string `json:"repo_url"`
}

// PullRequestResult reports a branch-and-push workflow run. Commands is the
// human-readable transcript of the steps taken, failed step included.
type PullRequestResult struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message"`
	PackageName   string   `json:"package_name"`
	BranchName    string   `json:"branch_name,omitempty"`
	CommitMessage string   `json:"commit_message,omitempty"`
	Commands      []string `json:"git_commands,omitempty"`
	PRURL         string   `json:"pr_url,omitempty"`
}
