package handlers

import (
	"context"
	"net/http"

	"github.com/hgi-dev/spackbridge/internal/foundation/errors"
	"github.com/hgi-dev/spackbridge/internal/gitflow"
)

// GitWorkflow defines the git operations the handlers need.
type GitWorkflow interface {
	Pull(ctx context.Context) (*gitflow.PullResult, error)
	CommitInfo(ctx context.Context, sessionID, packageName, repoURL string) (*gitflow.CommitInfoResult, error)
	CreatePullRequest(ctx context.Context, sessionID, packageName, recipeName string) (*gitflow.PullRequestResult, error)
}

// GitHandlers serves the git workflow endpoints.
type GitHandlers struct {
	workflow     GitWorkflow
	gate         SessionGate
	errorAdapter *errors.HTTPErrorAdapter
}

// NewGitHandlers creates a git handlers instance. gate may be nil.
func NewGitHandlers(workflow GitWorkflow, gate SessionGate, adapter *errors.HTTPErrorAdapter) *GitHandlers {
	return &GitHandlers{workflow: workflow, gate: gateOrNoop(gate), errorAdapter: adapter}
}

// HandlePull handles POST /api/v1/git/pull, updating the shared spack
// repository from its origin.
func (h *GitHandlers) HandlePull(w http.ResponseWriter, r *http.Request) {
	result, err := h.workflow.Pull(r.Context())
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, result); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write pull response").Build())
	}
}

type commitInfoRequest struct {
	SessionID   string `json:"session_id"`
	PackageName string `json:"package_name"`
	RepoURL     string `json:"repo_url"`
}

// HandleCommitInfo handles POST /api/v1/git/commit-info. It clones the
// upstream repository, reads the HEAD commit, and rewrites the session
// recipe to pin that commit.
func (h *GitHandlers) HandleCommitInfo(w http.ResponseWriter, r *http.Request) {
	var req commitInfoRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if req.RepoURL == "" {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("repo_url is required").Build())
		return
	}

	unlock := lockSession(h.gate, req.SessionID)
	defer unlock()

	result, err := h.workflow.CommitInfo(r.Context(), req.SessionID, req.PackageName, req.RepoURL)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, result); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write commit info response").Build())
	}
}

type pullRequestRequest struct {
	SessionID   string `json:"session_id"`
	PackageName string `json:"package_name"`
	RecipeName  string `json:"recipe_name,omitempty"`
}

// HandleCreatePullRequest handles POST /api/v1/git/pull-request, pushing
// the session's recipe out on a new branch and returning the compare URL.
func (h *GitHandlers) HandleCreatePullRequest(w http.ResponseWriter, r *http.Request) {
	var req pullRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if req.PackageName == "" {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("package_name is required").Build())
		return
	}

	unlock := lockSession(h.gate, req.SessionID)
	defer unlock()

	result, err := h.workflow.CreatePullRequest(r.Context(), req.SessionID, req.PackageName, req.RecipeName)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, result); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write pull request response").Build())
	}
}
