package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hgi-dev/spackbridge/internal/foundation/errors"
	"github.com/hgi-dev/spackbridge/internal/server/responses"
	"github.com/hgi-dev/spackbridge/internal/spack"
)

// SpackService defines the spack operations the handlers need.
type SpackService interface {
	List(ctx context.Context, sessionID, query string, limit int) ([]string, error)
	Info(ctx context.Context, sessionID, name, version string) (*spack.PackageDescriptor, error)
	Versions(ctx context.Context, sessionID, name string) ([]spack.VersionRef, error)
	Checksum(ctx context.Context, sessionID, name, version string) ([]spack.VersionRef, error)
	Install(ctx context.Context, sessionID, name, version string, variants []string) (*spack.OperationResult, error)
	Uninstall(ctx context.Context, sessionID, name, version string, force bool) (*spack.OperationResult, error)
	CreateRecipe(ctx context.Context, sessionID, name, sourceURL string) (spack.ExecutionResult, error)
}

// SpackHandlers serves the spack package operations.
type SpackHandlers struct {
	service      SpackService
	gate         SessionGate
	errorAdapter *errors.HTTPErrorAdapter
}

// NewSpackHandlers creates a spack handlers instance. A nil gate disables
// session touch and lock bookkeeping.
func NewSpackHandlers(service SpackService, gate SessionGate, adapter *errors.HTTPErrorAdapter) *SpackHandlers {
	return &SpackHandlers{service: service, gate: gateOrNoop(gate), errorAdapter: adapter}
}

// HandleList handles GET /api/v1/packages. Query parameters: session_id,
// query, limit.
func (h *SpackHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			verr := errors.ValidationError("limit must be a positive integer").
				WithContext("limit", raw).
				Build()
			h.errorAdapter.WriteErrorResponse(w, r, verr)
			return
		}
		limit = n
	}

	touchSession(h.gate, q.Get("session_id"))
	packages, err := h.service.List(r.Context(), q.Get("session_id"), q.Get("query"), limit)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := &responses.PackageListResponse{
		Packages: packages,
		Total:    len(packages),
		Query:    q.Get("query"),
	}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write package list response").Build())
	}
}

// HandleInfo handles GET /api/v1/packages/{name}. Query parameters:
// session_id, version.
func (h *SpackHandlers) HandleInfo(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("package name is required").Build())
		return
	}

	touchSession(h.gate, r.URL.Query().Get("session_id"))
	desc, err := h.service.Info(r.Context(), r.URL.Query().Get("session_id"), name, r.URL.Query().Get("version"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, desc); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write package info response").Build())
	}
}

// HandleVersions handles GET /api/v1/packages/{name}/versions.
func (h *SpackHandlers) HandleVersions(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("package name is required").Build())
		return
	}

	touchSession(h.gate, r.URL.Query().Get("session_id"))
	versions, err := h.service.Versions(r.Context(), r.URL.Query().Get("session_id"), name)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := &responses.VersionsResponse{PackageName: name, Versions: versions}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write versions response").Build())
	}
}

type checksumRequest struct {
	SessionID   string `json:"session_id"`
	PackageName string `json:"package_name"`
	Version     string `json:"version,omitempty"`
}

// HandleChecksum handles POST /api/v1/packages/checksum.
func (h *SpackHandlers) HandleChecksum(w http.ResponseWriter, r *http.Request) {
	var req checksumRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if req.PackageName == "" {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("package_name is required").Build())
		return
	}

	touchSession(h.gate, req.SessionID)
	versions, err := h.service.Checksum(r.Context(), req.SessionID, req.PackageName, req.Version)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := &responses.VersionsResponse{PackageName: req.PackageName, Versions: versions}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write checksum response").Build())
	}
}

type installRequest struct {
	SessionID   string   `json:"session_id"`
	PackageName string   `json:"package_name"`
	Version     string   `json:"version,omitempty"`
	Variants    []string `json:"variants,omitempty"`
}

// HandleInstall handles POST /api/v1/install. The call blocks until the
// install finishes; see HandleInstallStream for incremental progress.
func (h *SpackHandlers) HandleInstall(w http.ResponseWriter, r *http.Request) {
	var req installRequest
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

	result, err := h.service.Install(r.Context(), req.SessionID, req.PackageName, req.Version, req.Variants)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, result); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write install response").Build())
	}
}

type uninstallRequest struct {
	SessionID   string `json:"session_id"`
	PackageName string `json:"package_name"`
	Version     string `json:"version,omitempty"`
	Force       bool   `json:"force,omitempty"`
}

// HandleUninstall handles POST /api/v1/uninstall.
func (h *SpackHandlers) HandleUninstall(w http.ResponseWriter, r *http.Request) {
	var req uninstallRequest
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

	result, err := h.service.Uninstall(r.Context(), req.SessionID, req.PackageName, req.Version, req.Force)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, result); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write uninstall response").Build())
	}
}

type createTemplateRequest struct {
	SessionID   string `json:"session_id"`
	PackageName string `json:"package_name,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
}

// HandleCreateTemplate handles POST /api/v1/packages/template, running
// spack create to scaffold a recipe inside the session.
func (h *SpackHandlers) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if req.PackageName == "" && req.SourceURL == "" {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("package_name or source_url must be provided").Build())
		return
	}

	unlock := lockSession(h.gate, req.SessionID)
	defer unlock()

	result, err := h.service.CreateRecipe(r.Context(), req.SessionID, req.PackageName, req.SourceURL)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, result); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write template response").Build())
	}
}
