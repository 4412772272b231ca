package handlers

import (
	"context"
	"net/http"

	"github.com/hgi-dev/spackbridge/internal/foundation/errors"
	"github.com/hgi-dev/spackbridge/internal/recipe"
	"github.com/hgi-dev/spackbridge/internal/server/responses"
)

// RecipeStore defines the recipe manager operations the handlers need.
type RecipeStore interface {
	Create(ctx context.Context, sessionID, name string) (*recipe.CreateResult, error)
	List(sessionID string) ([]recipe.Info, error)
	Read(sessionID, name string) (*recipe.Content, error)
	Write(sessionID, name, content string) (*recipe.ValidationResult, error)
	Delete(sessionID, name string) error
	ValidateContent(sessionID, name, content string) (*recipe.ValidationResult, error)
	Stat(sessionID, name string) (*recipe.Info, error)
}

// RecipeHandlers serves the per-session recipe endpoints.
type RecipeHandlers struct {
	recipes      RecipeStore
	gate         SessionGate
	errorAdapter *errors.HTTPErrorAdapter
}

// NewRecipeHandlers creates a recipe handlers instance. gate may be nil.
func NewRecipeHandlers(recipes RecipeStore, gate SessionGate, adapter *errors.HTTPErrorAdapter) *RecipeHandlers {
	return &RecipeHandlers{recipes: recipes, gate: gateOrNoop(gate), errorAdapter: adapter}
}

// HandleCreate handles POST /api/v1/sessions/{id}/recipes/{name}, creating
// the recipe by copy from the global repo or by template generation.
func (h *RecipeHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	unlock := lockSession(h.gate, r.PathValue("id"))
	defer unlock()

	result, err := h.recipes.Create(r.Context(), r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, result); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write recipe create response").Build())
	}
}

// HandleList handles GET /api/v1/sessions/{id}/recipes.
func (h *RecipeHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	touchSession(h.gate, id)
	infos, err := h.recipes.List(id)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := &responses.RecipeListResponse{SessionID: id, Recipes: infos, Total: len(infos)}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write recipe list response").Build())
	}
}

// HandleRead handles GET /api/v1/sessions/{id}/recipes/{name}.
func (h *RecipeHandlers) HandleRead(w http.ResponseWriter, r *http.Request) {
	touchSession(h.gate, r.PathValue("id"))
	content, err := h.recipes.Read(r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, content); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write recipe response").Build())
	}
}

type recipeContentRequest struct {
	Content string `json:"content"`
}

// HandleWrite handles PUT /api/v1/sessions/{id}/recipes/{name}. The content
// is validated first; syntactically broken recipes are rejected.
func (h *RecipeHandlers) HandleWrite(w http.ResponseWriter, r *http.Request) {
	var req recipeContentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if req.Content == "" {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("content is required").Build())
		return
	}

	unlock := lockSession(h.gate, r.PathValue("id"))
	defer unlock()

	result, err := h.recipes.Write(r.PathValue("id"), r.PathValue("name"), req.Content)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, result); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write recipe write response").Build())
	}
}

// HandleDelete handles DELETE /api/v1/sessions/{id}/recipes/{name}.
func (h *RecipeHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	unlock := lockSession(h.gate, r.PathValue("id"))
	defer unlock()

	name := r.PathValue("name")
	if err := h.recipes.Delete(r.PathValue("id"), name); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := &responses.OperationResponse{
		Success: true,
		Message: "Recipe deleted",
		Details: map[string]any{"package_name": name},
	}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write recipe delete response").Build())
	}
}

// HandleValidate handles POST /api/v1/sessions/{id}/recipes/{name}/validate.
// Validation never writes anything.
func (h *RecipeHandlers) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req recipeContentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	touchSession(h.gate, r.PathValue("id"))
	result, err := h.recipes.ValidateContent(r.PathValue("id"), r.PathValue("name"), req.Content)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, result); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write validation response").Build())
	}
}

// HandleInfo handles GET /api/v1/sessions/{id}/recipes/{name}/info.
func (h *RecipeHandlers) HandleInfo(w http.ResponseWriter, r *http.Request) {
	touchSession(h.gate, r.PathValue("id"))
	info, err := h.recipes.Stat(r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, info); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write recipe info response").Build())
	}
}
