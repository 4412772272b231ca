package handlers

import (
	"net/http"

	"github.com/hgi-dev/spackbridge/internal/foundation/errors"
	"github.com/hgi-dev/spackbridge/internal/server/responses"
	"github.com/hgi-dev/spackbridge/internal/session"
)

// SessionStore defines the session registry operations the handlers need.
type SessionStore interface {
	Create(namespace string) (*session.Context, error)
	Resolve(id string) (*session.Context, error)
	List() ([]*session.Context, error)
	Delete(id string) error
	Files(id string) (recipes []session.FileEntry, packages []session.FileEntry, err error)
}

// SessionHandlers serves the session lifecycle endpoints.
type SessionHandlers struct {
	sessions     SessionStore
	gate         SessionGate
	errorAdapter *errors.HTTPErrorAdapter
}

// NewSessionHandlers creates a session handlers instance. gate may be nil.
func NewSessionHandlers(sessions SessionStore, gate SessionGate, adapter *errors.HTTPErrorAdapter) *SessionHandlers {
	return &SessionHandlers{sessions: sessions, gate: gateOrNoop(gate), errorAdapter: adapter}
}

func sessionResponse(sc *session.Context) responses.SessionResponse {
	return responses.SessionResponse{
		SessionID: sc.ID,
		Namespace: sc.Namespace,
		Created:   sc.CreatedAt,
		LastUsed:  sc.LastUsed,
	}
}

type createSessionRequest struct {
	Namespace string `json:"namespace,omitempty"`
}

// HandleCreate handles POST /api/v1/sessions.
func (h *SessionHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.errorAdapter.WriteErrorResponse(w, r, err)
			return
		}
	}

	sc, err := h.sessions.Create(req.Namespace)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := sessionResponse(sc)
	if err := writeJSONPretty(w, r, http.StatusCreated, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write session response").Build())
	}
}

// HandleList handles GET /api/v1/sessions.
func (h *SessionHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	contexts, err := h.sessions.List()
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := &responses.SessionListResponse{Sessions: make([]responses.SessionResponse, 0, len(contexts))}
	for _, sc := range contexts {
		resp.Sessions = append(resp.Sessions, sessionResponse(sc))
	}
	resp.Total = len(resp.Sessions)
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write session list response").Build())
	}
}

// HandleGet handles GET /api/v1/sessions/{id}.
func (h *SessionHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	sc, err := h.sessions.Resolve(r.PathValue("id"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := sessionResponse(sc)
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write session response").Build())
	}
}

// HandleDelete handles DELETE /api/v1/sessions/{id}.
func (h *SessionHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.sessions.Delete(id); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := &responses.OperationResponse{
		Success: true,
		Message: "Session deleted",
		Details: map[string]any{"session_id": id},
	}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write delete response").Build())
	}
}

// HandleFiles handles GET /api/v1/sessions/{id}/files. Browsing the
// workspace counts as activity for idle accounting.
func (h *SessionHandlers) HandleFiles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	touchSession(h.gate, id)
	recipes, packages, err := h.sessions.Files(id)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := &responses.SessionFilesResponse{SessionID: id, Recipes: recipes, Packages: packages}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write session files response").Build())
	}
}
