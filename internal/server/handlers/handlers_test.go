package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgi-dev/spackbridge/internal/foundation/errors"
	"github.com/hgi-dev/spackbridge/internal/recipe"
	"github.com/hgi-dev/spackbridge/internal/session"
	"github.com/hgi-dev/spackbridge/internal/spack"
)

func testAdapter() *errors.HTTPErrorAdapter {
	return errors.NewHTTPErrorAdapter(slog.Default())
}

// trackingGate is a SessionGate with real per-session mutexes plus a record
// of every touch, so tests can observe both halves of the contract.
type trackingGate struct {
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	touched []string
}

func newTrackingGate() *trackingGate {
	return &trackingGate{locks: map[string]*sync.Mutex{}}
}

func (g *trackingGate) Touch(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.touched = append(g.touched, id)
}

func (g *trackingGate) Lock(id string) func() {
	g.mu.Lock()
	l, ok := g.locks[id]
	if !ok {
		l = &sync.Mutex{}
		g.locks[id] = l
	}
	g.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (g *trackingGate) touchedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.touched...)
}

type fakeSpackService struct {
	listResult []string
	descriptor *spack.PackageDescriptor
	versions   []spack.VersionRef
	install    *spack.OperationResult
	err        error

	lastSession string
	lastName    string
	lastLimit   int
}

func (f *fakeSpackService) List(_ context.Context, sessionID, query string, limit int) ([]string, error) {
	f.lastSession, f.lastName, f.lastLimit = sessionID, query, limit
	return f.listResult, f.err
}

func (f *fakeSpackService) Info(_ context.Context, sessionID, name, _ string) (*spack.PackageDescriptor, error) {
	f.lastSession, f.lastName = sessionID, name
	return f.descriptor, f.err
}

func (f *fakeSpackService) Versions(_ context.Context, sessionID, name string) ([]spack.VersionRef, error) {
	f.lastSession, f.lastName = sessionID, name
	return f.versions, f.err
}

func (f *fakeSpackService) Checksum(_ context.Context, sessionID, name, _ string) ([]spack.VersionRef, error) {
	f.lastSession, f.lastName = sessionID, name
	return f.versions, f.err
}

func (f *fakeSpackService) Install(_ context.Context, sessionID, name, _ string, _ []string) (*spack.OperationResult, error) {
	f.lastSession, f.lastName = sessionID, name
	return f.install, f.err
}

func (f *fakeSpackService) Uninstall(_ context.Context, sessionID, name, _ string, _ bool) (*spack.OperationResult, error) {
	f.lastSession, f.lastName = sessionID, name
	return f.install, f.err
}

func (f *fakeSpackService) CreateRecipe(_ context.Context, sessionID, name, _ string) (spack.ExecutionResult, error) {
	f.lastSession, f.lastName = sessionID, name
	return spack.ExecutionResult{Success: true}, f.err
}

func TestHandleList(t *testing.T) {
	svc := &fakeSpackService{listResult: []string{"zlib", "zstd"}}
	h := NewSpackHandlers(svc, nil, testAdapter())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/packages?session_id=s1&query=z&limit=10", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Packages []string `json:"packages"`
		Total    int      `json:"total"`
		Query    string   `json:"query"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"zlib", "zstd"}, body.Packages)
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, "z", body.Query)
	assert.Equal(t, "s1", svc.lastSession)
	assert.Equal(t, 10, svc.lastLimit)
}

func TestHandleListRejectsBadLimit(t *testing.T) {
	h := NewSpackHandlers(&fakeSpackService{}, nil, testAdapter())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/packages?limit=nope", nil)
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleInfoUsesPathValue(t *testing.T) {
	svc := &fakeSpackService{descriptor: &spack.PackageDescriptor{Name: "zlib"}}
	h := NewSpackHandlers(svc, nil, testAdapter())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/packages/{name}", h.HandleInfo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/packages/zlib?session_id=s1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "zlib", svc.lastName)
	assert.Contains(t, rec.Body.String(), `"zlib"`)
}

func TestHandleInstallValidatesPackageName(t *testing.T) {
	h := NewSpackHandlers(&fakeSpackService{}, nil, testAdapter())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/install", strings.NewReader(`{"session_id":"s1"}`))
	rec := httptest.NewRecorder()
	h.HandleInstall(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleInstallReturnsResult(t *testing.T) {
	svc := &fakeSpackService{install: &spack.OperationResult{Success: true, Message: "Successfully installed zlib"}}
	h := NewSpackHandlers(svc, nil, testAdapter())

	body := `{"session_id":"s1","package_name":"zlib","version":"1.3","variants":["+shared"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/install", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleInstall(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Successfully installed zlib")
	assert.Equal(t, "zlib", svc.lastName)
}

func TestHandleInstallRejectsUnknownFields(t *testing.T) {
	h := NewSpackHandlers(&fakeSpackService{}, nil, testAdapter())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/install", strings.NewReader(`{"pkg":"zlib"}`))
	rec := httptest.NewRecorder()
	h.HandleInstall(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleErrorCategoryMapsToStatus(t *testing.T) {
	svc := &fakeSpackService{err: errors.NotFoundError("package not found").Build()}
	h := NewSpackHandlers(svc, nil, testAdapter())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/packages/{name}/versions", h.HandleVersions)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/packages/ghost/versions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// slowInstallService holds each install open long enough that overlapping
// requests would be visible as a concurrency level above one.
type slowInstallService struct {
	fakeSpackService

	mu      sync.Mutex
	active  int
	maxSeen int
}

func (s *slowInstallService) Install(_ context.Context, _, _, _ string, _ []string) (*spack.OperationResult, error) {
	s.mu.Lock()
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	s.mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return &spack.OperationResult{Success: true}, nil
}

func TestConcurrentInstallsSerializePerSession(t *testing.T) {
	svc := &slowInstallService{}
	h := NewSpackHandlers(svc, newTrackingGate(), testAdapter())

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := `{"session_id":"s1","package_name":"zlib"}`
			rec := httptest.NewRecorder()
			h.HandleInstall(rec, httptest.NewRequest(http.MethodPost, "/api/v1/install", strings.NewReader(body)))
			assert.Equal(t, http.StatusOK, rec.Code)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, svc.maxSeen, "two installs against the same session must not overlap")
}

func TestCommandsTouchSession(t *testing.T) {
	gate := newTrackingGate()
	h := NewSpackHandlers(&fakeSpackService{}, gate, testAdapter())

	rec := httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest(http.MethodGet, "/api/v1/packages?session_id=s1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleInstall(rec, httptest.NewRequest(http.MethodPost, "/api/v1/install", strings.NewReader(`{"session_id":"s1","package_name":"zlib"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"s1", "s1"}, gate.touchedIDs())
}

func TestGlobalCommandsSkipGate(t *testing.T) {
	gate := newTrackingGate()
	h := NewSpackHandlers(&fakeSpackService{}, gate, testAdapter())

	rec := httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest(http.MethodGet, "/api/v1/packages", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, gate.touchedIDs())
}

func TestRecipeWriteTouchesSession(t *testing.T) {
	gate := newTrackingGate()
	h := NewRecipeHandlers(&fakeRecipeStore{content: map[string]string{}}, gate, testAdapter())

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/v1/sessions/{id}/recipes/{name}", h.HandleWrite)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/sessions/s1/recipes/zlib",
		strings.NewReader(`{"content":"class Zlib(Package):\n    pass\n"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"s1"}, gate.touchedIDs())
}

type fakeSessionStore struct {
	contexts map[string]*session.Context
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{contexts: map[string]*session.Context{}}
}

func (f *fakeSessionStore) Create(namespace string) (*session.Context, error) {
	sc := &session.Context{ID: "sess-1", Namespace: namespace, CreatedAt: time.Now(), LastUsed: time.Now()}
	f.contexts[sc.ID] = sc
	return sc, nil
}

func (f *fakeSessionStore) Resolve(id string) (*session.Context, error) {
	sc, ok := f.contexts[id]
	if !ok {
		return nil, errors.SessionError("session not found").Build()
	}
	return sc, nil
}

func (f *fakeSessionStore) List() ([]*session.Context, error) {
	out := make([]*session.Context, 0, len(f.contexts))
	for _, sc := range f.contexts {
		out = append(out, sc)
	}
	return out, nil
}

func (f *fakeSessionStore) Delete(id string) error {
	if _, ok := f.contexts[id]; !ok {
		return errors.SessionError("session not found").Build()
	}
	delete(f.contexts, id)
	return nil
}

func (f *fakeSessionStore) Files(id string) ([]session.FileEntry, []session.FileEntry, error) {
	if _, err := f.Resolve(id); err != nil {
		return nil, nil, err
	}
	return []session.FileEntry{{Name: "zlib", Type: "directory"}}, nil, nil
}

func sessionMux(h *SessionHandlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sessions", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/sessions", h.HandleList)
	mux.HandleFunc("GET /api/v1/sessions/{id}", h.HandleGet)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.HandleDelete)
	mux.HandleFunc("GET /api/v1/sessions/{id}/files", h.HandleFiles)
	return mux
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	store := newFakeSessionStore()
	mux := sessionMux(NewSessionHandlers(store, nil, testAdapter()))

	// Create with a namespace.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"namespace":"team-a"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "team-a")

	// Get it back.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sess-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// Files listing.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sess-1/files", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "zlib")

	// Delete, then resolving 404s at the session category status.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/sess-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sess-1", nil))
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestSessionCreateWithoutBody(t *testing.T) {
	mux := sessionMux(NewSessionHandlers(newFakeSessionStore(), nil, testAdapter()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

type fakeRecipeStore struct {
	content map[string]string
}

func (f *fakeRecipeStore) Create(_ context.Context, _, name string) (*recipe.CreateResult, error) {
	return &recipe.CreateResult{PackageName: name, Action: recipe.ActionCopied}, nil
}

func (f *fakeRecipeStore) List(string) ([]recipe.Info, error) {
	out := make([]recipe.Info, 0, len(f.content))
	for name := range f.content {
		out = append(out, recipe.Info{PackageName: name, Exists: true})
	}
	return out, nil
}

func (f *fakeRecipeStore) Read(_, name string) (*recipe.Content, error) {
	text, ok := f.content[name]
	if !ok {
		return nil, errors.NotFoundError("no recipe found").Build()
	}
	return &recipe.Content{PackageName: name, Content: text}, nil
}

func (f *fakeRecipeStore) Write(_, name, content string) (*recipe.ValidationResult, error) {
	f.content[name] = content
	return &recipe.ValidationResult{PackageName: name, IsValid: true, SyntaxValid: true}, nil
}

func (f *fakeRecipeStore) Delete(_, name string) error {
	delete(f.content, name)
	return nil
}

func (f *fakeRecipeStore) ValidateContent(_, name, _ string) (*recipe.ValidationResult, error) {
	return &recipe.ValidationResult{PackageName: name, IsValid: true, SyntaxValid: true}, nil
}

func (f *fakeRecipeStore) Stat(_, name string) (*recipe.Info, error) {
	_, ok := f.content[name]
	return &recipe.Info{PackageName: name, Exists: ok}, nil
}

func TestRecipeReadWriteOverHTTP(t *testing.T) {
	store := &fakeRecipeStore{content: map[string]string{}}
	h := NewRecipeHandlers(store, nil, testAdapter())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/sessions/{id}/recipes/{name}", h.HandleRead)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/recipes/{name}", h.HandleWrite)

	body := `{"content":"class Zlib(Package):\n    pass\n"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/sessions/s1/recipes/zlib", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/recipes/zlib", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "class Zlib(Package)")
}

func TestRecipeWriteRequiresContent(t *testing.T) {
	h := NewRecipeHandlers(&fakeRecipeStore{content: map[string]string{}}, nil, testAdapter())

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/v1/sessions/{id}/recipes/{name}", h.HandleWrite)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/sessions/s1/recipes/zlib", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type scriptedStreamer struct {
	events []spack.ProgressEvent
	err    error
}

func (s *scriptedStreamer) InstallStream(ctx context.Context, _, _, _ string, _ []string) (<-chan spack.ProgressEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan spack.ProgressEvent, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func TestInstallStreamFramesSSE(t *testing.T) {
	success := true
	streamer := &scriptedStreamer{events: []spack.ProgressEvent{
		{Type: spack.EventStart, Data: "Starting installation of zlib", Package: "zlib"},
		{Type: spack.EventOutput, Data: "==> Installing zlib"},
		{Type: spack.EventComplete, Data: "Installation completed successfully", Success: &success},
	}}
	h := NewStreamHandlers(streamer, nil, nil, nil, testAdapter())

	srv := httptest.NewServer(http.HandlerFunc(h.HandleInstallStream))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?package_name=zlib&session_id=s1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var frames []spack.ProgressEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev spack.ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		frames = append(frames, ev)
	}

	require.Len(t, frames, 3)
	assert.Equal(t, spack.EventStart, frames[0].Type)
	assert.Equal(t, spack.EventComplete, frames[2].Type)
	require.NotNil(t, frames[2].Success)
	assert.True(t, *frames[2].Success)
}

func TestInstallStreamRequiresPackageName(t *testing.T) {
	h := NewStreamHandlers(&scriptedStreamer{}, nil, nil, nil, testAdapter())

	rec := httptest.NewRecorder()
	h.HandleInstallStream(rec, httptest.NewRequest(http.MethodGet, "/api/v1/install/stream", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInstallStreamSessionErrorBeforeStreaming(t *testing.T) {
	streamer := &scriptedStreamer{err: errors.SessionError("session not found").Build()}
	h := NewStreamHandlers(streamer, nil, nil, nil, testAdapter())

	rec := httptest.NewRecorder()
	h.HandleInstallStream(rec, httptest.NewRequest(http.MethodGet, "/api/v1/install/stream?package_name=zlib", nil))

	assert.NotEqual(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

type staticRuntime struct {
	start time.Time
}

func (s staticRuntime) StartTime() time.Time    { return s.start }
func (s staticRuntime) ActiveSessions() int     { return 3 }
func (s staticRuntime) SpackExecutable() string { return "/usr/bin/spack" }

func TestHealthAndStatus(t *testing.T) {
	h := NewMonitoringHandlers(staticRuntime{start: time.Now().Add(-time.Minute)}, testAdapter())

	rec := httptest.NewRecorder()
	h.HandleHealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		ActiveSessions int     `json:"active_sessions"`
		SpackPath      string  `json:"spack_path"`
		Uptime         float64 `json:"uptime"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 3, status.ActiveSessions)
	assert.Equal(t, "/usr/bin/spack", status.SpackPath)
	assert.Greater(t, status.Uptime, 0.0)
}
