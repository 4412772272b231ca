package recipe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgi-dev/spackbridge/internal/config"
	"github.com/hgi-dev/spackbridge/internal/foundation/errors"
	"github.com/hgi-dev/spackbridge/internal/session"
	"github.com/hgi-dev/spackbridge/internal/spack"
)

const validRecipe = `from spack.package import *


class Zlib(Package):
    """Compression library."""

    homepage = "https://zlib.net"
    url = "https://zlib.net/zlib-1.3.1.tar.gz"

    version("1.3.1", sha256="abc")
`

type fakeSessions struct {
	sc *session.Context
}

func (f fakeSessions) Resolve(id string) (*session.Context, error) {
	if f.sc == nil || id != f.sc.ID {
		return nil, errors.SessionError("session not found: " + id).Build()
	}
	return f.sc, nil
}

type fakeGenerator struct {
	writePath string
	content   string
	fail      bool
	called    bool
}

func (g *fakeGenerator) CreateRecipe(_ context.Context, _, _, _ string) (spack.ExecutionResult, error) {
	g.called = true
	if g.fail {
		return spack.ExecutionResult{ExitCode: 1, Stderr: "create failed"}, nil
	}
	if g.writePath != "" {
		if err := os.MkdirAll(filepath.Dir(g.writePath), 0o755); err != nil {
			return spack.ExecutionResult{ExitCode: 1, Stderr: err.Error()}, nil
		}
		if err := os.WriteFile(g.writePath, []byte(g.content), 0o644); err != nil {
			return spack.ExecutionResult{ExitCode: 1, Stderr: err.Error()}, nil
		}
	}
	return spack.ExecutionResult{Success: true, Stdout: "created template"}, nil
}

func testEnv(t *testing.T) (*session.Context, string) {
	t.Helper()
	dir := t.TempDir()
	sc := &session.Context{
		ID:          "11111111-2222-3333-4444-555555555555",
		Dir:         dir,
		PackagesDir: filepath.Join(dir, "packages"),
		RepoDir:     filepath.Join(dir, "spack-repo"),
	}
	require.NoError(t, os.MkdirAll(sc.PackagesDir, 0o755))
	require.NoError(t, os.MkdirAll(sc.RepoPackagesDir(), 0o755))

	global := t.TempDir()
	return sc, global
}

func seedGlobalPackage(t *testing.T, global, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(global, "packages", name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for fname, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fname), []byte(content), 0o644))
	}
}

func TestCreateReusesExistingSessionRecipe(t *testing.T) {
	sc, global := testEnv(t)
	m := NewManager(fakeSessions{sc}, global, &fakeGenerator{})

	dir := filepath.Join(sc.RepoPackagesDir(),"zlib")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.py"), []byte(validRecipe), 0o644))

	res, err := m.Create(context.Background(), sc.ID, "zlib")
	require.NoError(t, err)
	assert.Equal(t, ActionExists, res.Action)
}

func TestCreateCopiesFromGlobalRepo(t *testing.T) {
	sc, global := testEnv(t)
	seedGlobalPackage(t, global, "zlib", map[string]string{
		"package.py":   validRecipe,
		"fix-cve.patch": "--- a\n+++ b\n",
	})
	gen := &fakeGenerator{}
	m := NewManager(fakeSessions{sc}, global, gen)

	res, err := m.Create(context.Background(), sc.ID, "zlib")
	require.NoError(t, err)
	assert.Equal(t, ActionCopied, res.Action)
	assert.False(t, gen.called)
	assert.ElementsMatch(t, []string{"package.py", "fix-cve.patch"}, res.CopiedFiles)
	assert.Equal(t, []string{"fix-cve.patch"}, res.PatchFiles)

	copied, err := os.ReadFile(filepath.Join(sc.RepoPackagesDir(),"zlib", "package.py"))
	require.NoError(t, err)
	assert.Equal(t, validRecipe, string(copied))
}

func TestCreateGeneratesAndStripsBoilerplate(t *testing.T) {
	sc, global := testEnv(t)
	target := filepath.Join(sc.RepoPackagesDir(),"mytool", "package.py")
	gen := &fakeGenerator{
		writePath: target,
		content: "# ----------------------------------------------------------------------------\n" +
			"# If you submit this package back to Spack, please follow the instructions.\n" +
			"# ----------------------------------------------------------------------------\n" +
			"class Mytool(Package):\n    pass\n",
	}
	m := NewManager(fakeSessions{sc}, global, gen)

	res, err := m.Create(context.Background(), sc.ID, "mytool")
	require.NoError(t, err)
	assert.Equal(t, ActionGenerated, res.Action)
	assert.True(t, gen.called)

	cleaned, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.NotContains(t, string(cleaned), "----------")
	assert.Contains(t, string(cleaned), "class Mytool")
}

func TestCreateGeneratorFailure(t *testing.T) {
	sc, global := testEnv(t)
	m := NewManager(fakeSessions{sc}, global, &fakeGenerator{fail: true})

	_, err := m.Create(context.Background(), sc.ID, "mytool")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryExecution))
}

func TestCreateEmptyNameRejected(t *testing.T) {
	sc, global := testEnv(t)
	m := NewManager(fakeSessions{sc}, global, &fakeGenerator{})

	_, err := m.Create(context.Background(), sc.ID, "")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestWriteReadRoundTrip(t *testing.T) {
	sc, global := testEnv(t)
	m := NewManager(fakeSessions{sc}, global, &fakeGenerator{})

	validation, err := m.Write(sc.ID, "zlib", validRecipe)
	require.NoError(t, err)
	assert.True(t, validation.IsValid)
	assert.Empty(t, validation.Warnings)

	content, err := m.Read(sc.ID, "zlib")
	require.NoError(t, err)
	assert.Equal(t, validRecipe, content.Content)
	assert.Equal(t, filepath.Join("spack-repo", "packages", "zlib", "package.py"), content.FilePath)
}

func TestWriteRejectsBrokenSyntax(t *testing.T) {
	sc, global := testEnv(t)
	m := NewManager(fakeSessions{sc}, global, &fakeGenerator{})

	validation, err := m.Write(sc.ID, "zlib", "class Zlib(Package:\n    version(\n")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	require.NotNil(t, validation)
	assert.False(t, validation.SyntaxValid)

	_, err = m.Read(sc.ID, "zlib")
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestReadMissingRecipe(t *testing.T) {
	sc, global := testEnv(t)
	m := NewManager(fakeSessions{sc}, global, &fakeGenerator{})

	_, err := m.Read(sc.ID, "ghost")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestListRecipes(t *testing.T) {
	sc, global := testEnv(t)
	m := NewManager(fakeSessions{sc}, global, &fakeGenerator{})

	_, err := m.Write(sc.ID, "zlib", validRecipe)
	require.NoError(t, err)
	// A package directory without a recipe file still shows up.
	require.NoError(t, os.MkdirAll(filepath.Join(sc.RepoPackagesDir(),"empty-pkg"), 0o755))

	infos, err := m.List(sc.ID)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "empty-pkg", infos[0].PackageName)
	assert.False(t, infos[0].Exists)
	assert.Equal(t, "zlib", infos[1].PackageName)
	assert.True(t, infos[1].Exists)
	assert.NotNil(t, infos[1].Modified)
}

func TestDeleteRemovesPackageDirectory(t *testing.T) {
	sc, global := testEnv(t)
	m := NewManager(fakeSessions{sc}, global, &fakeGenerator{})

	_, err := m.Write(sc.ID, "zlib", validRecipe)
	require.NoError(t, err)
	patch := filepath.Join(sc.RepoPackagesDir(),"zlib", "fix.patch")
	require.NoError(t, os.WriteFile(patch, []byte("diff"), 0o644))

	require.NoError(t, m.Delete(sc.ID, "zlib"))
	_, statErr := os.Stat(filepath.Join(sc.RepoPackagesDir(),"zlib"))
	assert.True(t, os.IsNotExist(statErr))

	err = m.Delete(sc.ID, "zlib")
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestStat(t *testing.T) {
	sc, global := testEnv(t)
	m := NewManager(fakeSessions{sc}, global, &fakeGenerator{})

	info, err := m.Stat(sc.ID, "zlib")
	require.NoError(t, err)
	assert.False(t, info.Exists)

	_, err = m.Write(sc.ID, "zlib", validRecipe)
	require.NoError(t, err)

	info, err = m.Stat(sc.ID, "zlib")
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Positive(t, info.Size)
}

func TestWriteLandsInsideSessionSpackRepo(t *testing.T) {
	cfg := config.SessionsConfig{
		Root:         t.TempDir(),
		DatabasePath: filepath.Join(t.TempDir(), "sessions.db"),
	}
	sessions, err := session.NewManager(cfg, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sessions.Close() })

	sc, err := sessions.Create("")
	require.NoError(t, err)

	m := NewManager(sessions, t.TempDir(), &fakeGenerator{})
	_, err = m.Write(sc.ID, "zlib", validRecipe)
	require.NoError(t, err)

	// The recipe must sit inside the repository repos.yaml points spack at,
	// not in the session's top-level packages directory.
	assert.FileExists(t, filepath.Join(sc.Dir, "spack-repo", "packages", "zlib", "package.py"))
	assert.NoFileExists(t, filepath.Join(sc.Dir, "packages", "zlib", "package.py"))
}

func TestUnknownSession(t *testing.T) {
	_, global := testEnv(t)
	m := NewManager(fakeSessions{}, global, &fakeGenerator{})

	_, err := m.List("deadbeef")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategorySession))
}
