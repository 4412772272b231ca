package gitflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgi-dev/spackbridge/internal/config"
	"github.com/hgi-dev/spackbridge/internal/foundation/errors"
	"github.com/hgi-dev/spackbridge/internal/recipe"
	"github.com/hgi-dev/spackbridge/internal/session"
)

type fakeSessions struct {
	sc *session.Context
}

func (f fakeSessions) Resolve(id string) (*session.Context, error) {
	if f.sc == nil || id != f.sc.ID {
		return nil, errors.SessionError("session not found: " + id).Build()
	}
	return f.sc, nil
}

// templateProvisioner writes a generated-style recipe when asked to create.
type templateProvisioner struct {
	packagesDir string
}

func (p templateProvisioner) Create(_ context.Context, _, name string) (*recipe.CreateResult, error) {
	dir := filepath.Join(p.packagesDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	content := "class " + strings.ToUpper(name[:1]) + name[1:] + "(Package):\n" +
		"    homepage = \"https://www.example.com\"\n" +
		"    url = \"https://www.example.com/x.tar.gz\"\n"
	if err := os.WriteFile(filepath.Join(dir, "package.py"), []byte(content), 0o644); err != nil {
		return nil, err
	}
	return &recipe.CreateResult{PackageName: name, Action: recipe.ActionGenerated}, nil
}

func testSession(t *testing.T) *session.Context {
	t.Helper()
	dir := t.TempDir()
	sc := &session.Context{
		ID:          "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		Dir:         dir,
		PackagesDir: filepath.Join(dir, "packages"),
		RepoDir:     filepath.Join(dir, "spack-repo"),
	}
	require.NoError(t, os.MkdirAll(sc.PackagesDir, 0o755))
	require.NoError(t, os.MkdirAll(sc.RepoPackagesDir(), 0o755))
	return sc
}

func commitAll(t *testing.T, repo *git.Repository, dir, msg string) {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(".")
	require.NoError(t, err)
	_, err = wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

// seedUpstream creates a working repository with one commit containing a
// packages directory.
func seedUpstream(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "packages"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "packages", "README.md"), []byte("packages\n"), 0o644))
	commitAll(t, repo, dir, "initial")
	return dir, repo
}

// seedBareOrigin clones the upstream into a bare repository usable as a push
// target.
func seedBareOrigin(t *testing.T, upstream string) string {
	t.Helper()
	bare := filepath.Join(t.TempDir(), "origin.git")
	_, err := git.PlainClone(bare, true, &git.CloneOptions{URL: upstream})
	require.NoError(t, err)
	return bare
}

func TestPullUpToDate(t *testing.T) {
	upstream, _ := seedUpstream(t)
	local := filepath.Join(t.TempDir(), "checkout")
	_, err := git.PlainClone(local, false, &git.CloneOptions{URL: upstream})
	require.NoError(t, err)

	w := NewWorkflow(config.GitConfig{RepoPath: local, DefaultBranch: "master"}, fakeSessions{}, nil)
	res, err := w.Pull(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.ChangesPulled)
	assert.Equal(t, "Repository is already up to date.", res.Message)
	assert.NotEmpty(t, res.CommitHash)
}

func TestPullFetchesNewCommit(t *testing.T) {
	upstream, upstreamRepo := seedUpstream(t)
	local := filepath.Join(t.TempDir(), "checkout")
	_, err := git.PlainClone(local, false, &git.CloneOptions{URL: upstream})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(upstream, "packages", "zlib.txt"), []byte("new\n"), 0o644))
	commitAll(t, upstreamRepo, upstream, "add zlib")

	w := NewWorkflow(config.GitConfig{RepoPath: local, DefaultBranch: "master"}, fakeSessions{}, nil)
	res, err := w.Pull(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.ChangesPulled)
	assert.Contains(t, res.FilesChanged, "packages/zlib.txt")
}

func TestPullMissingRepository(t *testing.T) {
	w := NewWorkflow(config.GitConfig{RepoPath: filepath.Join(t.TempDir(), "nope")}, fakeSessions{}, nil)
	res, err := w.Pull(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "not found")
}

func TestCommitInfoRewritesRecipe(t *testing.T) {
	upstream, upstreamRepo := seedUpstream(t)
	head, err := upstreamRepo.Head()
	require.NoError(t, err)

	sc := testSession(t)
	w := NewWorkflow(config.GitConfig{}, fakeSessions{sc}, templateProvisioner{sc.RepoPackagesDir()})

	res, err := w.CommitInfo(context.Background(), sc.ID, "mytool", upstream)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, head.Hash().String(), res.CommitHash)
	assert.Len(t, res.CommitDate, 8)

	content, err := os.ReadFile(filepath.Join(sc.RepoPackagesDir(), "mytool", "package.py"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "git = \""+upstream+"\"")
	assert.Contains(t, string(content), "commit=\""+res.CommitHash+"\"")
	assert.NotContains(t, string(content), "url =")

	_, statErr := os.Stat(filepath.Join(sc.Dir, "git-clone-temp"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCommitInfoBadURL(t *testing.T) {
	sc := testSession(t)
	w := NewWorkflow(config.GitConfig{}, fakeSessions{sc}, templateProvisioner{sc.RepoPackagesDir()})

	res, err := w.CommitInfo(context.Background(), sc.ID, "mytool", filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Failed to clone repository")
}

func TestCommitInfoRequiresPackageName(t *testing.T) {
	sc := testSession(t)
	w := NewWorkflow(config.GitConfig{}, fakeSessions{sc}, templateProvisioner{sc.RepoPackagesDir()})

	_, err := w.CommitInfo(context.Background(), sc.ID, "", "https://example.com/repo")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestCreatePullRequestPushesBranch(t *testing.T) {
	upstream, _ := seedUpstream(t)
	origin := seedBareOrigin(t, upstream)

	sc := testSession(t)
	pkgDir := filepath.Join(sc.RepoPackagesDir(), "mytool")
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "package.py"), []byte("class Mytool(Package):\n    pass\n"), 0o644))

	cfg := config.GitConfig{
		RepoURL:       origin,
		DefaultBranch: "master",
		AuthorName:    "tester",
		AuthorEmail:   "t@example.com",
	}
	w := NewWorkflow(cfg, fakeSessions{sc}, nil)

	res, err := w.CreatePullRequest(context.Background(), sc.ID, "mytool", "")
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Contains(t, res.BranchName, "add-mytool-recipe-")
	assert.Equal(t, "Add mytool recipe", res.CommitMessage)
	assert.Contains(t, res.PRURL, "/compare/master..."+res.BranchName)
	assert.NotEmpty(t, res.Commands)

	bare, err := git.PlainOpen(origin)
	require.NoError(t, err)
	_, err = bare.Reference(plumbing.NewBranchReferenceName(res.BranchName), false)
	assert.NoError(t, err, "branch should exist on origin")
}

func TestCreatePullRequestNoChanges(t *testing.T) {
	upstream, _ := seedUpstream(t)
	origin := seedBareOrigin(t, upstream)

	sc := testSession(t)
	cfg := config.GitConfig{RepoURL: origin, DefaultBranch: "master"}
	w := NewWorkflow(cfg, fakeSessions{sc}, nil)

	res, err := w.CreatePullRequest(context.Background(), sc.ID, "mytool", "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "No changes to commit")
}

func TestCreatePullRequestCloneFailure(t *testing.T) {
	sc := testSession(t)
	cfg := config.GitConfig{RepoURL: filepath.Join(t.TempDir(), "missing"), DefaultBranch: "master"}
	w := NewWorkflow(cfg, fakeSessions{sc}, nil)

	res, err := w.CreatePullRequest(context.Background(), sc.ID, "mytool", "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Failed to clone repository")
	assert.NotEmpty(t, res.Commands)
}
