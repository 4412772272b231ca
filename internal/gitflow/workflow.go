package gitflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/hgi-dev/spackbridge/internal/config"
	"github.com/hgi-dev/spackbridge/internal/foundation/errors"
	"github.com/hgi-dev/spackbridge/internal/logfields"
	"github.com/hgi-dev/spackbridge/internal/recipe"
	"github.com/hgi-dev/spackbridge/internal/retry"
	"github.com/hgi-dev/spackbridge/internal/session"
)

// Resolver turns a session identifier into its resolved context.
type Resolver interface {
	Resolve(id string) (*session.Context, error)
}

// RecipeProvisioner makes sure a recipe exists in a session before the
// commit-info rewrite touches it. Satisfied by recipe.Manager.
type RecipeProvisioner interface {
	Create(ctx context.Context, sessionID, name string) (*recipe.CreateResult, error)
}

// Workflow runs the git side of recipe development against the shared spack
// repository configured in cfg.
type Workflow struct {
	cfg      config.GitConfig
	sessions Resolver
	recipes  RecipeProvisioner
	policy   retry.Policy
}

func NewWorkflow(cfg config.GitConfig, sessions Resolver, recipes RecipeProvisioner) *Workflow {
	return &Workflow{
		cfg:      cfg,
		sessions: sessions,
		recipes:  recipes,
		policy:   retry.FromConfig(cfg.Retry),
	}
}

func (w *Workflow) signature() *object.Signature {
	name := w.cfg.AuthorName
	if name == "" {
		name = "spackbridge"
	}
	email := w.cfg.AuthorEmail
	if email == "" {
		email = "spackbridge@localhost"
	}
	return &object.Signature{Name: name, Email: email, When: time.Now()}
}

func (w *Workflow) defaultBranch() string {
	if w.cfg.DefaultBranch != "" {
		return w.cfg.DefaultBranch
	}
	return "main"
}

// Pull updates the shared spack repository checkout and reports what moved.
func (w *Workflow) Pull(ctx context.Context) (*PullResult, error) {
	path := w.cfg.RepoPath
	result := &PullResult{RepositoryPath: path}

	repo, err := git.PlainOpen(path)
	if err != nil {
		result.Message = fmt.Sprintf("Spack repository not found at %s", path)
		return result, nil
	}

	head, err := repo.Head()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryGit, "could not read repository HEAD").Build()
	}
	before := head.Hash()

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryGit, "could not open worktree").Build()
	}

	err = worktree.PullContext(ctx, &git.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(w.defaultBranch()),
	})
	switch {
	case err == git.NoErrAlreadyUpToDate:
		result.Success = true
		result.Message = "Repository is already up to date."
		result.CommitHash = before.String()
		return result, nil
	case err != nil:
		result.Message = fmt.Sprintf("Failed to pull updates: %v", err)
		return result, nil
	}

	head, err = repo.Head()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryGit, "could not read repository HEAD after pull").Build()
	}
	after := head.Hash()

	files, err := changedFiles(repo, before, after)
	if err != nil {
		slog.Warn("could not compute changed files", logfields.Error(err))
	}

	result.Success = true
	result.ChangesPulled = before != after
	result.CommitHash = after.String()
	result.FilesChanged = files
	result.Message = fmt.Sprintf("Successfully pulled updates. %d files changed.", len(files))
	slog.Info("spack repo updated",
		logfields.Path(path),
		slog.Bool("changes", result.ChangesPulled),
		slog.Int("files_changed", len(files)))
	return result, nil
}

func changedFiles(repo *git.Repository, before, after plumbing.Hash) ([]string, error) {
	if before == after {
		return nil, nil
	}
	beforeCommit, err := repo.CommitObject(before)
	if err != nil {
		return nil, err
	}
	afterCommit, err := repo.CommitObject(after)
	if err != nil {
		return nil, err
	}
	beforeTree, err := beforeCommit.Tree()
	if err != nil {
		return nil, err
	}
	afterTree, err := afterCommit.Tree()
	if err != nil {
		return nil, err
	}
	changes, err := object.DiffTree(beforeTree, afterTree)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(changes))
	for _, ch := range changes {
		name := ch.To.Name
		if name == "" {
			name = ch.From.Name
		}
		names = append(names, name)
	}
	return names, nil
}

// CommitInfo clones the upstream repository of a package, reads its HEAD
// hash and commit date, and rewrites the session recipe to build from that
// commit. The recipe is provisioned first when the session does not have one
// yet.
func (w *Workflow) CommitInfo(ctx context.Context, sessionID, packageName, repoURL string) (*CommitInfoResult, error) {
	if packageName == "" {
		return nil, errors.ValidationError("package name is required").Build()
	}
	sc, err := w.sessions.Resolve(sessionID)
	if err != nil {
		return nil, err
	}

	cloneDir := filepath.Join(sc.Dir, "git-clone-temp")
	if err := os.RemoveAll(cloneDir); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "could not clear clone directory").Build()
	}
	defer os.RemoveAll(cloneDir)

	repo, err := git.PlainCloneContext(ctx, cloneDir, false, &git.CloneOptions{URL: repoURL})
	if err != nil {
		return &CommitInfoResult{
			Message: fmt.Sprintf("Failed to clone repository: %v", err),
			RepoURL: repoURL,
		}, nil
	}
	head, err := repo.Head()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryGit, "could not read cloned HEAD").Build()
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryGit, "could not read HEAD commit").Build()
	}

	hash := commit.Hash.String()
	date := commit.Committer.When.Format("20060102")

	if _, err := w.recipes.Create(ctx, sessionID, packageName); err != nil {
		return &CommitInfoResult{
			Message:    fmt.Sprintf("Failed to create blank recipe: %v", err),
			CommitHash: hash,
			CommitDate: date,
			RepoURL:    repoURL,
		}, nil
	}

	recipePath := filepath.Join(sc.RepoPackagesDir(), packageName, "package.py")
	content, err := os.ReadFile(recipePath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "could not read recipe for rewrite").Build()
	}
	rewritten := RewriteRecipe(string(content), repoURL, hash, date)
	if err := os.WriteFile(recipePath, []byte(rewritten), 0o644); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "could not write rewritten recipe").Build()
	}

	slog.Info("updated recipe with git info",
		logfields.Session(sessionID),
		logfields.Package(packageName),
		slog.String("commit", hash[:8]),
		slog.String("date", date))

	return &CommitInfoResult{
		Success:    true,
		Message:    "Successfully updated recipe with git commit info",
		CommitHash: hash,
		CommitDate: date,
		RepoURL:    repoURL,
	}, nil
}

// CreatePullRequest pushes the session's packages to a fresh branch of the
// shared repository: clone, branch, copy, commit, push. Step failures come
// back as an unsuccessful result carrying the transcript, so callers can
// show the operator exactly which command went wrong.
func (w *Workflow) CreatePullRequest(ctx context.Context, sessionID, packageName, recipeName string) (*PullRequestResult, error) {
	if recipeName == "" {
		recipeName = packageName
	}
	sc, err := w.sessions.Resolve(sessionID)
	if err != nil {
		return nil, err
	}

	branch := fmt.Sprintf("add-%s-recipe-%d", packageName, time.Now().Unix())
	message := fmt.Sprintf("Add %s recipe", recipeName)
	result := &PullRequestResult{
		PackageName:   packageName,
		BranchName:    branch,
		CommitMessage: message,
	}
	fail := func(step, detail string) (*PullRequestResult, error) {
		result.Message = fmt.Sprintf("Failed to %s: %s", step, detail)
		slog.Error("pull request step failed",
			logfields.Package(packageName),
			logfields.Branch(branch),
			slog.String("step", step),
			slog.String("detail", detail))
		return result, nil
	}

	cloneDir, err := os.MkdirTemp("", "spackbridge-pr-")
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "could not create clone directory").Build()
	}
	defer os.RemoveAll(cloneDir)

	result.Commands = append(result.Commands, fmt.Sprintf("git clone %s %s", w.cfg.RepoURL, cloneDir))
	repo, err := git.PlainCloneContext(ctx, cloneDir, false, &git.CloneOptions{
		URL:           w.cfg.RepoURL,
		ReferenceName: plumbing.NewBranchReferenceName(w.defaultBranch()),
		SingleBranch:  true,
	})
	if err != nil {
		return fail("clone repository", err.Error())
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fail("open worktree", err.Error())
	}

	result.Commands = append(result.Commands, "git checkout -b "+branch)
	err = worktree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	})
	if err != nil {
		return fail("create branch", err.Error())
	}

	copied, err := copySessionPackages(sc.RepoPackagesDir(), filepath.Join(cloneDir, "packages"))
	if err != nil {
		return fail("copy package changes", err.Error())
	}
	if copied > 0 {
		result.Commands = append(result.Commands,
			fmt.Sprintf("cp -r %s/* %s/packages/", sc.RepoPackagesDir(), cloneDir))
	}

	result.Commands = append(result.Commands, "git add .")
	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fail("add changes", err.Error())
	}

	status, err := worktree.Status()
	if err != nil {
		return fail("read status", err.Error())
	}
	if status.IsClean() {
		result.Message = "No changes to commit. The package files may not have been copied correctly " +
			"or there are no differences from the base repository."
		return result, nil
	}

	result.Commands = append(result.Commands, fmt.Sprintf("git commit -m %q", message))
	if _, err := worktree.Commit(message, &git.CommitOptions{Author: w.signature()}); err != nil {
		return fail("commit changes", err.Error())
	}

	result.Commands = append(result.Commands, "git push origin "+branch)
	refspec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)
	err = w.policy.Do(ctx, func() error {
		return repo.PushContext(ctx, &git.PushOptions{
			RemoteName: "origin",
			RefSpecs:   []gitcfg.RefSpec{gitcfg.RefSpec(refspec)},
		})
	})
	if err != nil {
		return fail("push branch", err.Error())
	}

	result.Success = true
	result.PRURL = compareURL(w.cfg.RepoURL, w.defaultBranch(), branch)
	result.Message = fmt.Sprintf(
		"Successfully prepared pull request for %s. Branch %s has been pushed.", packageName, branch)
	slog.Info("pull request branch pushed",
		logfields.Package(packageName),
		logfields.Branch(branch),
		logfields.URL(result.PRURL))
	return result, nil
}

// copySessionPackages copies every package directory from the session into
// the clone's packages tree, replacing same-named packages wholesale.
func copySessionPackages(src, dst string) (int, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	copied := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		target := filepath.Join(dst, e.Name())
		if err := os.RemoveAll(target); err != nil {
			return copied, err
		}
		if err := copyTree(filepath.Join(src, e.Name()), target); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}

// compareURL builds the forge's branch-comparison URL for a pushed branch.
func compareURL(repoURL, base, branch string) string {
	trimmed := strings.TrimSuffix(repoURL, ".git")
	return fmt.Sprintf("%s/compare/%s...%s", trimmed, base, branch)
}
