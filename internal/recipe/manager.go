package recipe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hgi-dev/spackbridge/internal/foundation/errors"
	"github.com/hgi-dev/spackbridge/internal/logfields"
	"github.com/hgi-dev/spackbridge/internal/session"
	"github.com/hgi-dev/spackbridge/internal/spack"
)

// recipeFile is the filename spack expects for every package recipe.
const recipeFile = "package.py"

// boilerplateRe matches the dashed comment blocks `spack create` leaves at
// the top of generated templates.
var boilerplateRe = regexp.MustCompile(`(?ms)^# -{10,}\n(?:.*?\n)*?# -{10,}(?:\n|$)`)

// Resolver turns a session identifier into its resolved context. Satisfied
// by session.Manager.
type Resolver interface {
	Resolve(id string) (*session.Context, error)
}

// TemplateGenerator produces a new recipe template inside a session.
// Satisfied by spack.Service.
type TemplateGenerator interface {
	CreateRecipe(ctx context.Context, sessionID, name, sourceURL string) (spack.ExecutionResult, error)
}

// Manager performs recipe CRUD inside session repositories.
type Manager struct {
	sessions   Resolver
	globalRepo string
	generator  TemplateGenerator
}

func NewManager(sessions Resolver, globalRepo string, generator TemplateGenerator) *Manager {
	return &Manager{sessions: sessions, globalRepo: globalRepo, generator: generator}
}

func relPath(name string) string {
	return filepath.Join("spack-repo", "packages", name, recipeFile)
}

func (m *Manager) resolve(sessionID, name string) (*session.Context, string, error) {
	if name == "" {
		return nil, "", errors.ValidationError("package name cannot be empty").Build()
	}
	sc, err := m.sessions.Resolve(sessionID)
	if err != nil {
		return nil, "", err
	}
	return sc, filepath.Join(sc.RepoPackagesDir(), name, recipeFile), nil
}

// Create provisions a recipe for the package: reuses one already in the
// session, copies the whole package directory (patches included) from the
// global repository when present there, and otherwise generates a fresh
// template and strips the generator's boilerplate blocks.
func (m *Manager) Create(ctx context.Context, sessionID, name string) (*CreateResult, error) {
	sc, path, err := m.resolve(sessionID, name)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		return &CreateResult{PackageName: name, Action: ActionExists, FilePath: relPath(name)}, nil
	}

	globalDir := filepath.Join(m.globalRepo, "packages", name)
	if _, err := os.Stat(filepath.Join(globalDir, recipeFile)); err == nil {
		return m.copyFromGlobal(sc, name, globalDir, path)
	}
	return m.generate(ctx, sc, name, path)
}

func (m *Manager) copyFromGlobal(sc *session.Context, name, globalDir, path string) (*CreateResult, error) {
	dest := filepath.Dir(path)
	if err := os.RemoveAll(dest); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "could not clear package directory").Build()
	}
	if err := copyDir(globalDir, dest); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem,
			fmt.Sprintf("could not copy package '%s' from global repository", name)).Build()
	}

	var copied, patches []string
	entries, _ := os.ReadDir(dest)
	for _, e := range entries {
		if e.Type().IsRegular() {
			copied = append(copied, e.Name())
			if strings.HasSuffix(e.Name(), ".patch") {
				patches = append(patches, e.Name())
			}
		}
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	slog.Info("copied package from global repo",
		logfields.Session(sc.ID),
		logfields.Package(name),
		slog.Int("files", len(copied)),
		slog.Int("patches", len(patches)))

	return &CreateResult{
		PackageName: name,
		Action:      ActionCopied,
		FilePath:    relPath(name),
		Size:        size,
		CopiedFiles: copied,
		PatchFiles:  patches,
	}, nil
}

func (m *Manager) generate(ctx context.Context, sc *session.Context, name, path string) (*CreateResult, error) {
	result, err := m.generator.CreateRecipe(ctx, sc.ID, name, "")
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, errors.ExecutionError(fmt.Sprintf("failed to generate recipe: %s", result.Stderr)).
			WithContext("package", name).
			Build()
	}

	// The generator writes templates with a dashed instruction banner; strip
	// it from every recipe it may have touched.
	found := ""
	_ = filepath.WalkDir(sc.RepoPackagesDir(), func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() != recipeFile {
			return nil
		}
		data, readErr := os.ReadFile(p)
		if readErr != nil {
			return nil
		}
		cleaned := boilerplateRe.ReplaceAll(data, nil)
		if len(cleaned) != len(data) {
			_ = os.WriteFile(p, cleaned, 0o644)
		}
		if p == path || found == "" {
			found = p
		}
		return nil
	})
	if found == "" {
		return nil, errors.ExecutionError(
			fmt.Sprintf("recipe generation succeeded but no recipe file found for '%s'", name)).Build()
	}

	var size int64
	if info, err := os.Stat(found); err == nil {
		size = info.Size()
	}
	slog.Info("generated recipe template", logfields.Session(sc.ID), logfields.Package(name))

	return &CreateResult{
		PackageName: name,
		Action:      ActionGenerated,
		FilePath:    relPath(name),
		Size:        size,
		ToolOutput:  result.Stdout,
	}, nil
}

// List returns metadata for every package directory in the session, recipes
// missing their package.py included.
func (m *Manager) List(sessionID string) ([]Info, error) {
	sc, err := m.sessions.Resolve(sessionID)
	if err != nil {
		return nil, err
	}

	infos := []Info{}
	entries, err := os.ReadDir(sc.RepoPackagesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return infos, nil
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "could not list packages directory").Build()
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info := Info{PackageName: e.Name(), FilePath: relPath(e.Name())}
		if stat, err := os.Stat(filepath.Join(sc.RepoPackagesDir(), e.Name(), recipeFile)); err == nil {
			info.Exists = true
			info.Size = stat.Size()
			mod := float64(stat.ModTime().UnixNano()) / 1e9
			info.Modified = &mod
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].PackageName < infos[j].PackageName })
	return infos, nil
}

// Read returns the recipe file content for a package.
func (m *Manager) Read(sessionID, name string) (*Content, error) {
	_, path, err := m.resolve(sessionID, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError(
				fmt.Sprintf("recipe for package '%s' not found in session %s", name, sessionID)).Build()
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "could not read recipe").Build()
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "could not stat recipe").Build()
	}
	return &Content{
		PackageName: name,
		Content:     string(data),
		FilePath:    relPath(name),
		Size:        stat.Size(),
		Modified:    float64(stat.ModTime().UnixNano()) / 1e9,
	}, nil
}

// Write stores recipe content after validating it. Structural validation
// failures reject the write; warnings are returned alongside success.
func (m *Manager) Write(sessionID, name, content string) (*ValidationResult, error) {
	_, path, err := m.resolve(sessionID, name)
	if err != nil {
		return nil, err
	}

	validation := Validate(content, name)
	if !validation.SyntaxValid {
		return &validation, errors.ValidationError(
			fmt.Sprintf("invalid recipe syntax: %s", strings.Join(validation.Errors, ", "))).Build()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "could not create package directory").Build()
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "could not write recipe").Build()
	}
	slog.Info("wrote recipe",
		logfields.Session(sessionID),
		logfields.Package(name),
		slog.Int("size", len(content)),
		slog.Int("warnings", len(validation.Warnings)))
	return &validation, nil
}

// Delete removes the whole package directory so patch files and other assets
// go with the recipe.
func (m *Manager) Delete(sessionID, name string) error {
	_, path, err := m.resolve(sessionID, name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return errors.NotFoundError(
			fmt.Sprintf("recipe for package '%s' not found in session %s", name, sessionID)).Build()
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "could not delete package directory").Build()
	}
	slog.Info("deleted recipe", logfields.Session(sessionID), logfields.Package(name))
	return nil
}

// ValidateContent validates recipe content without writing anything.
func (m *Manager) ValidateContent(sessionID, name, content string) (*ValidationResult, error) {
	if _, _, err := m.resolve(sessionID, name); err != nil {
		return nil, err
	}
	v := Validate(content, name)
	return &v, nil
}

// Stat returns recipe metadata without reading the content.
func (m *Manager) Stat(sessionID, name string) (*Info, error) {
	_, path, err := m.resolve(sessionID, name)
	if err != nil {
		return nil, err
	}
	info := &Info{PackageName: name, FilePath: relPath(name)}
	if stat, err := os.Stat(path); err == nil {
		info.Exists = true
		info.Size = stat.Size()
		mod := float64(stat.ModTime().UnixNano()) / 1e9
		info.Modified = &mod
	}
	return info, nil
}

// copyDir copies a directory tree, regular files and subdirectories only.
func copyDir(src, dst string) error {
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
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
