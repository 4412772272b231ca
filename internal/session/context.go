// Package session manages isolated per-caller spack workspaces: a directory
// tree holding a private spack repository, the repos.yaml pointing spack at
// it, and the packages directory exposed to the build container.
package session

import (
	"path/filepath"
	"time"
)

// Context describes one resolved session. Once resolved it is immutable for
// the duration of a command execution.
type Context struct {
	ID        string    `json:"session_id"`
	Dir       string    `json:"session_dir"`
	Namespace string    `json:"namespace"`
	CreatedAt time.Time `json:"created"`
	LastUsed  time.Time `json:"last_used"`

	// ReposConfig is the session's repos.yaml on the host.
	ReposConfig string `json:"-"`
	// PackagesDir is the session's packages directory on the host.
	PackagesDir string `json:"-"`
	// RepoDir is the session's private spack repository.
	RepoDir string `json:"-"`
}

// RepoPackagesDir is where the session's recipes live. They must sit inside
// the private repository, not the top-level packages directory, or spack
// never sees them through repos.yaml.
func (c *Context) RepoPackagesDir() string {
	return filepath.Join(c.RepoDir, "packages")
}
