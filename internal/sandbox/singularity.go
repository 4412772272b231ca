// Package sandbox builds singularity invocations that run spack inside an
// isolated container with the session's repository configuration bind-mounted
// at the paths the containerized spack expects.
package sandbox

import (
	"github.com/hgi-dev/spackbridge/internal/config"
	"github.com/hgi-dev/spackbridge/internal/session"
)

// Resolver looks up session contexts by id.
type Resolver interface {
	Resolve(id string) (*session.Context, error)
}

// Builder decides whether a command runs directly on the host or wrapped in
// a singularity container bound to a session's workspace.
type Builder struct {
	cfg      config.SingularityConfig
	spackExe string
	resolver Resolver
}

// NewBuilder creates a command builder. spackExe is the host path of the
// unwrapped spack executable.
func NewBuilder(cfg config.SingularityConfig, spackExe string, resolver Resolver) *Builder {
	return &Builder{cfg: cfg, spackExe: spackExe, resolver: resolver}
}

// Wrap returns the argument vector to execute. Without a session the base
// vector is returned unchanged. With a session the vector is prefixed with
// the container invocation; session resolution failures propagate before any
// process is spawned.
func (b *Builder) Wrap(sessionID string, argv []string) ([]string, error) {
	if sessionID == "" {
		return argv, nil
	}

	sc, err := b.resolver.Resolve(sessionID)
	if err != nil {
		return nil, err
	}

	out := b.prefix(sc)

	// The image already supplies spack as its entrypoint; a leading host
	// spack path would otherwise be executed inside the container where it
	// does not exist.
	if len(argv) > 0 && argv[0] == b.spackExe {
		argv = argv[1:]
	}
	return append(out, argv...), nil
}

// prefix assembles the fixed container invocation for one session.
func (b *Builder) prefix(sc *session.Context) []string {
	args := []string{b.cfg.Executable, "run"}
	for _, bind := range b.cfg.SystemBinds {
		args = append(args, "--bind", bind)
	}
	args = append(args,
		"--bind", sc.ReposConfig+":"+b.cfg.ReposConfigDest,
		"--bind", sc.PackagesDir+":"+b.cfg.PackagesDest,
	)
	return append(args, b.cfg.Image)
}
