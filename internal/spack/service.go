package spack

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hgi-dev/spackbridge/internal/config"
	"github.com/hgi-dev/spackbridge/internal/foundation/errors"
	"github.com/hgi-dev/spackbridge/internal/logfields"
	"github.com/hgi-dev/spackbridge/internal/metrics"
	"github.com/hgi-dev/spackbridge/internal/sandbox"
)

// Wrapper resolves an optional session identifier into the argument vector
// actually executed. Satisfied by sandbox.Builder.
type Wrapper interface {
	Wrap(sessionID string, argv []string) ([]string, error)
}

var _ Wrapper = (*sandbox.Builder)(nil)

// Service is the operational surface over the spack command line. Every
// operation accepts an optional session identifier; when present the command
// runs inside that session's sandbox.
type Service struct {
	exe       string
	runner    *Runner
	wrapper   Wrapper
	streamer  *Streamer
	collector *LogCollector
	recorder  metrics.Recorder

	queryTimeout   time.Duration
	installTimeout time.Duration
	createTimeout  time.Duration
}

func NewService(cfg config.SpackConfig, wrapper Wrapper) *Service {
	collector := NewLogCollector(cfg.TempRoots)
	return &Service{
		exe:            cfg.Executable,
		runner:         NewRunner(),
		wrapper:        wrapper,
		streamer:       NewStreamer(collector),
		collector:      collector,
		recorder:       metrics.NoopRecorder{},
		queryTimeout:   cfg.QueryTimeout(),
		installTimeout: cfg.InstallTimeout(),
		createTimeout:  cfg.CreateTimeout(),
	}
}

// SetRecorder installs a metrics recorder. The default is a no-op.
func (s *Service) SetRecorder(r metrics.Recorder) {
	if r != nil {
		s.recorder = r
	}
}

// Executable returns the unwrapped spack binary path.
func (s *Service) Executable() string { return s.exe }

// Collector exposes the build log collector for diagnostic endpoints.
func (s *Service) Collector() *LogCollector { return s.collector }

// Spec joins a package name with an optional version into a spack spec.
func Spec(name, version string) string {
	if version == "" {
		return name
	}
	return name + "@" + version
}

func (s *Service) execute(ctx context.Context, sessionID string, argv []string, timeout time.Duration) (ExecutionResult, error) {
	wrapped, err := s.wrapper.Wrap(sessionID, argv)
	if err != nil {
		return ExecutionResult{}, err
	}
	op := "spack"
	if len(argv) > 1 {
		op = argv[1]
	}
	start := time.Now()
	result := s.runner.Run(ctx, wrapped, RunOptions{Timeout: timeout})
	s.recorder.ObserveCommandDuration(op, time.Since(start), result.Success)
	return result, nil
}

// List returns available package names, optionally filtered by a query
// substring. A failed listing yields an empty slice, not an error: spack
// prints its complaint on stderr and exits non-zero for unknown queries.
func (s *Service) List(ctx context.Context, sessionID, query string, limit int) ([]string, error) {
	argv := []string{s.exe, "list"}
	if query != "" {
		argv = append(argv, query)
	}
	result, err := s.execute(ctx, sessionID, argv, s.queryTimeout)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		slog.Warn("package listing failed", logfields.ExitCode(result.ExitCode))
		return []string{}, nil
	}

	names := []string{}
	for _, line := range strings.Split(strings.TrimSpace(result.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "=") {
			continue
		}
		names = append(names, line)
		if limit > 0 && len(names) >= limit {
			break
		}
	}
	return names, nil
}

// Info runs `spack info` and parses the output. The parse itself never
// fails; when the invocation fails a sentinel descriptor is returned so the
// caller still gets a well-formed answer.
func (s *Service) Info(ctx context.Context, sessionID, name, version string) (*PackageDescriptor, error) {
	spec := Spec(name, version)
	result, err := s.execute(ctx, sessionID, []string{s.exe, "info", spec}, s.queryTimeout)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		slog.Warn("package info failed",
			logfields.Package(spec),
			logfields.ExitCode(result.ExitCode))
		return UnavailableDescriptor(name, version), nil
	}
	return ParseInfo(name, version, result.Stdout), nil
}

// Versions runs `spack versions` and returns every version label it prints.
func (s *Service) Versions(ctx context.Context, sessionID, name string) ([]VersionRef, error) {
	result, err := s.execute(ctx, sessionID, []string{s.exe, "versions", name}, s.queryTimeout)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, errors.ExecutionError(fmt.Sprintf("spack versions failed for %s", name)).
			WithContext("stderr", result.Stderr).
			Build()
	}

	refs := []VersionRef{}
	for _, line := range strings.Split(result.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "==>") {
			continue
		}
		for _, token := range strings.Fields(line) {
			refs = append(refs, VersionRef{Version: token})
		}
	}
	return refs, nil
}

var checksumLineRe = regexp.MustCompile(`version\("([^"]+)",\s*sha256="([0-9a-f]{64})"\)`)

// Checksum runs `spack checksum --batch` and extracts the version directives
// it prints, each carrying a verified sha256.
func (s *Service) Checksum(ctx context.Context, sessionID, name, version string) ([]VersionRef, error) {
	spec := Spec(name, version)
	result, err := s.execute(ctx, sessionID, []string{s.exe, "checksum", "--batch", spec}, s.createTimeout)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, errors.ExecutionError(fmt.Sprintf("spack checksum failed for %s", spec)).
			WithContext("stderr", result.Stderr).
			Build()
	}

	refs := []VersionRef{}
	for _, m := range checksumLineRe.FindAllStringSubmatch(result.Stdout+"\n"+result.Stderr, -1) {
		refs = append(refs, VersionRef{
			Version:     m[1],
			HasChecksum: true,
			Checksum:    m[2],
		})
	}
	return refs, nil
}

// InstallSpec builds the full install spec from a name, optional version and
// variant expressions.
func InstallSpec(name, version string, variants []string) string {
	spec := Spec(name, version)
	for _, v := range variants {
		spec += " " + v
	}
	return spec
}

// Install runs a blocking install and reports the outcome, including the
// digest of the installed artifact when one can be recovered.
func (s *Service) Install(ctx context.Context, sessionID, name, version string, variants []string) (*OperationResult, error) {
	spec := InstallSpec(name, version, variants)
	slog.Info("installing package", logfields.Session(sessionID), logfields.Spec(spec))

	result, err := s.execute(ctx, sessionID, []string{s.exe, "install", spec}, s.installTimeout)
	if err != nil {
		return nil, err
	}

	details := map[string]any{
		"package":    spec,
		"stdout":     result.Stdout,
		"stderr":     result.Stderr,
		"returncode": result.ExitCode,
	}
	combined := result.Stdout + "\n" + result.Stderr
	if digest := ExtractDigest(combined); digest != DigestNotFound {
		details["digest"] = digest
	}

	if !result.Success {
		s.recorder.IncInstallOutcome("failed")
		details["failure_log"] = s.collector.Collect(combined)
		return &OperationResult{
			Success: false,
			Message: fmt.Sprintf("Failed to install %s: %s", spec, result.Stderr),
			Details: details,
		}, nil
	}
	s.recorder.IncInstallOutcome("success")
	return &OperationResult{
		Success: true,
		Message: fmt.Sprintf("Successfully installed %s", spec),
		Details: details,
	}, nil
}

// InstallStream starts a streaming install. Session resolution happens
// before any process is spawned, so a bad session identifier surfaces as an
// error here rather than as a mid-stream failure.
func (s *Service) InstallStream(ctx context.Context, sessionID, name, version string, variants []string) (<-chan ProgressEvent, error) {
	spec := InstallSpec(name, version, variants)
	wrapped, err := s.wrapper.Wrap(sessionID, []string{s.exe, "install", spec})
	if err != nil {
		return nil, err
	}
	return s.streamer.Stream(ctx, wrapped, name, spec, s.installTimeout), nil
}

// Uninstall removes an installed package. The -y flag suppresses the
// interactive confirmation spack asks for otherwise.
func (s *Service) Uninstall(ctx context.Context, sessionID, name, version string, force bool) (*OperationResult, error) {
	spec := Spec(name, version)
	argv := []string{s.exe, "uninstall", "-y"}
	if force {
		argv = append(argv, "--force")
	}
	argv = append(argv, spec)

	result, err := s.execute(ctx, sessionID, argv, s.queryTimeout)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return &OperationResult{
			Success: false,
			Message: fmt.Sprintf("Failed to uninstall %s: %s", spec, result.Stderr),
		}, nil
	}
	return &OperationResult{
		Success: true,
		Message: fmt.Sprintf("Successfully uninstalled %s", spec),
	}, nil
}

// CreateRecipe runs `spack create --skip-editor`, generating a recipe
// template into the active repository (the session's own repo when a session
// is given). Run from the session directory so relative paths spack prints
// stay meaningful.
func (s *Service) CreateRecipe(ctx context.Context, sessionID, name, sourceURL string) (ExecutionResult, error) {
	argv := []string{s.exe, "create", "--skip-editor"}
	if name != "" {
		argv = append(argv, "--name", name)
	}
	if sourceURL != "" {
		argv = append(argv, sourceURL)
	}
	wrapped, err := s.wrapper.Wrap(sessionID, argv)
	if err != nil {
		return ExecutionResult{}, err
	}
	return s.runner.Run(ctx, wrapped, RunOptions{Timeout: s.createTimeout}), nil
}
