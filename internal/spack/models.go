// Package spack wraps the spack command line: it executes spack processes,
// parses their console output into typed descriptors, recovers install
// digests and build logs from noisy output, and multiplexes long-running
// install output into ordered progress events.
package spack

// VersionRef is one version reference from spack console output. The label
// is never empty; the remaining fields are best effort.
type VersionRef struct {
	Version     string `json:"version"`
	URL         string `json:"url,omitempty"`
	HasChecksum bool   `json:"has_checksum,omitempty"`
	Checksum    string `json:"checksum,omitempty"`
}

// VariantSpec is a named build-time option exposed by a package.
type VariantSpec struct {
	Name        string   `json:"name"`
	Default     string   `json:"default"`
	Values      []string `json:"values,omitempty"`
	Description string   `json:"description,omitempty"`
	// Conditional carries a trailing "when ..." expression attached while
	// the variant is still being accumulated by the parser.
	Conditional string `json:"conditional,omitempty"`
}

// PackageDescriptor is the typed result of parsing `spack info` output.
// Constructed fresh per parse call and never mutated afterwards.
type PackageDescriptor struct {
	Name               string        `json:"name"`
	Version            string        `json:"version"`
	PackageType        string        `json:"package_type,omitempty"`
	Description        string        `json:"description,omitempty"`
	Homepage           string        `json:"homepage,omitempty"`
	PreferredVersion   *VersionRef   `json:"preferred_version,omitempty"`
	SafeVersions       []VersionRef  `json:"safe_versions"`
	DeprecatedVersions []VersionRef  `json:"deprecated_versions"`
	Variants           []VariantSpec `json:"variants"`
	BuildDependencies  []string      `json:"build_dependencies"`
	LinkDependencies   []string      `json:"link_dependencies"`
	RunDependencies    []string      `json:"run_dependencies"`
	Licenses           []string      `json:"licenses"`
}

// EventType discriminates progress events emitted during streaming installs.
type EventType string

const (
	EventStart    EventType = "start"
	EventOutput   EventType = "output"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// ProgressEvent is one entry in the ordered event sequence of a streaming
// invocation. Exactly one start event opens the sequence and exactly one
// complete (or, on spawn failure, error) event terminates it.
type ProgressEvent struct {
	Type      EventType `json:"type"`
	Data      string    `json:"data"`
	Timestamp float64   `json:"timestamp"`
	Package   string    `json:"package,omitempty"`
	Spec      string    `json:"spec,omitempty"`

	// Completion fields, set only on EventComplete.
	Success    *bool  `json:"success,omitempty"`
	Digest     string `json:"digest,omitempty"`
	FailureLog string `json:"failure_log,omitempty"`
}

// ExecutionResult captures one completed process invocation. Spawn failures
// and timeouts are folded into a failed result rather than surfacing as
// errors, so callers always receive a well-formed record.
type ExecutionResult struct {
	ExitCode int    `json:"returncode"`
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// OperationResult is the generic outcome record returned by non-streaming
// operations.
type OperationResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
