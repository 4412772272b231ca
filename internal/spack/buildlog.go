package spack

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hgi-dev/spackbridge/internal/logfields"
)

// NoBuildLogs is returned when a failed install left no diagnosable trace.
const NoBuildLogs = "No build logs found"

// stageLogName is the fixed filename spack writes inside every staging
// directory.
const stageLogName = "spack-build-out.txt"

// fallbackStageLimit caps how many staging directories the filesystem
// fallback inspects.
const fallbackStageLimit = 5

var (
	logFileRe  = regexp.MustCompile(`\S*` + regexp.QuoteMeta(stageLogName))
	stageDirRe = regexp.MustCompile(`\S*spack-stage-\S+`)
)

// LogCollector aggregates build logs after a failed install. tempRoots are
// the workspaces spack stages builds under, consulted only when the failure
// output itself names no log paths.
type LogCollector struct {
	tempRoots []string
}

func NewLogCollector(tempRoots []string) *LogCollector {
	return &LogCollector{tempRoots: tempRoots}
}

// Collect returns an aggregated diagnostic blob for a failed invocation, or
// NoBuildLogs. Unreadable files contribute a placeholder instead of being
// skipped, so the caller can see that a log existed but was lost.
func (c *LogCollector) Collect(output string) string {
	candidates := c.candidatePaths(output)
	if len(candidates) == 0 {
		return NoBuildLogs
	}

	sections := make([]string, 0, len(candidates))
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Debug("build log unreadable", logfields.Path(path), logfields.Error(err))
			sections = append(sections, fmt.Sprintf("=== %s ===\nCould not read log file: %v", path, err))
			continue
		}
		sections = append(sections, fmt.Sprintf("=== %s ===\n%s", path, strings.TrimRight(string(data), "\n")))
	}
	return strings.Join(sections, "\n\n")
}

func (c *LogCollector) candidatePaths(output string) []string {
	var candidates []string
	seen := map[string]bool{}
	add := func(path string) {
		if path != "" && !seen[path] {
			seen[path] = true
			candidates = append(candidates, path)
		}
	}

	for _, match := range logFileRe.FindAllString(output, -1) {
		add(match)
	}
	for _, match := range stageDirRe.FindAllString(output, -1) {
		if strings.HasSuffix(match, stageLogName) {
			continue
		}
		add(filepath.Join(match, stageLogName))
	}
	if len(candidates) > 0 {
		return candidates
	}

	for _, dir := range c.recentStageDirs() {
		add(filepath.Join(dir, stageLogName))
	}
	return candidates
}

// recentStageDirs finds the most recently modified staging directories
// across every temp root, newest first.
func (c *LogCollector) recentStageDirs() []string {
	type stamped struct {
		path string
		mod  int64
	}
	var dirs []stamped
	for _, root := range c.tempRoots {
		for _, pattern := range []string{"spack-stage-*", "*/spack-stage-*"} {
			matches, err := filepath.Glob(filepath.Join(root, pattern))
			if err != nil {
				continue
			}
			for _, m := range matches {
				info, err := os.Stat(m)
				if err != nil || !info.IsDir() {
					continue
				}
				dirs = append(dirs, stamped{path: m, mod: info.ModTime().UnixNano()})
			}
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].mod > dirs[j].mod })
	if len(dirs) > fallbackStageLimit {
		dirs = dirs[:fallbackStageLimit]
	}
	out := make([]string, len(dirs))
	for i, d := range dirs {
		out[i] = d.path
	}
	return out
}
