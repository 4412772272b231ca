package spack

import (
	"regexp"
	"strings"
)

// DigestNotFound is the normal outcome for invocations that never print an
// install marker, e.g. pure validation runs.
const DigestNotFound = "not found"

// Install marker variants, most specific first. Spack prints one
// "[+] /prefix/path" line per installed unit; older output also announces
// "Successfully installed <path>".
var digestPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[\+\]\s+(\S+)`),
	regexp.MustCompile(`Successfully installed\s+(\S+)`),
}

// ExtractDigest scans combined install output for the target package's
// installation digest. Dependencies install before the target, so for each
// marker variant the last occurrence is the one that matters. Returns
// DigestNotFound when no marker yields a valid digest.
func ExtractDigest(output string) string {
	for _, pattern := range digestPatterns {
		matches := pattern.FindAllStringSubmatch(output, -1)
		if len(matches) == 0 {
			continue
		}
		path := matches[len(matches)-1][1]

		// The final path segment is <name>-<version>-<digest>.
		segment := path
		if idx := strings.LastIndex(segment, "/"); idx >= 0 {
			segment = segment[idx+1:]
		}
		fields := strings.Split(segment, "-")
		candidate := fields[len(fields)-1]
		if isDigest(candidate) {
			return candidate
		}
	}
	return DigestNotFound
}

func isDigest(s string) bool {
	if len(s) != 32 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
