package gitflow

import (
	"fmt"
	"strings"
)

// RewriteRecipe updates a generated recipe so it builds from a git checkout:
// the homepage points at the repository, a git attribute follows it, the
// archive url line is dropped, the generator's FIXME blocks go away, and a
// version pinned to the upstream commit is inserted.
func RewriteRecipe(content, repoURL, commitHash, commitDate string) string {
	lines := strings.Split(content, "\n")
	drop := make(map[int]bool)
	homepageIdx := -1

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.Contains(line, "homepage") && strings.Contains(line, "="):
			if homepageIdx == -1 {
				lines[i] = fmt.Sprintf("    homepage = %q", repoURL)
				homepageIdx = i
			}
		case strings.HasPrefix(trimmed, "url ="):
			drop[i] = true
		case strings.Contains(line, "# FIXME: Add a list of GitHub accounts to"):
			drop[i] = true
			drop[i+1] = true
			drop[i+2] = true
		case strings.Contains(line, "# FIXME: Add proper versions here."):
			drop[i] = true
			drop[i+1] = true
		}
	}

	gitLine := fmt.Sprintf("    git = %q", repoURL)
	versionLine := fmt.Sprintf("    version(%q, commit=%q)", commitDate, commitHash)

	out := make([]string, 0, len(lines)+3)
	inserted := false
	for i, line := range lines {
		if drop[i] {
			continue
		}
		out = append(out, line)
		if i == homepageIdx {
			out = append(out, gitLine, versionLine)
			inserted = true
		}
	}

	if !inserted {
		// No homepage attribute: insert the whole block after the class
		// definition, or at the top as a last resort.
		withBlock := make([]string, 0, len(out)+3)
		placed := false
		for _, line := range out {
			withBlock = append(withBlock, line)
			trimmed := strings.TrimSpace(line)
			if !placed && strings.HasPrefix(trimmed, "class ") && strings.Contains(trimmed, ":") {
				withBlock = append(withBlock,
					fmt.Sprintf("    homepage = %q", repoURL), gitLine, versionLine)
				placed = true
			}
		}
		if !placed {
			withBlock = append([]string{
				fmt.Sprintf("    homepage = %q", repoURL), gitLine, versionLine,
			}, out...)
		}
		out = withBlock
	}

	return strings.Join(out, "\n")
}
