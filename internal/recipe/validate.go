package recipe

import (
	"fmt"
	"regexp"
	"strings"
)

var classDefRe = regexp.MustCompile(`(?m)^class\s+([A-Za-z_]\w*)\s*[(:]`)

// ExpectedClassName derives the class name a recipe for the given package is
// expected to define: split on hyphens, dots and underscores, capitalize
// each part, join.
func ExpectedClassName(packageName string) string {
	normalized := strings.NewReplacer("-", "_", ".", "_").Replace(packageName)
	var b strings.Builder
	for _, part := range strings.Split(normalized, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(strings.ToLower(part[1:]))
	}
	return b.String()
}

// Validate runs heuristic checks over recipe content. Structural problems
// (unbalanced brackets, missing class definition) are errors; missing
// conventional attributes are warnings only.
func Validate(content, packageName string) ValidationResult {
	result := ValidationResult{
		PackageName: packageName,
		Errors:      []string{},
		Warnings:    []string{},
		SyntaxValid: true,
	}

	if err := checkBracketBalance(content); err != nil {
		result.SyntaxValid = false
		result.Errors = append(result.Errors, err.Error())
	}

	if result.SyntaxValid {
		expected := ExpectedClassName(packageName)
		classes := classDefRe.FindAllStringSubmatch(content, -1)
		if len(classes) == 0 {
			result.Errors = append(result.Errors, "No package class definition found")
		} else {
			matched := false
			for _, m := range classes {
				if strings.EqualFold(m[1], expected) {
					matched = true
					break
				}
			}
			if !matched {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("No class found matching expected package name pattern '%s'", expected))
			}
		}

		lower := strings.ToLower(content)
		if !strings.Contains(lower, "homepage") {
			result.Warnings = append(result.Warnings, "No homepage attribute found")
		}
		if !strings.Contains(lower, "url") && !strings.Contains(lower, "git") {
			result.Warnings = append(result.Warnings, "No URL or Git repository found")
		}
		if !strings.Contains(lower, "version(") {
			result.Warnings = append(result.Warnings, "No version definitions found")
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// checkBracketBalance scans for unbalanced brackets outside string literals
// and comments. Line numbers are 1-based.
func checkBracketBalance(content string) error {
	type open struct {
		ch   byte
		line int
	}
	var stack []open
	line := 1
	var inString byte
	inComment := false
	escaped := false

	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}

	for i := 0; i < len(content); i++ {
		c := content[i]
		if c == '\n' {
			line++
			inComment = false
			escaped = false
			continue
		}
		if inComment {
			continue
		}
		if inString != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == inString:
				inString = 0
			}
			continue
		}
		switch c {
		case '#':
			inComment = true
		case '"', '\'':
			inString = c
		case '(', '[', '{':
			stack = append(stack, open{ch: c, line: line})
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1].ch != pairs[c] {
				return fmt.Errorf("Syntax error on line %d: unbalanced '%c'", line, c)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		last := stack[len(stack)-1]
		return fmt.Errorf("Syntax error on line %d: unclosed '%c'", last.line, last.ch)
	}
	return nil
}
