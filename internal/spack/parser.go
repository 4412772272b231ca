package spack

import (
	"strings"
	"unicode"
)

// Section headers emitted by `spack info`, matched literally at zero
// indentation.
const (
	headerDescription = "Description:"
	headerHomepage    = "Homepage:"
	headerPreferred   = "Preferred version:"
	headerSafe        = "Safe versions:"
	headerDeprecated  = "Deprecated versions:"
	headerVariants    = "Variants:"
	headerBuildDeps   = "Build Dependencies:"
	headerLinkDeps    = "Link Dependencies:"
	headerRunDeps     = "Run Dependencies:"
	headerLicenses    = "Licenses:"
)

// unavailableDescription is the sentinel used when the info invocation
// itself failed upstream.
const unavailableDescription = "Package information unavailable"

// noneSentinel is spack's literal for an empty section.
const noneSentinel = "None"

// lineCursor walks lines of console output, making section boundaries and
// lookahead explicit instead of hiding them in loop counters.
type lineCursor struct {
	lines []string
	pos   int
}

func newLineCursor(text string) *lineCursor {
	return &lineCursor{lines: strings.Split(text, "\n")}
}

func (c *lineCursor) more() bool   { return c.pos < len(c.lines) }
func (c *lineCursor) line() string { return c.lines[c.pos] }
func (c *lineCursor) advance()     { c.pos++ }

// continuation reports whether a raw line belongs to the currently open
// section: indented by the fixed margin, or blank.
func continuation(raw string) bool {
	return strings.HasPrefix(raw, "    ") || strings.TrimSpace(raw) == ""
}

// newDescriptor returns a descriptor with all collection fields initialized
// so absent sections serialize as empty lists, not null.
func newDescriptor(name, version string) *PackageDescriptor {
	if version == "" {
		version = "latest"
	}
	return &PackageDescriptor{
		Name:               name,
		Version:            version,
		SafeVersions:       []VersionRef{},
		DeprecatedVersions: []VersionRef{},
		Variants:           []VariantSpec{},
		BuildDependencies:  []string{},
		LinkDependencies:   []string{},
		RunDependencies:    []string{},
		Licenses:           []string{},
	}
}

// UnavailableDescriptor is returned when the info invocation failed; the
// parser itself never raises.
func UnavailableDescriptor(name, version string) *PackageDescriptor {
	if version == "" {
		version = "unknown"
	}
	d := newDescriptor(name, version)
	d.Description = unavailableDescription
	return d
}

// ParseInfo turns the full text of a `spack info` invocation into a
// PackageDescriptor. Unrecognized lines are ignored so unknown additions to
// the tool's output degrade a single field, never the whole parse.
func ParseInfo(name, version, text string) *PackageDescriptor {
	d := newDescriptor(name, version)
	cur := newLineCursor(text)

	// The first line carries the package-kind tag, e.g.
	// "BundlePackage:   dummy-test".
	if cur.more() {
		first := cur.line()
		if !strings.HasPrefix(first, " ") && strings.Contains(first, ":") {
			d.PackageType = strings.TrimSpace(strings.SplitN(first, ":", 2)[0])
		}
	}

	for cur.more() {
		line := strings.TrimSpace(cur.line())
		switch {
		case strings.HasPrefix(line, headerDescription):
			inline := strings.TrimSpace(strings.TrimPrefix(line, headerDescription))
			cur.advance()
			d.Description = joinDescription(inline, parseTextBlock(cur))
		case strings.HasPrefix(line, headerHomepage):
			d.Homepage = strings.TrimSpace(strings.TrimPrefix(line, headerHomepage))
			cur.advance()
		case strings.HasPrefix(line, headerPreferred):
			cur.advance()
			if refs := parseVersionBlock(cur); len(refs) > 0 {
				d.PreferredVersion = &refs[0]
			}
		case strings.HasPrefix(line, headerSafe):
			cur.advance()
			d.SafeVersions = parseVersionBlock(cur)
		case strings.HasPrefix(line, headerDeprecated):
			cur.advance()
			d.DeprecatedVersions = parseVersionBlock(cur)
		case strings.HasPrefix(line, headerVariants):
			cur.advance()
			d.Variants = parseVariantBlock(cur)
		case strings.HasPrefix(line, headerBuildDeps):
			cur.advance()
			d.BuildDependencies = parseDependencyBlock(cur)
		case strings.HasPrefix(line, headerLinkDeps):
			cur.advance()
			d.LinkDependencies = parseDependencyBlock(cur)
		case strings.HasPrefix(line, headerRunDeps):
			cur.advance()
			d.RunDependencies = parseDependencyBlock(cur)
		case strings.HasPrefix(line, headerLicenses):
			inline := strings.TrimSpace(strings.TrimPrefix(line, headerLicenses))
			cur.advance()
			if inline == "" {
				inline = nextNonEmptyContinuation(cur)
			}
			if inline != "" && inline != noneSentinel {
				d.Licenses = []string{inline}
			}
		default:
			cur.advance()
		}
	}
	return d
}

// parseTextBlock consumes indented continuation lines and joins their text
// with single spaces. Blank lines end the block.
func parseTextBlock(cur *lineCursor) string {
	var parts []string
	for cur.more() {
		raw := cur.line()
		if !strings.HasPrefix(raw, "    ") || strings.TrimSpace(raw) == "" {
			break
		}
		parts = append(parts, strings.TrimSpace(raw))
		cur.advance()
	}
	return strings.Join(parts, " ")
}

func joinDescription(inline, rest string) string {
	switch {
	case inline == "":
		return rest
	case rest == "":
		return inline
	default:
		return inline + " " + rest
	}
}

// parseVersionBlock consumes a version section. Each line splits on
// whitespace: the first token is the version label, the second (if present)
// the source URL. Literal "None" lines contribute nothing.
func parseVersionBlock(cur *lineCursor) []VersionRef {
	refs := []VersionRef{}
	for cur.more() {
		raw := cur.line()
		if !continuation(raw) {
			break
		}
		cur.advance()

		line := strings.TrimSpace(raw)
		if line == "" || line == noneSentinel {
			continue
		}
		fields := strings.Fields(line)
		ref := VersionRef{Version: fields[0]}
		if len(fields) > 1 {
			ref.URL = fields[1]
		}
		refs = append(refs, ref)
	}
	return refs
}

// parseVariantBlock consumes the Variants section. A bracketed span starts a
// new variant; a line starting with "when " attaches to the variant still
// being accumulated. At most one variant accumulates at any step.
func parseVariantBlock(cur *lineCursor) []VariantSpec {
	variants := []VariantSpec{}
	var current *VariantSpec

	flush := func() {
		if current != nil {
			variants = append(variants, *current)
			current = nil
		}
	}

	for cur.more() {
		raw := cur.line()
		if !continuation(raw) {
			break
		}
		cur.advance()

		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "when ") {
			// Attaching to a non-existent current variant is a no-op.
			if current != nil {
				current.Conditional = line
			}
			continue
		}

		open := strings.Index(line, "[")
		closing := strings.Index(line, "]")
		if open <= 0 || closing <= open {
			continue
		}

		flush()
		v := VariantSpec{
			Name:    strings.TrimSpace(line[:open]),
			Default: strings.TrimSpace(line[open+1 : closing]),
			Values:  []string{},
		}
		remaining := strings.TrimSpace(line[closing+1:])
		if remaining != "" {
			if strings.Contains(remaining, ",") {
				for _, val := range strings.Split(remaining, ",") {
					v.Values = append(v.Values, strings.TrimSpace(val))
				}
			} else if startsUpper(remaining) {
				// A capitalized remainder is free text, not a value list.
				v.Description = remaining
			} else {
				v.Values = append(v.Values, remaining)
			}
		}
		current = &v
	}
	flush()
	return variants
}

// parseDependencyBlock consumes a dependency section, splitting each line on
// whitespace into individual names. "None" contributes nothing.
func parseDependencyBlock(cur *lineCursor) []string {
	deps := []string{}
	for cur.more() {
		raw := cur.line()
		if !continuation(raw) {
			break
		}
		cur.advance()

		line := strings.TrimSpace(raw)
		if line == "" || line == noneSentinel {
			continue
		}
		deps = append(deps, strings.Fields(line)...)
	}
	return deps
}

// nextNonEmptyContinuation returns the first non-empty continuation line,
// consuming the block it belongs to.
func nextNonEmptyContinuation(cur *lineCursor) string {
	value := ""
	for cur.more() {
		raw := cur.line()
		if !continuation(raw) {
			break
		}
		cur.advance()
		if value == "" {
			value = strings.TrimSpace(raw)
		}
	}
	return value
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
