package workflows

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/okhara/stagecraft/search"
)

// SplitPlanLines turns a planner's newline-separated query list into a
// clean slice: blank lines dropped, bullet prefixes stripped.
func SplitPlanLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "* ")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// SelectURL interprets a selector model's reply. A reply without "http"
// means no usable link was found.
func SelectURL(text string) (string, bool) {
	url := strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"`))
	if !strings.Contains(url, "http") {
		return "", false
	}
	return url, true
}

// ParseVerdict interprets a verifier reply: "PASSED" anywhere accepts the
// result; anything else is a rejection whose text (minus the "FAILED:"
// tag) becomes the critique.
func ParseVerdict(text string) (passed bool, critique string) {
	if strings.Contains(text, "PASSED") {
		return true, ""
	}
	return false, strings.TrimSpace(strings.Replace(text, "FAILED:", "", 1))
}

// FormatResults renders search hits as plain text for a prompt, keeping
// the URL next to every snippet so citations survive summarization.
func FormatResults(results []search.Result) string {
	if len(results) == 0 {
		return "No results found."
	}
	var sb strings.Builder
	for _, r := range results {
		sb.WriteString("- ")
		sb.WriteString(r.Title)
		sb.WriteString(" (")
		sb.WriteString(r.URL)
		sb.WriteString(")\n  ")
		sb.WriteString(r.Snippet)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

var (
	pyImportRE     = regexp.MustCompile(`(?m)^\s*import\s+(.+)$`)
	pyFromImportRE = regexp.MustCompile(`(?m)^\s*from\s+([A-Za-z_][A-Za-z0-9_.]*)\s+import\b`)
)

// pythonStdlib covers the modules generated scripts commonly import; a
// stdlib module slipping through costs one harmless failed install.
var pythonStdlib = map[string]struct{}{
	"abc": {}, "argparse": {}, "array": {}, "ast": {}, "asyncio": {},
	"base64": {}, "bisect": {}, "collections": {}, "contextlib": {},
	"copy": {}, "csv": {}, "dataclasses": {}, "datetime": {}, "decimal": {},
	"enum": {}, "fractions": {}, "functools": {}, "glob": {}, "hashlib": {},
	"heapq": {}, "io": {}, "itertools": {}, "json": {}, "logging": {},
	"math": {}, "operator": {}, "os": {}, "pathlib": {}, "pickle": {},
	"queue": {}, "random": {}, "re": {}, "shutil": {}, "socket": {},
	"sqlite3": {}, "statistics": {}, "string": {}, "struct": {},
	"subprocess": {}, "sys": {}, "tempfile": {}, "textwrap": {},
	"threading": {}, "time": {}, "traceback": {}, "types": {},
	"typing": {}, "unittest": {}, "urllib": {}, "uuid": {}, "warnings": {},
	"xml": {}, "zlib": {},
}

// PythonThirdPartyImports extracts top-level module names imported by the
// given Python sources, minus the standard library. The result is sorted
// and deduplicated.
func PythonThirdPartyImports(sources ...string) []string {
	seen := make(map[string]struct{})
	add := func(name string) {
		name = strings.TrimSpace(name)
		if i := strings.IndexByte(name, '.'); i >= 0 {
			name = name[:i]
		}
		if name == "" {
			return
		}
		if _, std := pythonStdlib[name]; std {
			return
		}
		seen[name] = struct{}{}
	}
	for _, src := range sources {
		for _, m := range pyImportRE.FindAllStringSubmatch(src, -1) {
			for _, part := range strings.Split(m[1], ",") {
				fields := strings.Fields(part)
				if len(fields) > 0 {
					add(fields[0])
				}
			}
		}
		for _, m := range pyFromImportRE.FindAllStringSubmatch(src, -1) {
			add(m[1])
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// clip truncates text for a prompt without splitting the trailing rune
// context a model needs.
func clip(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
