package supervisor

import (
	"path/filepath"
	"regexp"
	"strings"
)

// matchGlob reports whether path (relative to the watch root) matches
// pattern, a standard shell glob extended with "**" for arbitrary depth.
// No third-party glob library appears anywhere in the retrieval pack this
// hub was built from, so "**" is expanded to a regex and single-segment
// globs fall back to filepath.Match, the same building block the standard
// library itself uses.
func matchGlob(pattern, path string) bool {
	if !strings.Contains(pattern, "**") {
		ok, err := filepath.Match(pattern, path)
		return err == nil && ok
	}
	return globRegexp(pattern).MatchString(path)
}

func globRegexp(pattern string) *regexp.Regexp {
	segments := strings.Split(pattern, "/")
	var b strings.Builder
	b.WriteString("^")
	for i, seg := range segments {
		if i > 0 && segments[i-1] != "**" {
			b.WriteString("/")
		}
		if seg == "**" {
			// "**/" matches zero or more whole directories; a trailing "**"
			// matches everything below.
			if i == len(segments)-1 {
				b.WriteString(".*")
			} else {
				b.WriteString("(?:.*/)?")
			}
			continue
		}
		b.WriteString(globSegmentToRegexp(seg))
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func globSegmentToRegexp(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		switch r {
		case '*':
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '.', '(', ')', '+', '|', '^', '$', '[', ']', '{', '}', '\\':
			b.WriteString(regexp.QuoteMeta(string(r)))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// uriTemplateRE matches a single "{segment}" placeholder in a resource URI
// template, per §4.5's guard: "{segment}" matches exactly one path segment.
var uriTemplateRE = regexp.MustCompile(`\{[^{}]+\}`)

// matchURITemplate reports whether uri satisfies template, converting each
// "{name}" placeholder into "[^/]+" before matching.
func matchURITemplate(template, uri string) bool {
	var b strings.Builder
	b.WriteString("^")

	rest := template
	for {
		loc := uriTemplateRE.FindStringIndex(rest)
		if loc == nil {
			b.WriteString(regexp.QuoteMeta(rest))
			break
		}
		b.WriteString(regexp.QuoteMeta(rest[:loc[0]]))
		b.WriteString("[^/]+")
		rest = rest[loc[1]:]
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(uri)
}
