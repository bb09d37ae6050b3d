package util

import (
	"path"
	"regexp"
	"strings"
)

// MatchGlob reports whether name matches the glob pattern.
// Invalid patterns never match.
func MatchGlob(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// MatchAnyGlob reports whether name matches any of the glob patterns.
// An empty pattern list matches everything.
func MatchAnyGlob(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if MatchGlob(p, name) {
			return true
		}
	}
	return false
}

// MatchText reports whether text matches the glob pattern with fnmatch
// semantics: unlike path.Match, * and ? also match path separators, so
// patterns work on free-form text such as error messages containing
// interface names or file paths. Invalid patterns never match.
func MatchText(pattern, text string) bool {
	re, err := regexp.Compile(globRegexp(pattern))
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

// globRegexp translates a glob pattern into an anchored regular expression.
// Character classes pass through, with a leading ! negating the class.
func globRegexp(pattern string) string {
	var sb strings.Builder
	sb.WriteString(`(?s)^`)
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			sb.WriteString(`.*`)
		case '?':
			sb.WriteString(`.`)
		case '[':
			j := i + 1
			if j < len(pattern) && pattern[j] == '!' {
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j >= len(pattern) {
				// unterminated class: treat the bracket literally
				sb.WriteString(`\[`)
				continue
			}
			set := strings.ReplaceAll(pattern[i+1:j], `\`, `\\`)
			if strings.HasPrefix(set, "!") {
				set = "^" + set[1:]
			}
			sb.WriteString("[" + set + "]")
			i = j
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	sb.WriteString(`$`)
	return sb.String()
}
