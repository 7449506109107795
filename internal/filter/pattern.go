package filter

import (
	"regexp"
	"strings"
)

// compiledPattern is a glob compiled to a regular expression over
// slash-separated relative paths. Matching ignores case because mod
// archives are authored for case-insensitive filesystems.
type compiledPattern struct {
	re       *regexp.Regexp
	original string
	dirOnly  bool
}

// compilePattern converts an rsync-style glob into a matcher.
//
//   - a trailing / restricts the pattern to directories
//   - a leading /, or any / inside the pattern, anchors it at the mod root
//   - otherwise the pattern matches the final path components
func compilePattern(pattern string) (*compiledPattern, error) {
	cp := &compiledPattern{original: pattern}

	p := strings.ReplaceAll(pattern, "\\", "/")
	if strings.HasSuffix(p, "/") {
		cp.dirOnly = true
		p = strings.TrimSuffix(p, "/")
	}

	anchored := strings.Contains(p, "/")
	p = strings.TrimPrefix(p, "/")

	prefix := "(^|/)"
	if anchored {
		prefix = "^"
	}
	re, err := regexp.Compile("(?i)" + prefix + globToRegex(p) + "$")
	if err != nil {
		return nil, err
	}
	cp.re = re
	return cp, nil
}

func (cp *compiledPattern) match(relPath string, isDir bool) bool {
	if cp.dirOnly && !isDir {
		return false
	}
	return cp.re.MatchString(relPath)
}

// globToRegex converts a glob to a regex fragment: ** crosses directory
// boundaries, * and ? do not, and [...] / [!...] are character classes.
func globToRegex(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch {
		case strings.HasPrefix(pattern[i:], "**/"):
			b.WriteString("(.*/)?")
			i += 3
		case strings.HasPrefix(pattern[i:], "**"):
			b.WriteString(".*")
			i += 2
		case c == '*':
			b.WriteString("[^/]*")
			i++
		case c == '?':
			b.WriteString("[^/]")
			i++
		case c == '[':
			end := classEnd(pattern, i)
			if end < 0 {
				b.WriteString(regexp.QuoteMeta("["))
				i++
				continue
			}
			cls := pattern[i+1 : end]
			if strings.HasPrefix(cls, "!") {
				cls = "^" + cls[1:]
			}
			b.WriteString("[" + cls + "]")
			i = end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	return b.String()
}

// classEnd returns the index of the ] closing the class opened at start,
// or -1. A ] directly after [ or [! is a literal member.
func classEnd(pattern string, start int) int {
	j := start + 1
	if j < len(pattern) && pattern[j] == '!' {
		j++
	}
	if j < len(pattern) && pattern[j] == ']' {
		j++
	}
	for ; j < len(pattern); j++ {
		if pattern[j] == ']' {
			return j
		}
	}
	return -1
}
