// Package filter decides which mod files reach the merged overlay layer.
package filter

import (
	"fmt"
	"strings"
)

// Rule is a single include or exclude rule.
type Rule struct {
	pattern *compiledPattern
	Include bool
}

// Pattern returns the rule's source glob.
func (r Rule) Pattern() string { return r.pattern.original }

// Chain is an ordered list of rules; the first matching rule wins and
// unmatched paths are kept.
type Chain struct {
	rules []Rule
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// Parse builds a chain from merge_exclude entries. An entry is a glob,
// optionally prefixed with "+ " (keep) or "- " (exclude, the default).
// Blank entries and entries starting with # are ignored.
func Parse(entries []string) (*Chain, error) {
	c := NewChain()
	for i, raw := range entries {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var err error
		switch {
		case strings.HasPrefix(line, "+ "):
			err = c.Include(strings.TrimSpace(line[2:]))
		case strings.HasPrefix(line, "- "):
			err = c.Exclude(strings.TrimSpace(line[2:]))
		default:
			err = c.Exclude(line)
		}
		if err != nil {
			return nil, fmt.Errorf("merge_exclude entry %d (%q): %w", i+1, raw, err)
		}
	}
	return c, nil
}

// Exclude appends a rule dropping paths that match pattern.
func (c *Chain) Exclude(pattern string) error {
	return c.add(pattern, false)
}

// Include appends a rule keeping paths that match pattern.
func (c *Chain) Include(pattern string) error {
	return c.add(pattern, true)
}

func (c *Chain) add(pattern string, include bool) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{pattern: cp, Include: include})
	return nil
}

// Rules returns the chain's rules in evaluation order.
func (c *Chain) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Empty reports whether the chain has no rules.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0
}

// Match reports whether relPath should be kept.
func (c *Chain) Match(relPath string, isDir bool) bool {
	relPath = strings.ReplaceAll(relPath, "\\", "/")
	for _, rule := range c.rules {
		if rule.pattern.match(relPath, isDir) {
			return rule.Include
		}
	}
	return true
}

// Skip is the negation of Match, shaped for platform.SkipFunc.
func (c *Chain) Skip(relPath string, isDir bool) bool {
	return !c.Match(relPath, isDir)
}
