// Package ruleset compiles the user-supplied regex rule vector into a
// single combined matcher and holds it behind a per-core cell that the
// rule daemon can swap without blocking the data plane.
package ruleset

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Matcher is an immutable, concurrency-safe compiled ruleset. A nil
// *Matcher, or one compiled from zero patterns, matches nothing — the
// data plane starts with no admitted traffic until the first ruleset
// arrives over the control socket.
type Matcher struct {
	re *regexp.Regexp
}

// Compile combines patterns into a single alternation and compiles it.
// An empty or nil slice produces a Matcher that never matches. Any
// invalid pattern fails the whole document — regexp.Compile rejects
// the combined alternation rather than silently dropping the bad rule.
func Compile(patterns []string) (*Matcher, error) {
	if len(patterns) == 0 {
		return &Matcher{}, nil
	}

	parts := make([]string, len(patterns))
	for i, p := range patterns {
		parts[i] = "(?:" + p + ")"
	}
	combined := strings.Join(parts, "|")

	re, err := regexp.Compile(combined)
	if err != nil {
		return nil, fmt.Errorf("invalid rule pattern: %w", err)
	}
	return &Matcher{re: re}, nil
}

// Match reports whether payload is accepted by the ruleset.
func (m *Matcher) Match(payload []byte) bool {
	if m == nil || m.re == nil {
		return false
	}
	return m.re.Match(payload)
}

// Cell holds the current Matcher for one core behind a single-writer,
// many-reader lock. The compiled Matcher itself is immutable and safe
// for concurrent read-only use (RE2 has no mutable match state), so
// Clone shares the current Matcher by pointer and only duplicates the
// lock: each core still matches without contending on another core's
// cell, which is the property the data plane actually needs.
type Cell struct {
	mu      sync.RWMutex
	matcher *Matcher
}

// NewCell wraps an initial Matcher in a fresh cell.
func NewCell(m *Matcher) *Cell {
	return &Cell{matcher: m}
}

// Match reads the current matcher and applies it.
func (c *Cell) Match(payload []byte) bool {
	c.mu.RLock()
	m := c.matcher
	c.mu.RUnlock()
	return m.Match(payload)
}

// Swap installs a new Matcher, visible to subsequent Match calls.
func (c *Cell) Swap(m *Matcher) {
	c.mu.Lock()
	c.matcher = m
	c.mu.Unlock()
}

// Clone returns a new Cell seeded with this cell's current matcher.
func (c *Cell) Clone() *Cell {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Cell{matcher: c.matcher}
}
