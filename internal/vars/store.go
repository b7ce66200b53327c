// Package vars provides the variable scope shared across one job's
// execution tree: case-insensitive key/value pairs with secret flags,
// recursive $(name) macro expansion, and task-local override scopes that
// fall back to the parent scope on lookup.
package vars

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	"github.com/mrz1836/forge/internal/masker"
)

// macroPattern matches $(name) macro references inside variable values.
var macroPattern = regexp.MustCompile(`\$\(([a-zA-Z0-9._ -]+)\)`) //nolint:gochecknoglobals // compiled once

// Store holds one variable scope. The job scope is the root; task-local
// override scopes hold only their overrides and delegate missing lookups
// to the parent. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	parent *Store
	values map[string]domain.VariableValue
	masker *masker.Masker
}

// NewScope builds the job-level variable scope from the raw orchestrator
// values. Variables named by mask hints are stored as secrets and their
// values registered with the masker before expansion, so partially
// expanded secrets can never leak. Every value is then recursively macro
// expanded; warnings (cycles, depth overruns) are returned for the caller
// to emit once logging is up.
func NewScope(m *masker.Masker, raw map[string]string, maskHints []domain.MaskHint) (*Store, []string) {
	s := &Store{
		values: make(map[string]domain.VariableValue, len(raw)),
		masker: m,
	}

	secretNames := make(map[string]bool, len(maskHints))
	for _, hint := range maskHints {
		if strings.EqualFold(hint.Kind, "variable") {
			secretNames[strings.ToLower(hint.Value)] = true
		}
	}

	for name, value := range raw {
		key := strings.ToLower(name)
		secret := secretNames[key]
		if secret {
			m.AddValue(value)
		}
		s.values[key] = domain.VariableValue{Value: value, IsSecret: secret}
	}

	var warnings []string
	for key, v := range s.values {
		expanded, warn := s.expand(v.Value)
		if warn != "" {
			warnings = append(warnings, fmt.Sprintf("variable %q: %s", key, warn))
		}
		if expanded != v.Value {
			if v.IsSecret {
				m.AddValue(expanded)
			}
			s.values[key] = domain.VariableValue{Value: expanded, IsSecret: v.IsSecret}
		}
	}
	return s, warnings
}

// Child creates a task-local override scope layered on this store.
// Lookups fall back to the parent; writes stay local. The masker is
// shared so secrets registered in any scope redact everywhere.
func (s *Store) Child(overrides map[string]string) *Store {
	child := &Store{
		parent: s,
		values: make(map[string]domain.VariableValue, len(overrides)),
		masker: s.masker,
	}
	for name, value := range overrides {
		child.values[strings.ToLower(name)] = domain.VariableValue{Value: value}
	}
	return child
}

// Get returns the value of name, consulting parent scopes on a miss.
func (s *Store) Get(name string) (string, bool) {
	v, ok := s.GetValue(name)
	return v.Value, ok
}

// GetValue returns the value and secret flag of name.
func (s *Store) GetValue(name string) (domain.VariableValue, bool) {
	key := strings.ToLower(name)
	for scope := s; scope != nil; scope = scope.parent {
		scope.mu.RLock()
		v, ok := scope.values[key]
		scope.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return domain.VariableValue{}, false
}

// GetBool interprets name as a boolean, returning def when the variable
// is absent or unparsable.
func (s *Store) GetBool(name string, def bool) bool {
	raw, ok := s.Get(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return b
}

// Set writes name into this scope. Secret values are registered with the
// masker immediately.
func (s *Store) Set(name, value string, secret bool) {
	if secret {
		s.masker.AddValue(value)
	}
	s.mu.Lock()
	s.values[strings.ToLower(name)] = domain.VariableValue{Value: value, IsSecret: secret}
	s.mu.Unlock()
}

// SetGlobal writes name into the root scope so every context in the tree
// can read it. Used for qualified output variables ("<refName>.<name>").
func (s *Store) SetGlobal(name, value string, secret bool) {
	root := s
	for root.parent != nil {
		root = root.parent
	}
	root.Set(name, value, secret)
}

// Expand replaces $(name) macro references in text with their current
// values, recursively, up to constants.MaxExpansionDepth passes.
// Unresolvable references are left in place.
func (s *Store) Expand(text string) string {
	expanded, _ := s.expand(text)
	return expanded
}

// expand performs the recursive macro expansion and reports a warning
// string when the depth limit is hit (cyclic or pathological definitions).
func (s *Store) expand(text string) (string, string) {
	for depth := 0; depth < constants.MaxExpansionDepth; depth++ {
		replaced := false
		text = macroPattern.ReplaceAllStringFunc(text, func(macro string) string {
			name := macro[2 : len(macro)-1]
			if v, ok := s.Get(name); ok {
				replaced = true
				return v
			}
			return macro
		})
		if !replaced {
			return text, ""
		}
		// A self-referential value re-introduces its own macro each pass;
		// the depth bound turns that into a warning instead of a spin.
		if !macroPattern.MatchString(text) {
			return text, ""
		}
	}
	return text, fmt.Sprintf("macro expansion exceeded %d passes; value may be cyclic", constants.MaxExpansionDepth)
}
