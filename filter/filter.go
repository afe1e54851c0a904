// Package filter decides which registry tests are selected for a run.
//
// A filter is a set of tokens parsed from a user supplied string such as
// "aes,sha2 chacha20_test". A test is selected when its algorithm name or its
// stem is an exact, case-sensitive member of the set. An empty filter selects
// every test.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cryspen/mach-test/types"
)

var separators = regexp.MustCompile(`\W+`)

// UnmatchedPolicy controls what happens to filter tokens that name neither an
// algorithm nor a test.
type UnmatchedPolicy string

const (
	// UnmatchedIgnore silently selects nothing for the token.
	UnmatchedIgnore UnmatchedPolicy = "ignore"
	// UnmatchedWarn logs the token and otherwise behaves like UnmatchedIgnore.
	UnmatchedWarn UnmatchedPolicy = "warn"
	// UnmatchedError rejects the run before any test starts.
	UnmatchedError UnmatchedPolicy = "error"
)

// UnmatchedPolicies lists the valid policies.
var UnmatchedPolicies = []UnmatchedPolicy{UnmatchedIgnore, UnmatchedWarn, UnmatchedError}

// IsValid reports whether p is a known policy.
func (p UnmatchedPolicy) IsValid() bool {
	switch p {
	case UnmatchedIgnore, UnmatchedWarn, UnmatchedError:
		return true
	}
	return false
}

// UnmatchedTokensError is returned under UnmatchedError.
type UnmatchedTokensError struct {
	Tokens []string
}

func (e *UnmatchedTokensError) Error() string {
	return fmt.Sprintf("filter tokens match no algorithm or test: %s", strings.Join(e.Tokens, ", "))
}

// Filter is an immutable set of selection tokens.
type Filter struct {
	tokens []string
	set    map[string]struct{}
}

// Parse splits expr on any run of non-word characters and drops empty tokens.
func Parse(expr string) *Filter {
	return New(separators.Split(expr, -1)...)
}

// New builds a filter from explicit tokens. Empty and repeated tokens are dropped.
func New(tokens ...string) *Filter {
	f := &Filter{set: make(map[string]struct{})}
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if _, ok := f.set[tok]; ok {
			continue
		}
		f.set[tok] = struct{}{}
		f.tokens = append(f.tokens, tok)
	}
	return f
}

// Empty reports whether the filter selects everything.
func (f *Filter) Empty() bool {
	return f == nil || len(f.tokens) == 0
}

// Tokens returns the tokens in the order they were given.
func (f *Filter) Tokens() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.tokens...)
}

// Selected reports whether the test with the given stem, declared under
// algorithm, is selected.
func (f *Filter) Selected(algorithm, stem string) bool {
	if f.Empty() {
		return true
	}
	if _, ok := f.set[stem]; ok {
		return true
	}
	_, ok := f.set[algorithm]
	return ok
}

// Select returns the selected tests of reg in registry order.
func (f *Filter) Select(reg *types.TestRegistry) []types.TestSpec {
	var selected []types.TestSpec
	for _, spec := range reg.Specs() {
		if f.Selected(spec.Algorithm, spec.Stem) {
			selected = append(selected, spec)
		}
	}
	return selected
}

// Unmatched returns the tokens that name neither an algorithm nor a test stem of reg.
func (f *Filter) Unmatched(reg *types.TestRegistry) []string {
	if f.Empty() {
		return nil
	}
	known := make(map[string]struct{})
	for _, spec := range reg.Specs() {
		known[spec.Algorithm] = struct{}{}
		known[spec.Stem] = struct{}{}
	}
	if reg != nil {
		// Algorithms without tests are still valid names.
		for _, alg := range reg.Algorithms {
			known[alg.Name] = struct{}{}
		}
	}
	var unmatched []string
	for _, tok := range f.tokens {
		if _, ok := known[tok]; !ok {
			unmatched = append(unmatched, tok)
		}
	}
	return unmatched
}

// Check applies policy to the unmatched tokens of f. It returns the unmatched
// tokens and, under UnmatchedError, an *UnmatchedTokensError.
func (f *Filter) Check(reg *types.TestRegistry, policy UnmatchedPolicy) ([]string, error) {
	unmatched := f.Unmatched(reg)
	if len(unmatched) > 0 && policy == UnmatchedError {
		return unmatched, &UnmatchedTokensError{Tokens: unmatched}
	}
	return unmatched, nil
}

// String renders the filter for logging.
func (f *Filter) String() string {
	if f.Empty() {
		return "<all>"
	}
	return strings.Join(f.tokens, ",")
}
