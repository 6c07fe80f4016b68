// Copyright © 2024 The bpflint authors

package lint

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// ErrDuplicateRule is returned when a rule name is registered twice.
var ErrDuplicateRule = errors.New("duplicate rule name")

// lintNamePattern is the set of names a disable directive can refer to.
const lintNamePattern = `[A-Za-z0-9_-]+`

var validLintName = regexp.MustCompile(`^` + lintNamePattern + `$`)

// Registry is an ordered set of uniquely named rules.  Rules run in
// registration order; results are sorted afterwards so the order never
// affects output.  A Registry must not be modified while it is in use by a
// Linter.
type Registry struct {
	rules  []*Rule
	byName map[string]*Rule
}

// NewRegistry returns a registry holding rules.
func NewRegistry(rules ...*Rule) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Rule)}
	for _, rule := range rules {
		if err := r.Register(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds rule to the registry.
func (r *Registry) Register(rule *Rule) error {
	if rule == nil || rule.Run == nil {
		return errors.New("rule has no Run function")
	}
	if !validLintName.MatchString(rule.Name) {
		return fmt.Errorf("invalid rule name %q: must match %s", rule.Name, lintNamePattern)
	}
	if _, ok := r.byName[rule.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.Name)
	}
	if r.byName == nil {
		r.byName = make(map[string]*Rule)
	}
	r.byName[rule.Name] = rule
	r.rules = append(r.rules, rule)
	return nil
}

// MustRegister is like Register but panics on error.  It is intended for
// building registries at process start.
func (r *Registry) MustRegister(rules ...*Rule) {
	for _, rule := range rules {
		if err := r.Register(rule); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the rule with the given name.
func (r *Registry) Lookup(name string) (*Rule, bool) {
	rule, ok := r.byName[name]
	return rule, ok
}

// Has reports whether a rule with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Rules returns the registered rules in registration order.
func (r *Registry) Rules() []*Rule {
	return append([]*Rule(nil), r.rules...)
}

// Info describes a registered rule.
type Info struct {
	Name     string   `json:"name"`
	Doc      string   `json:"doc"`
	Severity Severity `json:"severity"`
}

// List describes every registered rule, sorted by name.
func (r *Registry) List() []Info {
	infos := make([]Info, 0, len(r.rules))
	for _, rule := range r.rules {
		infos = append(infos, Info{Name: rule.Name, Doc: rule.Doc, Severity: rule.Severity})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r := &Registry{}
	r.MustRegister(DefaultRules()...)
	return r
})

// DefaultRegistry returns the registry of built-in rules.  The registry is
// shared and must not be modified; build a new one with NewRegistry to add
// custom rules.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// DefaultRules returns the built-in set of lint checks.
func DefaultRules() []*Rule {
	return []*Rule{
		RuleProbeRead,
		RuleUnstableAttachPoint,
		RuleUntypedMapMember,
		RulePerfEventArray,
		RuleLegacyMapDefinition,
		RuleTracePrintk,
	}
}
