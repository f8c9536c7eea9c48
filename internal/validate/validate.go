// Package validate runs plausibility rules over a reconciled building
// model. Rules never fail a document; they attach warnings so a reviewer
// knows which inputs fall outside typical ranges before trusting the load
// numbers.
package validate

import (
	"log"
	"sort"

	"loadplan/internal/domain"
)

// Rule is one built-in plausibility check.
type Rule interface {
	// Key identifies the rule and doubles as the warning code.
	Key() string
	// Name is the human-readable rule name.
	Name() string
	// Check returns one warning per finding, nothing when the model passes.
	Check(model *domain.BuildingModel) []domain.Warning
}

// Registry maps rule keys to Rule implementations.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// Register adds a rule to the registry.
func (r *Registry) Register(rule Rule) {
	r.rules[rule.Key()] = rule
}

// Get returns the rule for a given key, or nil if not registered.
func (r *Registry) Get(key string) Rule {
	return r.rules[key]
}

// All returns every registered rule in key order, so repeated runs report
// findings in the same sequence.
func (r *Registry) All() []Rule {
	keys := make([]string, 0, len(r.rules))
	for k := range r.rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Rule, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.rules[k])
	}
	return out
}

// Checker runs a registry of rules against building models.
type Checker struct {
	registry *Registry
}

// NewChecker creates a Checker preloaded with the built-in rules.
func NewChecker() *Checker {
	registry := NewRegistry()
	for _, rule := range BuiltinRules() {
		registry.Register(rule)
	}
	return &Checker{registry: registry}
}

// NewCheckerWithRegistry creates a Checker over a caller-assembled
// registry.
func NewCheckerWithRegistry(registry *Registry) *Checker {
	return &Checker{registry: registry}
}

// Check runs every rule and collects the findings.
func (c *Checker) Check(model *domain.BuildingModel) []domain.Warning {
	var warnings []domain.Warning
	for _, rule := range c.registry.All() {
		warnings = append(warnings, rule.Check(model)...)
	}
	if len(warnings) > 0 {
		log.Printf("validate.Checker: %d finding(s) across %d rule(s)", len(warnings), len(c.registry.rules))
	}
	return warnings
}
