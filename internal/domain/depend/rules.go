// Package depend implements the dependency rules that chain report jobs:
// when a parent job completes, matching rules enqueue follow-up jobs. Rules
// are static configuration loaded once at startup.
package depend

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caseworks/report-engine/internal/domain/model"
)

// Rule describes one dependency edge. Single rules name one parent report
// type; fan-in rules list several and fire only when every listed type has a
// completed job for the same role. Dependent fields left empty inherit from
// the triggering parent.
type Rule struct {
	Name              string   `yaml:"name"`
	ParentReportType  string   `yaml:"parentReportType"`
	ParentReportTypes []string `yaml:"parentReportTypes"`
	ParentRole        string   `yaml:"parentRole"`
	TriggerOn         string   `yaml:"triggerOn"`

	DependentReportType   string `yaml:"dependentReportType"`
	DependentRole         string `yaml:"dependentRole"`
	DependentTargetSystem string `yaml:"dependentTargetSystem"`
	DependentDataFormat   string `yaml:"dependentDataFormat"`
	DependentPriority     *int   `yaml:"dependentPriority"`
	DependentChunkSize    *int   `yaml:"dependentChunkSize"`
}

// FanIn reports whether the rule requires multiple parent types.
func (r Rule) FanIn() bool {
	return len(r.ParentReportTypes) > 0
}

// ParentTypes returns the required parent report types, one entry for single
// rules.
func (r Rule) ParentTypes() []string {
	if r.FanIn() {
		return r.ParentReportTypes
	}
	return []string{r.ParentReportType}
}

// Trigger returns the parent status the rule fires on, COMPLETED by default.
func (r Rule) Trigger() model.JobStatus {
	if r.TriggerOn == "" {
		return model.JobStatusCompleted
	}
	return model.JobStatus(strings.ToUpper(r.TriggerOn))
}

// Key identifies the rule for logging and for the advisory lock that guards
// fan-in evaluation. Named rules use their name; anonymous rules derive a
// stable key from their shape.
func (r Rule) Key() string {
	if r.Name != "" {
		return r.Name
	}
	parents := append([]string(nil), r.ParentTypes()...)
	sort.Strings(parents)
	return strings.Join(parents, "+") + ">" + r.DependentReportType
}

// Matches reports whether a parent transition satisfies this rule's trigger
// condition. Fan-in completeness is checked separately against the store.
func (r Rule) Matches(parentType, parentRole string, status model.JobStatus) bool {
	if status != r.Trigger() {
		return false
	}
	if r.ParentRole != "" && r.ParentRole != parentRole {
		return false
	}
	for _, t := range r.ParentTypes() {
		if t == parentType {
			return true
		}
	}
	return false
}

// Validate checks the rule's shape. Exactly one of parentReportType and
// parentReportTypes must be set.
func (r Rule) Validate() error {
	single := r.ParentReportType != ""
	multi := len(r.ParentReportTypes) > 0
	switch {
	case single && multi:
		return fmt.Errorf("rule %q sets both parentReportType and parentReportTypes", r.Key())
	case !single && !multi:
		return fmt.Errorf("dependency rule needs parentReportType or parentReportTypes")
	}
	if r.DependentReportType == "" {
		return fmt.Errorf("rule %q has no dependentReportType", r.Key())
	}
	if r.TriggerOn != "" && !r.Trigger().Valid() {
		return fmt.Errorf("rule %q has unknown triggerOn %q", r.Key(), r.TriggerOn)
	}
	if r.DependentDataFormat != "" && !model.DataFormat(strings.ToUpper(r.DependentDataFormat)).Valid() {
		return fmt.Errorf("rule %q has unknown dependentDataFormat %q", r.Key(), r.DependentDataFormat)
	}
	if r.DependentPriority != nil && (*r.DependentPriority < 0 || *r.DependentPriority > 100) {
		return fmt.Errorf("rule %q priority %d out of range", r.Key(), *r.DependentPriority)
	}
	if r.DependentChunkSize != nil && *r.DependentChunkSize < 0 {
		return fmt.Errorf("rule %q has negative dependentChunkSize", r.Key())
	}
	return nil
}

// RuleSet is the validated, cycle-free collection of dependency rules.
type RuleSet struct {
	Rules []Rule
}

// ruleFile is the on-disk shape. The same file carries cron profiles, which
// this package ignores.
type ruleFile struct {
	Dependencies []Rule `yaml:"dependencies"`
}

// Load reads and validates the rule file. A missing or empty file yields an
// empty rule set so deployments without chaining need no config.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RuleSet{}, nil
		}
		return nil, fmt.Errorf("read dependency rules %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates raw YAML into a RuleSet, rejecting malformed rules and
// cyclic rule graphs.
func Parse(data []byte) (*RuleSet, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse dependency rules: %w", err)
	}
	for i, r := range f.Dependencies {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("dependency rule %d: %w", i, err)
		}
	}
	if cycle := findCycle(f.Dependencies); cycle != nil {
		return nil, fmt.Errorf("dependency rules form a cycle: %s", strings.Join(cycle, " -> "))
	}
	return &RuleSet{Rules: f.Dependencies}, nil
}

// MatchesFor returns the rules triggered by a parent reaching the given
// status.
func (s *RuleSet) MatchesFor(parentType, parentRole string, status model.JobStatus) []Rule {
	var out []Rule
	for _, r := range s.Rules {
		if r.Matches(parentType, parentRole, status) {
			out = append(out, r)
		}
	}
	return out
}

// Empty reports whether no rules are configured.
func (s *RuleSet) Empty() bool {
	return len(s.Rules) == 0
}

// findCycle walks the report-type graph induced by the rules and returns the
// first cycle found as a type path, or nil.
func findCycle(rules []Rule) []string {
	edges := make(map[string][]string)
	for _, r := range rules {
		for _, parent := range r.ParentTypes() {
			edges[parent] = append(edges[parent], r.DependentReportType)
		}
	}

	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int)
	var path []string

	var visit func(node string) []string
	visit = func(node string) []string {
		color[node] = grey
		path = append(path, node)
		for _, next := range edges[node] {
			switch color[next] {
			case grey:
				// Close the loop for the error message.
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				return append(append([]string(nil), path[start:]...), next)
			case white:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}
		color[node] = black
		path = path[:len(path)-1]
		return nil
	}

	nodes := make([]string, 0, len(edges))
	for n := range edges {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if color[n] == white {
			if cycle := visit(n); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
