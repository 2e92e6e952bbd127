package optimizer

import (
	"github.com/oklog/ulid/v2"
	"github.com/tidwall/btree"
)

// Stats describes a single invocation of the rewrite engine.
type Stats struct {
	InvocationID ulid.ULID
	Group        RuleGroup
	// Skipped is set when the tree exceeded the size limit and no rules were applied.
	Skipped   bool
	Steps     int
	NodeCount int

	ProjectionPruningRequired bool
	NullabilityRulesRequired  bool

	rules *btree.Generic[*RuleStats]
}

// RuleStats counts how often a rule's pattern matched and how often the rule changed the tree.
type RuleStats struct {
	Name    string
	Matched int
	Changed int
}

func newStats(invocationID ulid.ULID) *Stats {
	return &Stats{
		InvocationID: invocationID,
		rules: btree.NewGenericOptions(func(a, b *RuleStats) bool {
			return a.Name < b.Name
		}, btree.Options{NoLocks: true}),
	}
}

func (s *Stats) rule(name string) *RuleStats {
	item, ok := s.rules.Get(&RuleStats{Name: name})
	if !ok {
		item = &RuleStats{Name: name}
		s.rules.Set(item)
	}
	return item
}

func (s *Stats) recordMatch(name string) {
	s.rule(name).Matched++
}

func (s *Stats) recordChange(name string) {
	s.rule(name).Changed++
}

// Rules returns the counters of every rule which matched at least once, ordered by rule name.
func (s *Stats) Rules() []RuleStats {
	out := make([]RuleStats, 0, s.rules.Len())
	s.rules.Scan(func(item *RuleStats) bool {
		out = append(out, *item)
		return true
	})
	return out
}

// Merge adds the counters of other to s.
func (s *Stats) Merge(other *Stats) {
	s.Steps += other.Steps
	if other.NodeCount > s.NodeCount {
		s.NodeCount = other.NodeCount
	}
	s.ProjectionPruningRequired = s.ProjectionPruningRequired || other.ProjectionPruningRequired
	s.NullabilityRulesRequired = s.NullabilityRulesRequired || other.NullabilityRulesRequired
	other.rules.Scan(func(item *RuleStats) bool {
		mine := s.rule(item.Name)
		mine.Matched += item.Matched
		mine.Changed += item.Changed
		return true
	})
}
