package optimizer

import (
	"crypto/rand"
	"log"

	"github.com/oklog/ulid/v2"

	"github.com/cube2222/octoplan/plan"
)

type Options struct {
	// MaxNodeCount is the largest tree the rules will be applied to. Larger trees are left as is.
	MaxNodeCount int
	// MaxScalarTreeSize is the number of non-leaf nodes above which a definition
	// referenced more than twice won't be inlined.
	MaxScalarTreeSize int
	AnsiNullSemantics bool
	Verbose           bool
	DisabledRules     map[string]bool
}

func DefaultOptions() Options {
	return Options{
		MaxNodeCount:      100000,
		MaxScalarTreeSize: 100,
		AnsiNullSemantics: true,
	}
}

type Option func(options *Options)

func WithMaxNodeCount(count int) Option {
	return func(options *Options) {
		options.MaxNodeCount = count
	}
}

func WithMaxScalarTreeSize(size int) Option {
	return func(options *Options) {
		options.MaxScalarTreeSize = size
	}
}

func WithAnsiNullSemantics(enabled bool) Option {
	return func(options *Options) {
		options.AnsiNullSemantics = enabled
	}
}

func WithVerbose(verbose bool) Option {
	return func(options *Options) {
		options.Verbose = verbose
	}
}

func WithDisabledRules(names ...string) Option {
	return func(options *Options) {
		if options.DisabledRules == nil {
			options.DisabledRules = make(map[string]bool)
		}
		for _, name := range names {
			options.DisabledRules[name] = true
		}
	}
}

// Apply rewrites p.Root with the rules of the group until no rule applies.
// It reports whether the tree changed.
func Apply(p *plan.Plan, group RuleGroup, opts ...Option) bool {
	changed, _ := ApplyWithStats(p, group, opts...)
	return changed
}

func ApplyWithStats(p *plan.Plan, group RuleGroup, opts ...Option) (bool, *Stats) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	ctx := newContext(p, options, ulid.MustNew(ulid.Now(), rand.Reader))
	stats := ctx.stats
	stats.Group = group
	stats.NodeCount = countNodes(p.Root)
	if stats.NodeCount > options.MaxNodeCount {
		log.Printf("optimizer %s: tree has %d nodes, over the limit of %d, skipping %s rules", stats.InvocationID, stats.NodeCount, options.MaxNodeCount, group)
		stats.Skipped = true
		return false, stats
	}

	log.Printf("optimizer %s: applying %s rules to %d nodes", stats.InvocationID, group, stats.NodeCount)
	pr := newProcessor(ctx, buildRuleTable(options.DisabledRules, group.rules()...))
	root, changed := pr.applyToTree(p.Root)
	p.Root = root

	stats.Steps = pr.steps
	stats.ProjectionPruningRequired = ctx.ProjectionPruningRequired()
	stats.NullabilityRulesRequired = ctx.NullabilityRulesRequired()
	log.Printf("optimizer %s: done after %d steps", stats.InvocationID, stats.Steps)
	return changed, stats
}

// Optimize applies all rules, and then the nullability rules for as long as
// the previous pass exposed new non-nullable variables.
func Optimize(p *plan.Plan, opts ...Option) *Stats {
	changed, stats := ApplyWithStats(p, RuleGroupAll, opts...)
	needsNullability := stats.NullabilityRulesRequired
	for changed && needsNullability {
		var pass *Stats
		changed, pass = ApplyWithStats(p, RuleGroupNullability, opts...)
		needsNullability = pass.NullabilityRulesRequired
		stats.Merge(pass)
	}
	return stats
}

func countNodes(n *plan.Node) int {
	if n == nil {
		return 0
	}
	count := 1
	for i := 0; i < n.ChildCount(); i++ {
		count += countNodes(n.Child(i))
	}
	return count
}
