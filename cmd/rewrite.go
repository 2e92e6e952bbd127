package cmd

import (
	"fmt"

	"github.com/dgraph-io/ristretto"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/cube2222/octoplan/document"
	"github.com/cube2222/octoplan/optimizer"
	"github.com/cube2222/octoplan/outputs"
	"github.com/cube2222/octoplan/plan"
)

type rewriter struct {
	// group overrides the document's own group when non-empty.
	group   string
	options []optimizer.Option
	diff    bool
	cache   *ristretto.Cache
}

type cachedRewrite struct {
	dump  string
	diff  string
	stats *optimizer.Stats
}

func newRewriteCache(maxEntries int) (*ristretto.Cache, error) {
	return ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(maxEntries) * 10,
		MaxCost:     int64(maxEntries),
		BufferItems: 64,
	})
}

func (r *rewriter) resolveGroup(doc *document.Document) (optimizer.RuleGroup, error) {
	name := r.group
	if name == "" {
		name = doc.Group
	}
	if name == "" {
		return optimizer.RuleGroupAll, nil
	}
	return optimizer.ParseRuleGroup(name)
}

// rewrite decodes the document and applies the rule group to it, leaving the rewritten tree in the returned document.
func (r *rewriter) rewrite(data []byte) (*document.Document, *cachedRewrite, error) {
	doc, err := document.Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't decode document: %w", err)
	}
	group, err := r.resolveGroup(doc)
	if err != nil {
		return nil, nil, err
	}

	before := plan.Dump(doc.Plan.Root)
	var stats *optimizer.Stats
	if group == optimizer.RuleGroupAll {
		stats = optimizer.Optimize(doc.Plan, r.options...)
	} else {
		_, stats = optimizer.ApplyWithStats(doc.Plan, group, r.options...)
	}
	out := &cachedRewrite{
		dump:  plan.Dump(doc.Plan.Root),
		stats: stats,
	}
	if r.diff {
		out.diff, err = difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(before),
			B:        difflib.SplitLines(out.dump),
			FromFile: "Original Tree",
			ToFile:   "Rewritten Tree",
			Context:  2,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't diff trees: %w", err)
		}
	}
	return doc, out, nil
}

func (r *rewriter) cacheKey(data []byte) (string, error) {
	fingerprint, err := document.Fingerprint(data)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x/%s/%t", fingerprint, r.group, r.diff), nil
}

// process produces the printable result for a single document, consulting the cache first.
func (r *rewriter) process(index int, name string, data []byte) *outputs.Result {
	result := &outputs.Result{Index: index, Name: name}

	var key string
	if r.cache != nil {
		var err error
		if key, err = r.cacheKey(data); err != nil {
			result.Err = fmt.Errorf("couldn't fingerprint document: %w", err)
			return result
		}
		if cached, ok := r.cache.Get(key); ok {
			rewritten := cached.(*cachedRewrite)
			result.Dump, result.Diff, result.Stats = rewritten.dump, rewritten.diff, rewritten.stats
			result.Cached = true
			return result
		}
	}

	_, rewritten, err := r.rewrite(data)
	if err != nil {
		result.Err = err
		return result
	}
	if r.cache != nil {
		r.cache.Set(key, rewritten, 1)
	}
	result.Dump, result.Diff, result.Stats = rewritten.dump, rewritten.diff, rewritten.stats
	return result
}
