package outputs

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/cube2222/octoplan/optimizer"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetColWidth(64)
	table.SetRowLine(false)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	return table
}

// RenderStats writes a summary of the invocation followed by the per-rule counters.
func RenderStats(w io.Writer, stats *optimizer.Stats) {
	fmt.Fprintf(w, "invocation %s: group %s, %d nodes, %d steps\n", stats.InvocationID, stats.Group, stats.NodeCount, stats.Steps)
	if stats.Skipped {
		fmt.Fprintln(w, "skipped: tree over the node limit")
		return
	}
	if stats.ProjectionPruningRequired {
		fmt.Fprintln(w, "projection pruning required")
	}
	if stats.NullabilityRulesRequired {
		fmt.Fprintln(w, "nullability rules required")
	}

	table := newTable(w, "rule", "matched", "changed")
	for _, rule := range stats.Rules() {
		table.Append([]string{rule.Name, strconv.Itoa(rule.Matched), strconv.Itoa(rule.Changed)})
	}
	table.Render()
}
