package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cube2222/octoplan/document"
	"github.com/cube2222/octoplan/plan"
)

var describeCmd = &cobra.Command{
	Use:   "describe [file]",
	Short: "Print the analysis of a document's root operator.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("couldn't read file: %w", err)
		}
		doc, err := document.Decode(data)
		if err != nil {
			return fmt.Errorf("couldn't decode document: %w", err)
		}
		describeNode(cmd.OutOrStdout(), doc.Plan, doc.Plan.Root)
		return nil
	},
}

func describeNode(w io.Writer, p *plan.Plan, n *plan.Node) {
	info := p.GetExtendedNodeInfo(n)
	keys := "unknown"
	if info.Keys != nil {
		keys = info.Keys.String()
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"property", "value"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.AppendBulk([][]string{
		{"op", n.OpType().String()},
		{"definitions", info.Definitions.String()},
		{"non_nullable", info.NonNullableDefinitions.String()},
		{"external", info.ExternalReferences.String()},
		{"keys", keys},
		{"rows", fmt.Sprintf("%s..%s", info.MinRows, info.MaxRows)},
		{"hash", fmt.Sprintf("%016x", info.HashValue)},
	})
	table.Render()
}

func init() {
	rootCmd.AddCommand(describeCmd)
}
