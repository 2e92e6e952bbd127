package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/pkg/profile"
	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cube2222/octoplan/config"
	"github.com/cube2222/octoplan/graph"
	"github.com/cube2222/octoplan/logs"
	"github.com/cube2222/octoplan/optimizer"
	"github.com/cube2222/octoplan/outputs"
)

var (
	group      string
	configPath string
	explain    int
	withDiff   bool
	withStats  bool
	verbose    bool
	profiling  bool
	parallel   int
	live       bool
	noCache    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "octoplan [files...]",
	Args:  cobra.MinimumNArgs(1),
	Short: "Rewrite relational operator trees.",
	Long: `Octoplan reads operator tree documents, applies a group of rewrite rules to each,
and prints the rewritten trees.`,
	Example: `octoplan tree.json
octoplan --group postjoin --diff tree.json
octoplan --parallel 8 --live --stats trees/*.json`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if profiling {
			if err := os.MkdirAll(config.OctoplanCacheDir, 0755); err != nil {
				return fmt.Errorf("couldn't create profile directory: %w", err)
			}
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(config.OctoplanCacheDir), profile.Quiet).Stop()
		}

		if group != "" {
			if _, err := optimizer.ParseRuleGroup(group); err != nil {
				return err
			}
		}

		cfg, err := readConfig()
		if err != nil {
			return fmt.Errorf("couldn't read config: %w", err)
		}
		options, err := cfg.OptimizerOptions()
		if err != nil {
			return fmt.Errorf("couldn't read optimizer options: %w", err)
		}
		if verbose {
			options = append(options, optimizer.WithVerbose(true))
		}

		r := &rewriter{
			group:   group,
			options: options,
			diff:    withDiff,
		}
		if !noCache {
			maxEntries, err := cfg.CacheMaxEntries()
			if err != nil {
				return fmt.Errorf("couldn't read cache options: %w", err)
			}
			if r.cache, err = newRewriteCache(maxEntries); err != nil {
				return fmt.Errorf("couldn't create rewrite cache: %w", err)
			}
			defer r.cache.Close()
		}

		if explain > 0 {
			if len(args) != 1 {
				return fmt.Errorf("--explain works with a single document, got %d", len(args))
			}
			return explainDocument(r, args[0])
		}

		return rewriteAll(ctx, r, args)
	},
}

func readConfig() (*config.Config, error) {
	if configPath != "" {
		return config.ReadConfig(configPath)
	}
	return config.ReadDefaultConfig()
}

func rewriteAll(ctx context.Context, r *rewriter, paths []string) error {
	printer := outputs.NewBatchPrinter(os.Stdout, len(paths), live, withStats)

	workers := parallel
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	semaphore := make(chan struct{}, workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := range paths {
		index, path := i, paths[i]
		g.Go(func() error {
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-semaphore }()

			data, err := os.ReadFile(path)
			if err != nil {
				printer.Report(&outputs.Result{Index: index, Name: path, Err: fmt.Errorf("couldn't read file: %w", err)})
				return nil
			}
			printer.Report(r.process(index, path, data))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return printer.Close()
}

func explainDocument(r *rewriter, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("couldn't read file: %w", err)
	}
	doc, _, err := r.rewrite(data)
	if err != nil {
		return err
	}

	description, err := graph.Show(doc.Plan.Describe(doc.Plan.Root, explain >= 2))
	if err != nil {
		return fmt.Errorf("couldn't describe tree: %w", err)
	}

	file, err := os.CreateTemp(os.TempDir(), "octoplan-explain-*.png")
	if err != nil {
		return fmt.Errorf("couldn't create temporary file: %w", err)
	}
	cmd := exec.Command("dot", "-Tpng")
	cmd.Stdin = strings.NewReader(description.String())
	cmd.Stdout = file
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("couldn't render graph: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("couldn't close temporary file: %w", err)
	}
	if err := open.Start(file.Name()); err != nil {
		return fmt.Errorf("couldn't open graph: %w", err)
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	logs.InitializeFileLogger()
	defer logs.CloseLogger()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logs.CloseLogger()
		cobra.CheckErr(err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file, ~/.octoplan/octoplan.yml by default.")
	rootCmd.Flags().StringVar(&group, "group", "", "Rule group to apply: all, project, postjoin or nullability. Defaults to the document's group, or all.")
	rootCmd.Flags().IntVar(&explain, "explain", 0, "Render the rewritten tree as a graph. 2 includes node analysis.")
	rootCmd.Flags().BoolVar(&withDiff, "diff", false, "Print a diff between the original and rewritten tree.")
	rootCmd.Flags().BoolVar(&withStats, "stats", false, "Print rule statistics for each document.")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "Log every rule application.")
	rootCmd.Flags().BoolVar(&profiling, "profile", false, "Write a CPU profile to the cache directory.")
	rootCmd.Flags().IntVar(&parallel, "parallel", 0, "Number of documents rewritten concurrently, GOMAXPROCS by default.")
	rootCmd.Flags().BoolVar(&live, "live", false, "Show live progress while rewriting.")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "Rewrite identical documents again instead of reusing the result.")
}
