// Command entremets runs the bounded model checker against a specification
// file and reports whether every declared property holds across the
// explored state space.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"entremets/internal/config"
	"entremets/internal/trace"
	"entremets/pkg/entremets"
)

// counterExampleFound is a sentinel error distinguishing "the checker ran
// fine and found a violation" (exit 1) from a load/usage failure (exit 2).
type counterExampleFound struct {
	property string
}

func (e *counterExampleFound) Error() string {
	return fmt.Sprintf("property %q has a counter example", e.property)
}

func main() {
	err := newRootCmd().Execute()
	var cex *counterExampleFound
	switch {
	case err == nil:
		os.Exit(0)
	case errors.As(err, &cex):
		os.Exit(1)
	default:
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "entremets <spec-file>",
		Short: "Bounded model checker for concurrent SQL workloads",
		Long: `entremets explores every reachable interleaving of a set of
concurrent processes acting on a toy relational engine, up to a bounded
number of states, and checks always/never/eventually properties against
what it finds.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.StateCap, "state-cap", cfg.StateCap, "maximum number of states to explore before giving up")
	cmd.Flags().BoolVar(&cfg.Color, "color", cfg.Color, "colorize trace output")
	cmd.Flags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "print the configuration before exploring")
	cmd.Flags().BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, "suppress the report printed when no counter example is found")

	return cmd
}

// run implements §6's contract: exit 0 with no counter-example, exit 1 with
// a rendered counter-example, exit 2 on a load or configuration error.
func run(cmd *cobra.Command, path string, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	spec, err := entremets.Load(string(source))
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	if cfg.Verbose {
		fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
	}

	result, err := entremets.Run(spec, cfg)
	if err != nil {
		return err
	}

	violated := result.Violated()
	if violated == nil {
		if !cfg.Quiet {
			last := result.Properties[len(result.Properties)-1]
			fmt.Fprint(cmd.OutOrStdout(), trace.Render(last, result.StatesExplored, trace.Options{Color: cfg.Color}))
		}
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), trace.Render(violated, result.StatesExplored, trace.Options{Color: cfg.Color}))
	return &counterExampleFound{property: violated.Property}
}
