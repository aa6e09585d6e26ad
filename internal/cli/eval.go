package cli

import (
	"github.com/spf13/cobra"
)

// EvalOptions holds eval flags.
type EvalOptions struct {
	Set      []string
	Merge    []string
	Computed []string
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{}
	cmd := &cobra.Command{
		Use:   "eval <definition>",
		Short: "Apply writes and print state and computeds",
		Long: `Load a store definition, merge every --merge file over its state, apply
every --set assignment in one batch and print the resulting snapshot
together with its computed values.

Without --computed every declared computed is printed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, rootOpts, opts, args[0])
		},
	}
	cmd.Flags().StringArrayVarP(&opts.Set, "set", "s", nil, "assignment path=value (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Merge, "merge", "m", nil, "YAML or JSON file deep-merged over the state (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.Computed, "computed", "c", nil, "computeds to print")
	return cmd
}

func runEval(cmd *cobra.Command, rootOpts *RootOptions, opts *EvalOptions, path string) error {
	formatter := newFormatter(rootOpts, cmd)

	doc, err := LoadDocument(path)
	if err != nil {
		return err
	}
	st, err := NewStore(doc, newLogger(rootOpts, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}

	for _, file := range opts.Merge {
		values, err := LoadPatch(file)
		if err != nil {
			return err
		}
		formatter.VerboseLog("merging %s", file)
		if err := st.Merge(cmd.Context(), values); err != nil {
			return WrapExitError(ExitFailure, "merge "+file, err)
		}
	}

	assignments := make([]Assignment, 0, len(opts.Set))
	for _, flag := range opts.Set {
		a, err := ParseAssignment(flag)
		if err != nil {
			return err
		}
		assignments = append(assignments, a)
	}
	formatter.VerboseLog("applying %d assignment(s)", len(assignments))
	if err := Apply(cmd.Context(), st, assignments); err != nil {
		return err
	}

	computeds := opts.Computed
	if len(computeds) == 0 {
		computeds = st.Computeds()
	}
	return formatter.Report(NewStateReport(st, st.Get(), computeds))
}
