package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "explain <definition> <computed>",
		Short:         "List the state paths a computed depends on",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			doc, err := LoadDocument(args[0])
			if err != nil {
				return err
			}
			st, err := NewStore(doc, newLogger(rootOpts, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			trace, err := st.Get().Explain(args[1])
			if err != nil {
				return WrapExitError(ExitFailure, "explain", err)
			}
			if formatter.Format == "json" {
				return formatter.JSON(trace)
			}
			fmt.Fprintf(formatter.Writer, "%s depends on:\n", trace.Name)
			for _, p := range trace.Paths {
				fmt.Fprintf(formatter.Writer, "  %s\n", p)
			}
			return nil
		},
	}
}
