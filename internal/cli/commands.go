package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newReconcileCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile pasted warehouse notices",
		Long: `Read pasted chat text from --file (or stdin when --file is "-" or omitted),
apply every recognised line to the orders and queue the lines that could not be applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return opts.withEngine(cmd.Context(), func(eng Engine) error {
				res, err := eng.Reconcile(cmd.Context(), text)
				if res != nil {
					if perr := opts.printer(cmd.OutOrStdout()).reconcile(res); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", `input file, "-" for stdin`)
	return cmd
}

func newRetryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Retry every entry in the failure queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd.Context(), func(eng Engine) error {
				res, err := eng.RetryAll(cmd.Context())
				if res != nil {
					if perr := opts.printer(cmd.OutOrStdout()).retry(res); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
}

func newFailuresCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Inspect and prune the failure queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued failures, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd.Context(), func(eng Engine) error {
				list, err := eng.ListFailures(cmd.Context())
				if err != nil {
					return err
				}
				return opts.printer(cmd.OutOrStdout()).failures(list)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <tracking-number>",
		Short: "Delete one queued failure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd.Context(), func(eng Engine) error {
				if err := eng.DeleteFailure(cmd.Context(), args[0]); err != nil {
					return err
				}
				return opts.printer(cmd.OutOrStdout()).done("deleted", args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every queued failure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEngine(cmd.Context(), func(eng Engine) error {
				if err := eng.ClearFailures(cmd.Context()); err != nil {
					return err
				}
				return opts.printer(cmd.OutOrStdout()).done("cleared", "")
			})
		},
	})

	return cmd
}

func readInput(stdin io.Reader, file string) (string, error) {
	if file == "" || file == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(file)
	return string(b), err
}
