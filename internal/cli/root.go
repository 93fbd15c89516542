// Package cli is the operator command line for the reconciliation engine: paste a chat export,
// retry the failure queue, inspect or prune queued failures.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/BearBump/ReshipDesk/internal/models"
	"github.com/spf13/cobra"
)

// Engine: то, что CLI вызывает у сервиса сверки.
type Engine interface {
	Reconcile(ctx context.Context, rawText string) (*models.ReconcileResult, error)
	RetryAll(ctx context.Context) (*models.RetryResult, error)
	ListFailures(ctx context.Context) ([]*models.FailureEntry, error)
	DeleteFailure(ctx context.Context, trackingNumber string) error
	ClearFailures(ctx context.Context) error
}

// EngineFactory открывает хранилища по конфигу и возвращает движок и функцию закрытия.
type EngineFactory func(ctx context.Context, configPath string) (Engine, func(), error)

type RootOptions struct {
	Format     string // "text" | "json"
	ConfigPath string

	open EngineFactory
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand(open EngineFactory, defaultConfigPath string) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:           "reshipctl",
		Short:         "Inbound reconciliation console",
		Long:          "Reconcile warehouse inbound notices against orders and manage the failure queue.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", defaultConfigPath, "path to config yaml")

	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newRetryCommand(opts))
	cmd.AddCommand(newFailuresCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withEngine открывает движок на время одной команды.
func (o *RootOptions) withEngine(ctx context.Context, fn func(Engine) error) error {
	if o.open == nil {
		return fmt.Errorf("engine is not configured")
	}
	eng, closeFn, err := o.open(ctx, o.ConfigPath)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(eng)
}

func (o *RootOptions) printer(w io.Writer) *printer {
	return &printer{format: o.Format, w: w}
}
