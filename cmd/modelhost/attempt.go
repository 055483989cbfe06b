package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"modelhost/internal/manager"
	"modelhost/internal/ort"
	"modelhost/pkg/types"
)

// newAttemptCmd is the child side of process isolation: one in-process
// session build whose outcome is reported through the exit status and a
// diagnostic line on stderr.
func newAttemptCmd(opts *globalOpts) *cobra.Command {
	var backend, model string
	cmd := &cobra.Command{
		Use:    "attempt",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := types.ParseBackend(backend)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), manager.FormatAttemptFailure(err))
				return exitError{code: 2}
			}
			if err := manager.RunAttempt(ort.New(opts.runtimeLibrary), be, model); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), manager.FormatAttemptFailure(err))
				return exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", string(types.BackendCPU), "Backend to attempt")
	cmd.Flags().StringVar(&model, "model", "", "Model path")
	return cmd
}
