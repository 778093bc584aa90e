package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/cuties-app/cuties/pkg/verify"
)

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Print row counts and sample rows of the migrated tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), a, cmd.OutOrStdout())
		},
	}
}

func runVerify(ctx context.Context, a *app, out io.Writer) error {
	s, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	verify.New(s, a.log).Run(ctx).Print(out)
	return nil
}
