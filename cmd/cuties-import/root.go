package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cuties-app/cuties/pkg/configuration"
	"github.com/cuties-app/cuties/pkg/store"
)

// app carries what every subcommand needs. Tests fill it directly.
type app struct {
	cfg       *configuration.Configuration
	log       logrus.FieldLogger
	openStore func(ctx context.Context) (store.Store, func() error, error)
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cuties-import",
		Short:         "Legacy data import and maintenance tool for the cuties app",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configuration.Use()
			if err != nil {
				return withCode(exitFatal, err)
			}
			a.cfg = cfg
			a.log = cfg.Logger()
			a.openStore = a.connect
			return nil
		},
	}

	cmd.AddCommand(newMessagesCmd(a))
	cmd.AddCommand(newTestimonialsCmd(a))
	cmd.AddCommand(newLegacyCommunitiesCmd(a))
	cmd.AddCommand(newCommunitiesCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newVerifyCmd(a))
	return cmd
}

// connect opens the store backend selected by STORE_BACKEND.
func (a *app) connect(ctx context.Context) (store.Store, func() error, error) {
	if err := a.cfg.RequireStore(); err != nil {
		return nil, nil, withCode(exitFatal, err)
	}

	if a.cfg.StoreBackend == configuration.BackendPostgres {
		pg, err := store.OpenPostgres(ctx, a.cfg.Database.URL)
		if err != nil {
			return nil, nil, withCode(exitDB, err)
		}
		a.log.Info("connected to postgres")
		return pg, pg.Close, nil
	}

	key, source := a.cfg.Supabase.Key()
	if a.cfg.Supabase.UsesAnonKey() {
		a.log.Warn("using anon key instead of service role key; row level security may reject writes")
	}
	rest, err := store.NewREST(a.cfg.Supabase.URL, key)
	if err != nil {
		return nil, nil, withCode(exitFatal, err)
	}
	a.log.WithField("key", source).Info("using project REST API")
	return rest, func() error { return nil }, nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	stop()
	if a.cfg != nil {
		a.cfg.Unload()
	}
	if err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
