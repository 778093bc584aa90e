package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/cuties-app/cuties/pkg/communities"
)

type communityOptions struct {
	ownerEmail  string
	catalogPath string
	jsonOut     bool
}

func (o *communityOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.ownerEmail, "owner-email", "", "Email of the user who owns the communities (default: COMMUNITY_OWNER_EMAIL)")
	cmd.Flags().BoolVar(&o.jsonOut, "json", false, "Print the result as a JSON line")
}

func (o communityOptions) owner(a *app) (string, error) {
	email := strings.TrimSpace(o.ownerEmail)
	if email == "" {
		email = strings.TrimSpace(a.cfg.CommunityOwnerEmail)
	}
	if email == "" {
		return "", withCode(exitUsage, fmt.Errorf("--owner-email or COMMUNITY_OWNER_EMAIL is required"))
	}
	return email, nil
}

func newLegacyCommunitiesCmd(a *app) *cobra.Command {
	var opts communityOptions
	cmd := &cobra.Command{
		Use:   "legacy-communities",
		Short: "Create communities for the names stored on legacy user profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLegacyCommunities(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}
	opts.bind(cmd)
	return cmd
}

func newCommunitiesCmd(a *app) *cobra.Command {
	var opts communityOptions
	cmd := &cobra.Command{
		Use:   "communities",
		Short: "Create missing catalog communities and make the owner admin everywhere",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommunities(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.catalogPath, "catalog", "", "YAML catalog of communities (default: built-in)")
	return cmd
}

func (a *app) communityService(ctx context.Context, opts communityOptions) (*communities.Service, *communities.Owner, func() error, error) {
	email, err := opts.owner(a)
	if err != nil {
		return nil, nil, nil, err
	}
	s, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	svc := communities.NewService(s, a.log, a.cfg.PageSize)

	owner, err := svc.LookupOwner(ctx, email)
	if err != nil {
		_ = closeStore()
		return nil, nil, nil, withCode(exitFatal, errors.Wrap(err, "could not find community owner"))
	}
	a.log.WithField("owner", owner.ID).Info("found community owner")
	return svc, owner, closeStore, nil
}

func runLegacyCommunities(ctx context.Context, a *app, opts communityOptions, out io.Writer) error {
	svc, owner, closeStore, err := a.communityService(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	res, err := svc.MigrateLegacy(ctx, owner)
	if err != nil {
		return withCode(exitFatal, err)
	}
	if opts.jsonOut {
		return writeJSONLine(out, res)
	}
	fmt.Fprintln(out, "\nMigration complete!")
	fmt.Fprintf(out, "  Legacy names:       %d\n", res.LegacyNames)
	fmt.Fprintf(out, "  Existing:           %d\n", res.Existing)
	fmt.Fprintf(out, "  Created:            %d\n", len(res.Created))
	fmt.Fprintf(out, "  Moderators added:   %d\n", res.ModeratorsAdded)
	fmt.Fprintf(out, "  Already moderated:  %d\n", res.AlreadyModerated)
	if n := len(res.CreateFailed) + len(res.MemberFailed); n > 0 {
		fmt.Fprintf(out, "  Failures:           %d\n", n)
	}
	return nil
}

func runCommunities(ctx context.Context, a *app, opts communityOptions, out io.Writer) error {
	catalog, err := communities.LoadCatalog(opts.catalogPath)
	if err != nil {
		return withCode(exitValidation, err)
	}
	svc, owner, closeStore, err := a.communityService(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	res, err := svc.SyncCatalog(ctx, owner, catalog)
	if err != nil {
		return withCode(exitFatal, err)
	}
	if opts.jsonOut {
		return writeJSONLine(out, res)
	}
	if len(res.Missing) > 0 {
		fmt.Fprintf(out, "Missing communities: %s\n", strings.Join(res.Missing, ", "))
	}
	fmt.Fprintln(out, "\nDone!")
	fmt.Fprintf(out, "  Total communities:  %d\n", res.Total)
	fmt.Fprintf(out, "  Owner is admin of:  %d communities\n", res.OwnerAdminOf)
	return nil
}
