package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/spf13/cobra"
)

// newBlacklistCmd edits the operator blacklist in Postgres. Running servers pick the change up
// on their next risk profile refresh.
func newBlacklistCmd(configPath *string) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Add tokens or deployers to the Postgres blacklist",
	}
	cmd.PersistentFlags().StringVar(&reason, "reason", "", "note stored with the entry")

	withRepo := func(cmd *cobra.Command, fn func(ctx context.Context, comp *components) error) error {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		if cfg.Database.DSN == "" {
			return errors.New("blacklist requires database.dsn")
		}
		comp := &components{cfg: cfg}
		defer comp.Close()
		if err := comp.connectStores(); err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return fn(ctx, comp)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "token <chain:address>",
		Short: "Blacklist a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.ParseTokenID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd, func(ctx context.Context, comp *components) error {
				if err := comp.riskRepo.BlacklistToken(ctx, id, reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "blacklisted token %s\n", id)
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "dev <address>",
		Short: "Blacklist a deployer address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := model.NormalizeAddress(args[0])
			if addr == "" {
				return errors.New("address is empty")
			}
			return withRepo(cmd, func(ctx context.Context, comp *components) error {
				if err := comp.riskRepo.BlacklistDev(ctx, addr, reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "blacklisted deployer %s\n", addr)
				return nil
			})
		},
	})
	return cmd
}
