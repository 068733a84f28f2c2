package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/spf13/cobra"
)

func newScreenCmd(configPath *string) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "screen <chain:address>",
		Short: "Screen one token against the current risk profile and print the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.ParseTokenID(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			comp := &components{cfg: cfg}
			defer comp.Close()
			if err := comp.connectStores(); err != nil {
				return err
			}
			if err := comp.buildStore(ctx); err != nil {
				return err
			}
			engine, err := comp.buildEngine()
			if err != nil {
				return err
			}

			token := model.Token{ID: id}
			if lookup := comp.tokenLookup(); lookup != nil {
				found, err := lookup.LookupToken(ctx, id)
				if err != nil {
					logger.Warn("Token lookup failed, screening with unknown metrics", "token", id.String(), "error", err)
				} else {
					token = found
				}
			}

			verdict := engine.Evaluate(ctx, token, comp.store.Current())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(verdict); err != nil {
				return err
			}
			if !verdict.Passed {
				return fmt.Errorf("%s failed screening: %v", id, verdict.FailedCheckNames())
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall timeout")
	return cmd
}
