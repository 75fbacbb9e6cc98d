package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/Shopify/touchbuttons/internal/codec"
	"github.com/Shopify/touchbuttons/internal/configstore"
	"github.com/Shopify/touchbuttons/internal/datastore"
	"github.com/Shopify/touchbuttons/internal/remotes"
	"github.com/Shopify/touchbuttons/internal/server"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg, err := parseConfig(nil)
	root := &cobra.Command{
		Use:          "touchbuttons",
		Short:        "Touch button layout persistence",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err != nil {
				return err
			}
			if err := validateConfig(cfg); err != nil {
				return err
			}
			setLogging(cfg.LogLevel)
			configureMetrics(cfg)
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&cfg.StoreType, "store", cfg.StoreType, "durable store: memory, redis or sqlite")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address")
	flags.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "sqlite database file")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "disabled, debug, info or warn")

	root.AddCommand(newSimulateCmd(&cfg), newInspectCmd(&cfg))
	return root
}

func newSimulateCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Connect simulated clients that rearrange their buttons, then verify what was saved",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Prepare background context configured to listen for cancelling.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt)
			defer signal.Stop(sig)
			go func() {
				select {
				case <-sig:
					log.Info().Msg("shutting down simulator")
					cancel()
				case <-ctx.Done():
				}
			}()

			ds, err := makeDataStore(*cfg)
			if err != nil {
				return err
			}
			defer closeDataStore(ds)

			srv := server.MakeServer(makeConfigStore(ds, validButtonNames(*cfg)))
			simDriver := makeSimulator(ctx, cancel, *cfg, srv, ds)
			report := simDriver.StartSimulation()
			fmt.Fprint(cmd.OutOrStdout(), report.String())
			if report.Failed > 0 || report.Mismatched > 0 {
				return fmt.Errorf("%d users failed and %d were not persisted as shown", report.Failed, report.Mismatched)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&cfg.NumUsers, "users", cfg.NumUsers, "number of simulated users")
	cmd.Flags().IntVar(&cfg.GesturesPerButton, "gestures", cfg.GesturesPerButton, "gestures per button per user")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", cfg.Seed, "seed for gesture generation")
	return cmd
}

type ownerLister interface {
	Owners(ctx context.Context, key string) ([]int64, error)
}

func newInspectCmd(cfg *Config) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the saved touch button record of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := makeDataStore(*cfg)
			if err != nil {
				return err
			}
			defer closeDataStore(ds)
			return inspectUser(cmd, ds, userID)
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id to inspect")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func inspectUser(cmd *cobra.Command, ds datastore.DataStore, userID int64) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	key := configstore.KeyForUser(remotes.Identity{UserID: userID})
	blob, ok, err := ds.Read(ctx, key)
	if err != nil {
		return err
	}
	out := map[string]any{"key": key, "found": ok}
	if ok {
		entry, err := codec.DecodeBlob(blob)
		if err != nil {
			return err
		}
		out["buttons"] = codec.Serialize(entry)
	}
	if lister, isLister := ds.(ownerLister); isLister && ok {
		owners, err := lister.Owners(ctx, key)
		if err != nil {
			return err
		}
		out["owners"] = owners
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
