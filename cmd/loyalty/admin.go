package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/loyalty/internal/auth"
	"github.com/dukerupert/loyalty/internal/database"
	"github.com/dukerupert/loyalty/internal/engine"
	"github.com/dukerupert/loyalty/internal/ledger"
	"github.com/dukerupert/loyalty/internal/model"
	"github.com/dukerupert/loyalty/internal/push"
	"github.com/dukerupert/loyalty/internal/server"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(opts.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			opts.logger.Info("migrations applied", "db", opts.cfg.DBPath)
			return nil
		},
	}
}

func newMerchantCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merchant",
		Short: "Manage merchants",
	}

	var m model.Merchant
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a merchant and print its webhook secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, srv, err := opts.open()
			if err != nil {
				return err
			}
			defer db.Close()

			secret, hash, err := auth.NewSecret()
			if err != nil {
				return err
			}
			m.WebhookSecretHash = hash
			created, err := srv.MerchantStore().Create(cmd.Context(), &m)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"id": created.ID, "external_id": created.ExternalID, "secret": secret})
		},
	}
	add.Flags().StringVar(&m.ExternalID, "external-id", "", "store platform merchant ID (required)")
	add.Flags().StringVar(&m.Name, "name", "", "store name")
	add.Flags().StringVar(&m.Username, "username", "", "store username")
	add.Flags().StringVar(&m.Domain, "domain", "", "storefront domain")
	_ = add.MarkFlagRequired("external-id")

	rotate := &cobra.Command{
		Use:   "secret <external-id>",
		Short: "Rotate a merchant's webhook secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, srv, err := opts.open()
			if err != nil {
				return err
			}
			defer db.Close()

			merchant, err := lookupMerchant(cmd.Context(), srv, args[0])
			if err != nil {
				return err
			}
			secret, hash, err := auth.NewSecret()
			if err != nil {
				return err
			}
			if err := srv.MerchantStore().SetWebhookSecretHash(cmd.Context(), merchant.ID, hash); err != nil {
				return err
			}
			return printJSON(map[string]string{"secret": secret})
		},
	}

	cmd.AddCommand(add, rotate)
	return cmd
}

func lookupMerchant(ctx context.Context, srv *server.Server, externalID string) (*model.Merchant, error) {
	m, err := srv.MerchantStore().GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("merchant %s not found", externalID)
	}
	return m, nil
}

func newProcessCommand(opts *rootOptions) *cobra.Command {
	var (
		merchantID string
		customerID int64
		payload    string
	)
	cmd := &cobra.Command{
		Use:   "process <event>",
		Short: "Process one loyalty event and print the result",
		Example: `  loyalty process purchase --merchant 1305146709 --customer 12 --payload '{"amount": 250}'
  loyalty process pointsDeduction --merchant 1305146709 --customer 12 --payload '{"pointsDeducted": 40, "reason": "order_refunded"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !engine.Supported(name) {
				return fmt.Errorf("unsupported event %q", name)
			}
			var data map[string]any
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &data); err != nil {
					return fmt.Errorf("parse payload: %w", err)
				}
			}
			p, err := engine.DecodePayload(name, data)
			if err != nil {
				return err
			}

			db, srv, err := opts.open()
			if err != nil {
				return err
			}
			defer db.Close()
			defer srv.Dispatcher().Wait()

			merchant, err := lookupMerchant(cmd.Context(), srv, merchantID)
			if err != nil {
				return err
			}
			res, err := srv.Engine().ProcessEvent(cmd.Context(), engine.Event{
				Name:       name,
				MerchantID: merchant.ID,
				CustomerID: customerID,
				Payload:    p,
			})
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringVar(&merchantID, "merchant", "", "merchant external ID (required)")
	cmd.Flags().Int64Var(&customerID, "customer", 0, "customer ID (required)")
	cmd.Flags().StringVar(&payload, "payload", "", "event payload as JSON")
	_ = cmd.MarkFlagRequired("merchant")
	_ = cmd.MarkFlagRequired("customer")
	return cmd
}

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [external-id]",
		Short: "Report customers whose balance differs from their activity log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, srv, err := opts.open()
			if err != nil {
				return err
			}
			defer db.Close()

			var merchants []model.Merchant
			if len(args) == 1 {
				m, err := lookupMerchant(cmd.Context(), srv, args[0])
				if err != nil {
					return err
				}
				merchants = append(merchants, *m)
			} else if merchants, err = srv.MerchantStore().List(cmd.Context()); err != nil {
				return err
			}

			report := make(map[string]any, len(merchants))
			for _, m := range merchants {
				drift, err := srv.Ledger().Reconcile(cmd.Context(), m.ID)
				if err != nil {
					return fmt.Errorf("merchant %s: %w", m.ExternalID, err)
				}
				if drift == nil {
					drift = []ledger.Drift{}
				}
				report[m.ExternalID] = drift
			}
			return printJSON(report)
		},
	}
}

func newArchiveCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Export activity to encrypted object storage",
	}

	run := &cobra.Command{
		Use:   "run [external-id]",
		Short: "Archive activity recorded since the last run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, srv, err := opts.open()
			if err != nil {
				return err
			}
			defer db.Close()

			if len(args) == 0 {
				runs, err := srv.Archiver().RunAll(cmd.Context(), srv.MerchantStore())
				if printErr := printJSON(runs); printErr != nil {
					return printErr
				}
				return err
			}
			m, err := lookupMerchant(cmd.Context(), srv, args[0])
			if err != nil {
				return err
			}
			run, err := srv.Archiver().Run(cmd.Context(), m.ID)
			if err != nil {
				return err
			}
			return printJSON(run)
		},
	}

	fetch := &cobra.Command{
		Use:   "fetch <object-key>",
		Short: "Download and decrypt an archived object as NDJSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, srv, err := opts.open()
			if err != nil {
				return err
			}
			defer db.Close()

			acts, err := srv.Archiver().Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			for _, a := range acts {
				if err := enc.Encode(a); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(run, fetch)
	return cmd
}

func newVAPIDKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for operator push alerts",
		// Key generation needs no config or database.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := push.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			fmt.Printf("LOYALTY_VAPID_PUBLIC_KEY=%s\nLOYALTY_VAPID_PRIVATE_KEY=%s\n", pub, priv)
			return nil
		},
	}
}
