package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tasknest/backend/internal/app"
	"github.com/tasknest/backend/internal/auth"
	"github.com/tasknest/backend/internal/config"
	"github.com/tasknest/backend/internal/migrate"
	"github.com/tasknest/backend/internal/models"
	"github.com/tasknest/backend/internal/policy"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema and job queue migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				if err := app.Migrate(ctx, pool); err != nil {
					return err
				}
				version, dirty, err := migrate.Version(pool)
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(map[string]any{"version": version, "dirty": dirty})
				}
				fmt.Printf("schema at version %d (dirty=%t)\n", version, dirty)
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show platform statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Stats.Admin(ctx)
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(s)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Workers", "Buyers", "Coin in circulation", "Cash collected"})
				tw.AppendRow(table.Row{s.WorkerCount, s.BuyerCount, s.TotalCoin, formatUSD(s.TotalPaymentsCents)})
				tw.Render()
				return nil
			})
		},
	}
}

func ledgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger <email>",
		Short: "Show an account's balance and ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st, err := a.Accounts.Ledger(ctx, args[0])
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(st)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Reason", "Source", "Amount", "Balance after"})
				for _, e := range st.Entries {
					tw.AppendRow(table.Row{e.CreatedAt.Format(time.RFC3339), e.Reason, e.SourceID, e.Amount, e.BalanceAfter})
				}
				tw.AppendFooter(table.Row{"", "", "", "Balance", st.Balance})
				tw.Render()
				return nil
			})
		},
	}
}

func withdrawalsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "withdrawals", Short: "Review worker withdrawals"}
	cmd.AddCommand(withdrawalsPendingCmd())
	cmd.AddCommand(withdrawalsApproveCmd())
	return cmd
}

func withdrawalsPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List pending withdrawals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Withdrawals.Pending(ctx)
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Worker", "Coin", "Amount", "System", "Account", "Requested"})
				for _, w := range items {
					tw.AppendRow(table.Row{w.ID, w.WorkerEmail, w.CoinAmount, formatUSD(w.CashAmountCents), w.PaymentSystem, w.AccountNumber, w.CreatedAt.Format(time.RFC3339)})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "", "Total", len(items)})
				tw.Render()
				return nil
			})
		},
	}
}

func withdrawalsApproveCmd() *cobra.Command {
	var adminEmail string
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending withdrawal and debit the worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid withdrawal id %q", args[0])
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := requireRole(ctx, a, adminEmail, models.RoleAdmin); err != nil {
					return err
				}
				w, err := a.Withdrawals.Approve(ctx, adminEmail, id)
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(w)
				}
				fmt.Printf("approved %s: %d coin debited from %s\n", w.ID, w.CoinAmount, w.WorkerEmail)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&adminEmail, "admin", "", "email of the approving admin")
	_ = cmd.MarkFlagRequired("admin")
	return cmd
}

func settleCmd() *cobra.Command {
	var caller string
	cmd := &cobra.Command{
		Use:   "settle <session-id>",
		Short: "Settle a checkout session by hand",
		Long:  "settle credits the buyer for a paid checkout session. Running it for an already settled session prints the stored record.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Payments.SettlePayment(ctx, caller, args[0])
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(res)
				}
				switch {
				case res.Settled:
					fmt.Printf("settled %s: %d coin credited to %s (balance %d)\n", res.Record.TransactionID, res.Record.Coin, res.Record.BuyerEmail, res.Balance)
				case res.AlreadySettled:
					fmt.Printf("already settled as %s on %s\n", res.Record.TransactionID, res.Record.PaidAt.Format(time.RFC3339))
				default:
					fmt.Println("session is not paid; nothing settled")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&caller, "as", "", "identity recorded as the settling caller")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func tokenCmd() *cobra.Command {
	var email string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("jwt_secret is required to mint tokens")
			}
			tok, err := auth.NewService(cfg.JWTSecret, cfg.JWTIssuer).IssueToken(email, ttl)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(map[string]string{"token": tok, "email": email})
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "identity to embed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func requireRole(ctx context.Context, a *app.App, email, role string) error {
	acc, err := a.AccountRepo.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("look up %s: %w", email, err)
	}
	return policy.Authorize(policy.Principal{Identity: acc.Email, Role: acc.Role}, policy.Allow(role))
}

func formatUSD(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
