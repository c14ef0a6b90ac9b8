package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/Ashenafi-pixel/gamecrafter-round-engine/config"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/events"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/logger"
	"github.com/Ashenafi-pixel/gamecrafter-round-engine/wallet"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSeedCmd() *cobra.Command {
	var balance float64
	cmd := &cobra.Command{
		Use:   "seed USER...",
		Short: "Create accounts (or reset their balance) in the configured store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if !cmd.Flags().Changed("balance") {
				balance = cfg.StartingBalance
			}
			store, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			ledger := wallet.NewLedger(store)
			amount := decimal.NewFromFloat(balance)
			for _, user := range args {
				if err := ledger.Register(cmd.Context(), user, amount); err != nil {
					return fmt.Errorf("seed %s: %w", user, err)
				}
				logger.L().Info("Seeded account", "user", user, "balance", amount.Round(2), "store", cfg.BalanceStore)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&balance, "balance", 0, "starting balance (default RGS_STARTING_BALANCE)")
	return cmd
}

func newUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List accounts and balances in the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			store, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			lister, ok := store.(wallet.Lister)
			if !ok {
				return fmt.Errorf("%s store cannot list accounts", cfg.BalanceStore)
			}
			users, err := lister.Users()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "USER\tBALANCE")
			for _, u := range users {
				bal, err := store.Get(cmd.Context(), u)
				if err != nil {
					return fmt.Errorf("balance %s: %w", u, err)
				}
				fmt.Fprintf(tw, "%s\t%s\n", u, bal.StringFixed(2))
			}
			return tw.Flush()
		},
	}
}

func newTablesCmd() *cobra.Command {
	var (
		risk      string
		rows      int
		tiersPath string
	)
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Print the calibrated drop payout tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			tiers, err := loadTiers(tiersPath)
			if err != nil {
				return err
			}
			b := gamemath.NewTableBuilder(tiers)
			risks := b.Risks()
			if risk != "" {
				risks = []gamemath.Risk{gamemath.Risk(strings.ToLower(risk))}
			}
			rowList := gamemath.Rows()
			if rows > 0 {
				rowList = []int{rows}
			}
			var tables []*gamemath.PayoutTable
			for _, r := range risks {
				for _, n := range rowList {
					t, err := b.Table(r, n)
					if err != nil {
						return err
					}
					tables = append(tables, t)
				}
			}
			return printTables(cmd.OutOrStdout(), tables)
		},
	}
	cmd.Flags().StringVar(&risk, "risk", "", "only this risk tier")
	cmd.Flags().IntVar(&rows, "rows", 0, "only this row count")
	cmd.Flags().StringVar(&tiersPath, "tiers", "", "YAML file overriding the risk tiers")
	return cmd
}

// loadTiers reads a risk -> tier YAML map. An empty path uses the defaults.
func loadTiers(path string) (map[gamemath.Risk]gamemath.Tier, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tiers := map[gamemath.Risk]gamemath.Tier{}
	if err := yaml.Unmarshal(data, &tiers); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%s: no tiers", path)
	}
	return tiers, nil
}

func printTables(w io.Writer, tables []*gamemath.PayoutTable) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RISK\tROWS\tRTP\tTARGET\tTOLERANCE\tMULTIPLIERS")
	for _, t := range tables {
		ms := make([]string, len(t.Multipliers))
		for i, m := range t.Multipliers {
			ms[i] = fmt.Sprintf("%g", m)
		}
		fmt.Fprintf(tw, "%s\t%d\t%.4f\t%.2f\t%.4f\t%s\n", t.Risk, t.Rows, t.RTP, t.TargetRTP, t.Tolerance, strings.Join(ms, " "))
	}
	return tw.Flush()
}

func newWatchCmd() *cobra.Command {
	var natsURL, subject string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print settled rounds published on NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if natsURL == "" {
				natsURL = cfg.NATSURL
			}
			if subject == "" {
				subject = cfg.NATSSubject
			}
			log := logger.L()
			nc, err := events.Dial(natsURL, "rgs-watch", log)
			if err != nil {
				return err
			}
			defer nc.Close()

			out := cmd.OutOrStdout()
			_, err = events.Watch(nc, subject, func(ev events.Event) {
				fmt.Fprintf(out, "%s %s payout=%s stake=%s players=%d\n",
					ev.Kind, ev.Data.RoundID, ev.Data.TotalPayout, ev.Data.TotalStake, len(ev.Data.Participants))
			}, func(err error) {
				log.Error("Skipping message", "err", err)
			})
			if err != nil {
				return fmt.Errorf("subscribe %s.>: %w", subject, err)
			}
			log.Info("Subscribed to", "subject", subject+".>")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server URL (default NATS_URL)")
	cmd.Flags().StringVar(&subject, "subject", "", "subject prefix (default NATS_SUBJECT_PREFIX)")
	return cmd
}
