package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

func newAdminCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin operations (requires an admin-scoped token)",
	}
	cmd.AddCommand(
		adminAction(flags, "start-reward", "Start the reward program", http.MethodPost, "/v1/admin/reward/start"),
		adminAction(flags, "stop-reward", "Stop reward accrual", http.MethodPost, "/v1/admin/reward/stop"),
		adminAction(flags, "reset", "Sweep the whole treasury to the admin and zero the staked total", http.MethodPost, "/v1/admin/reset"),
		newSetApyCommand(flags),
		newDeleteApyCommand(flags),
		newPercentageCommand(flags, "exit-penalty", "Set the early exit penalty percentage", "/v1/admin/exit-penalty"),
		newPercentageCommand(flags, "withdraw-fee", "Set the matured withdraw fee percentage", "/v1/admin/withdraw-fee"),
		newEmergencyWithdrawCommand(flags),
		newAdminUnstakeCommand(flags),
		newPauseCommand(flags),
		newInvariantsCommand(flags),
		newExportCommand(flags),
	)
	return cmd
}

func adminAction(flags *globalFlags, use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := newClient(flags).do(cmd.Context(), method, path, nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newSetApyCommand(flags *globalFlags) *cobra.Command {
	var duration, percentage uint64
	cmd := &cobra.Command{
		Use:   "set-apy",
		Short: "Add or update a catalog entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]uint64{"duration": duration, "percentage": percentage}
			if _, err := newClient(flags).do(cmd.Context(), http.MethodPut, "/v1/admin/apy", body, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), printer.Sprintf("%s now earns %d%%", formatDuration(duration), percentage))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&duration, "duration", 0, "lock duration in seconds")
	cmd.Flags().Uint64Var(&percentage, "percentage", 0, "annual percentage")
	_ = cmd.MarkFlagRequired("duration")
	_ = cmd.MarkFlagRequired("percentage")
	return cmd
}

func newDeleteApyCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-apy <duration-seconds>",
		Short: "Remove a catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseUint(args[0], 10, 64); err != nil {
				return fmt.Errorf("invalid duration %q", args[0])
			}
			if _, err := newClient(flags).do(cmd.Context(), http.MethodDelete, "/v1/admin/apy/"+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newPercentageCommand(flags *globalFlags, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <percentage>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid percentage %q", args[0])
			}
			if _, err := newClient(flags).do(cmd.Context(), http.MethodPut, path, map[string]uint64{"percentage": pct}, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newEmergencyWithdrawCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "emergency-withdraw <amount>",
		Short: "Withdraw surplus reward funds to the admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"amount": args[0]}
			if _, err := newClient(flags).do(cmd.Context(), http.MethodPost, "/v1/admin/emergency-withdraw", body, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Withdrew %s\n", groupDigits(args[0]))
			return nil
		},
	}
}

func newAdminUnstakeCommand(flags *globalFlags) *cobra.Command {
	var (
		account string
		index   int
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "unstake",
		Short: "Withdraw deposits on a depositor's behalf",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/admin/unstake"
			body := map[string]interface{}{"account": account, "index": index}
			if all {
				path = "/v1/admin/unstake/all"
				body = map[string]interface{}{"account": account}
			} else if !cmd.Flags().Changed("index") {
				return fmt.Errorf("either --index or --all is required")
			}
			var out unstakeResult
			raw, err := newClient(flags).do(cmd.Context(), http.MethodPost, path, body, &out)
			if err != nil {
				return err
			}
			emit(cmd, flags, raw, func() { printUnstake(cmd.OutOrStdout(), out) })
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "depositor address")
	cmd.Flags().IntVar(&index, "index", 0, "deposit index")
	cmd.Flags().BoolVar(&all, "all", false, "withdraw every deposit")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newPauseCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "pause <on|off>",
		Short:     "Toggle the operator pause on stake and unstake",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var paused bool
			switch args[0] {
			case "on":
				paused = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}
			if _, err := newClient(flags).do(cmd.Context(), http.MethodPut, "/v1/admin/pause", map[string]bool{"paused": paused}, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Operator pause %s\n", args[0])
			return nil
		},
	}
}

func newInvariantsCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "invariants",
		Short: "Audit ledger totals and catalog consistency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var report invariantReport
			raw, err := newClient(flags).do(cmd.Context(), http.MethodGet, "/v1/admin/invariants", nil, &report)
			if err != nil {
				return err
			}
			emit(cmd, flags, raw, func() { printInvariants(cmd.OutOrStdout(), report) })
			return nil
		},
	}
}

func newExportCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write a parquet snapshot of open deposits on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Path string `json:"path"`
				Rows int    `json:"rows"`
			}
			raw, err := newClient(flags).do(cmd.Context(), http.MethodPost, "/v1/admin/export", nil, &out)
			if err != nil {
				return err
			}
			emit(cmd, flags, raw, func() {
				fmt.Fprintln(cmd.OutOrStdout(), printer.Sprintf("Wrote %d deposits to %s", out.Rows, out.Path))
			})
			return nil
		},
	}
}
