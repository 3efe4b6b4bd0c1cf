package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// emit prints raw JSON with --json, otherwise calls pretty.
func emit(cmd *cobra.Command, flags *globalFlags, raw []byte, pretty func()) {
	if flags.JSON {
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(raw)))
		return
	}
	pretty()
}

func newVaultCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "vault",
		Short: "Show vault parameters and treasury position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status vaultStatus
			raw, err := newClient(flags).do(cmd.Context(), http.MethodGet, "/v1/vault", nil, &status)
			if err != nil {
				return err
			}
			emit(cmd, flags, raw, func() { printStatus(cmd.OutOrStdout(), status) })
			return nil
		},
	}
}

func newCapacityCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "capacity",
		Short: "Show the treasury balance available for rewards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Capacity string `json:"capacity"`
			}
			raw, err := newClient(flags).do(cmd.Context(), http.MethodGet, "/v1/vault/capacity", nil, &resp)
			if err != nil {
				return err
			}
			emit(cmd, flags, raw, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Reward capacity: %s\n", groupDigits(resp.Capacity))
			})
			return nil
		},
	}
}

func newApyCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "apy [duration-seconds]",
		Short: "List the APY catalog or look up one duration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(flags)
			if len(args) == 1 {
				if _, err := strconv.ParseUint(args[0], 10, 64); err != nil {
					return fmt.Errorf("invalid duration %q", args[0])
				}
				var opt apyOption
				raw, err := c.do(cmd.Context(), http.MethodGet, "/v1/apy/"+args[0], nil, &opt)
				if err != nil {
					return err
				}
				emit(cmd, flags, raw, func() { printApy(cmd.OutOrStdout(), []apyOption{opt}) })
				return nil
			}
			var table struct {
				Options []apyOption `json:"options"`
			}
			raw, err := c.do(cmd.Context(), http.MethodGet, "/v1/apy", nil, &table)
			if err != nil {
				return err
			}
			emit(cmd, flags, raw, func() { printApy(cmd.OutOrStdout(), table.Options) })
			return nil
		},
	}
}

func newAccountCommand(flags *globalFlags) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "account <address>",
		Short: "Show a depositor's balance, deposits and pending reward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(flags)
			base := "/v1/accounts/" + url.PathEscape(args[0])
			if cmd.Flags().Changed("index") {
				var d deposit
				raw, err := c.do(cmd.Context(), http.MethodGet, base+"/deposits/"+strconv.Itoa(index), nil, &d)
				if err != nil {
					return err
				}
				emit(cmd, flags, raw, func() { printDeposits(cmd.OutOrStdout(), []deposit{d}) })
				return nil
			}
			var view accountView
			raw, err := c.do(cmd.Context(), http.MethodGet, base, nil, &view)
			if err != nil {
				return err
			}
			emit(cmd, flags, raw, func() { printAccount(cmd.OutOrStdout(), view) })
			return nil
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "show a single deposit")
	return cmd
}

func newEventsCommand(flags *globalFlags) *cobra.Command {
	var (
		account string
		kind    string
		after   uint64
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List journaled vault events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if account != "" {
				q.Set("account", account)
			}
			if kind != "" {
				q.Set("type", kind)
			}
			if after > 0 {
				q.Set("after", strconv.FormatUint(after, 10))
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/v1/events"
			if encoded := q.Encode(); encoded != "" {
				path += "?" + encoded
			}
			var out struct {
				Events []journalEvent `json:"events"`
			}
			raw, err := newClient(flags).do(cmd.Context(), http.MethodGet, path, nil, &out)
			if err != nil {
				return err
			}
			emit(cmd, flags, raw, func() { printEvents(cmd.OutOrStdout(), out.Events) })
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "filter by account")
	cmd.Flags().StringVar(&kind, "type", "", "filter by event type")
	cmd.Flags().Uint64Var(&after, "after", 0, "only events after this sequence")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum events to return")
	return cmd
}

func newStakeCommand(flags *globalFlags) *cobra.Command {
	var (
		amount   string
		duration uint64
	)
	cmd := &cobra.Command{
		Use:   "stake",
		Short: "Lock tokens into a new deposit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"amount": amount, "duration": duration}
			var out struct {
				Account string `json:"account"`
				Index   int    `json:"index"`
			}
			raw, err := newClient(flags).do(cmd.Context(), http.MethodPost, "/v1/stake", body, &out)
			if err != nil {
				return err
			}
			emit(cmd, flags, raw, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Staked %s for %s as deposit %d of %s\n",
					groupDigits(amount), formatDuration(duration), out.Index, out.Account)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "amount in base units")
	cmd.Flags().Uint64Var(&duration, "duration", 0, "lock duration in seconds")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("duration")
	return cmd
}

func newUnstakeCommand(flags *globalFlags) *cobra.Command {
	var (
		index int
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "unstake",
		Short: "Withdraw one deposit or all deposits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/unstake"
			var body interface{} = map[string]int{"index": index}
			if all {
				path, body = "/v1/unstake/all", nil
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
	cmd.Flags().IntVar(&index, "index", 0, "deposit index")
	cmd.Flags().BoolVar(&all, "all", false, "withdraw every deposit")
	return cmd
}
