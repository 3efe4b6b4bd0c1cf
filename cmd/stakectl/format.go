package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	printer = message.NewPrinter(language.English)
	title   = cases.Title(language.English)
)

type apyOption struct {
	Duration   uint64 `json:"duration"`
	Percentage uint64 `json:"percentage"`
}

type vaultStatus struct {
	Address               string      `json:"address"`
	Admin                 string      `json:"admin"`
	StartedAt             uint64      `json:"started_at"`
	Paused                bool        `json:"paused"`
	OperatorPaused        bool        `json:"operator_paused"`
	TotalStaked           string      `json:"total_staked"`
	ExitPenaltyPercentage uint64      `json:"exit_penalty_percentage"`
	WithdrawFeePercentage uint64      `json:"withdraw_fee_percentage"`
	TreasuryBalance       string      `json:"treasury_balance"`
	RewardCapacity        string      `json:"reward_capacity"`
	ResetAt               uint64      `json:"reset_at"`
	Apy                   []apyOption `json:"apy"`
}

type deposit struct {
	Index         int    `json:"index"`
	Amount        string `json:"amount"`
	ApyPercentage uint64 `json:"apy_percentage"`
	ApyDuration   uint64 `json:"apy_duration"`
	CreatedAt     uint64 `json:"created_at"`
	Elapsed       uint64 `json:"elapsed"`
	Reward        string `json:"reward"`
	Matured       bool   `json:"matured"`
}

type accountView struct {
	Address       string    `json:"address"`
	Balance       string    `json:"balance"`
	TotalStaked   string    `json:"total_staked"`
	PendingReward string    `json:"pending_reward"`
	Deposits      []deposit `json:"deposits"`
}

type settlement struct {
	Index     int    `json:"index"`
	Kind      string `json:"kind"`
	Principal string `json:"principal"`
	Deduction string `json:"deduction"`
	Reward    string `json:"reward"`
	Payout    string `json:"payout"`
}

type unstakeResult struct {
	Account     string       `json:"account"`
	Payout      string       `json:"payout"`
	Reward      string       `json:"reward"`
	Settlements []settlement `json:"settlements"`
}

type journalEvent struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
}

type invariantReport struct {
	Accounts      int    `json:"accounts"`
	Deposits      int    `json:"deposits"`
	LedgerTotal   string `json:"ledger_total"`
	VaultTotal    string `json:"vault_total"`
	ResetObserved bool   `json:"reset_observed"`
}

// groupDigits inserts thousands separators into a decimal string. Amounts
// exceed int64 so the printer cannot format them directly.
func groupDigits(dec string) string {
	if len(dec) <= 3 {
		return dec
	}
	var b strings.Builder
	lead := len(dec) % 3
	if lead > 0 {
		b.WriteString(dec[:lead])
	}
	for i := lead; i < len(dec); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(dec[i : i+3])
	}
	return b.String()
}

func formatDuration(seconds uint64) string {
	d := time.Duration(seconds) * time.Second
	if seconds%86400 == 0 && seconds >= 86400 {
		return printer.Sprintf("%d days", seconds/86400)
	}
	return d.String()
}

func formatTimestamp(ts uint64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}

func printStatus(w io.Writer, s vaultStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Vault\t%s\n", s.Address)
	fmt.Fprintf(tw, "Admin\t%s\n", s.Admin)
	fmt.Fprintf(tw, "Reward started\t%s\n", formatTimestamp(s.StartedAt))
	fmt.Fprintf(tw, "Paused\t%t\n", s.Paused)
	fmt.Fprintf(tw, "Operator paused\t%t\n", s.OperatorPaused)
	fmt.Fprintf(tw, "Total staked\t%s\n", groupDigits(s.TotalStaked))
	fmt.Fprintf(tw, "Treasury balance\t%s\n", groupDigits(s.TreasuryBalance))
	fmt.Fprintf(tw, "Reward capacity\t%s\n", groupDigits(s.RewardCapacity))
	fmt.Fprintf(tw, "Exit penalty\t%s\n", printer.Sprintf("%d%%", s.ExitPenaltyPercentage))
	fmt.Fprintf(tw, "Withdraw fee\t%s\n", printer.Sprintf("%d%%", s.WithdrawFeePercentage))
	if s.ResetAt != 0 {
		fmt.Fprintf(tw, "Reset at\t%s\n", formatTimestamp(s.ResetAt))
	}
	_ = tw.Flush()
	if len(s.Apy) > 0 {
		fmt.Fprintln(w)
		printApy(w, s.Apy)
	}
}

func printApy(w io.Writer, opts []apyOption) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DURATION\tSECONDS\tAPY")
	for _, opt := range opts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", formatDuration(opt.Duration), printer.Sprintf("%d", opt.Duration), printer.Sprintf("%d%%", opt.Percentage))
	}
	_ = tw.Flush()
}

func printDeposits(w io.Writer, deposits []deposit) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tAMOUNT\tAPY\tDURATION\tCREATED\tREWARD\tSTATE")
	for _, d := range deposits {
		state := "locked"
		if d.Matured {
			state = "matured"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Index, groupDigits(d.Amount), printer.Sprintf("%d%%", d.ApyPercentage),
			formatDuration(d.ApyDuration), formatTimestamp(d.CreatedAt), groupDigits(d.Reward), title.String(state))
	}
	_ = tw.Flush()
}

func printAccount(w io.Writer, a accountView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Account\t%s\n", a.Address)
	fmt.Fprintf(tw, "Balance\t%s\n", groupDigits(a.Balance))
	fmt.Fprintf(tw, "Staked\t%s\n", groupDigits(a.TotalStaked))
	fmt.Fprintf(tw, "Pending reward\t%s\n", groupDigits(a.PendingReward))
	fmt.Fprintf(tw, "Deposits\t%s\n", printer.Sprintf("%d", len(a.Deposits)))
	_ = tw.Flush()
	if len(a.Deposits) > 0 {
		fmt.Fprintln(w)
		printDeposits(w, a.Deposits)
	}
}

func printUnstake(w io.Writer, r unstakeResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tKIND\tPRINCIPAL\tDEDUCTION\tREWARD\tPAYOUT")
	for _, s := range r.Settlements {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", s.Index, title.String(s.Kind),
			groupDigits(s.Principal), groupDigits(s.Deduction), groupDigits(s.Reward), groupDigits(s.Payout))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "Paid %s to %s (reward %s)\n", groupDigits(r.Payout), r.Account, groupDigits(r.Reward))
}

func printEvents(w io.Writer, evts []journalEvent) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tTYPE\tATTRIBUTES")
	for _, e := range evts {
		keys := make([]string, 0, len(e.Attributes))
		for k := range e.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+e.Attributes[k])
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Sequence, e.CreatedAt.UTC().Format(time.RFC3339), e.Type, strings.Join(parts, " "))
	}
	_ = tw.Flush()
}

func printInvariants(w io.Writer, r invariantReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Accounts\t%s\n", printer.Sprintf("%d", r.Accounts))
	fmt.Fprintf(tw, "Deposits\t%s\n", printer.Sprintf("%d", r.Deposits))
	fmt.Fprintf(tw, "Ledger total\t%s\n", groupDigits(r.LedgerTotal))
	fmt.Fprintf(tw, "Vault total\t%s\n", groupDigits(r.VaultTotal))
	fmt.Fprintf(tw, "Reset observed\t%t\n", r.ResetObserved)
	_ = tw.Flush()
}
