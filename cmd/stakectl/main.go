package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultEndpoint = "http://localhost:7090"

type globalFlags struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
	JSON     bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "stakectl",
		Short:         "Operate a stakingd vault",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.Endpoint, "endpoint", "e", envOr("STAKECTL_ENDPOINT", defaultEndpoint), "stakingd base URL")
	cmd.PersistentFlags().StringVarP(&flags.Token, "token", "t", os.Getenv("STAKECTL_TOKEN"), "bearer token for depositor and admin calls")
	cmd.PersistentFlags().DurationVar(&flags.Timeout, "timeout", 15*time.Second, "request timeout")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "print raw JSON responses")

	cmd.AddCommand(
		newVaultCommand(flags),
		newCapacityCommand(flags),
		newApyCommand(flags),
		newAccountCommand(flags),
		newEventsCommand(flags),
		newStakeCommand(flags),
		newUnstakeCommand(flags),
		newAdminCommand(flags),
		newKeygenCommand(),
		newTokenCommand(),
	)
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
