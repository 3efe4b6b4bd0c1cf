package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stakevault/cmd/internal/passphrase"
	"stakevault/crypto"
	"stakevault/services/stakingd"
)

func newKeygenCommand() *cobra.Command {
	var (
		out       string
		passEnv   string
		passFile  string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key in an encrypted keystore and print its address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := passphrase.NewSource(passEnv, passphrase.FromFile(passFile), passphrase.WithConfirmation()).Get()
			if err != nil {
				return err
			}
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			if err := crypto.SaveToKeystore(out, key, pass, overwrite); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", key.PubKey().Address())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "keystore.json", "keystore file to write")
	cmd.Flags().StringVar(&passEnv, "passphrase-env", "STAKECTL_PASSPHRASE", "environment variable holding the keystore passphrase")
	cmd.Flags().StringVar(&passFile, "passphrase-file", "", "file holding the keystore passphrase")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing keystore")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var (
		subject    string
		keystore   string
		scopes     []string
		secret     string
		secretFile string
		issuer     string
		audience   string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token for stakingd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secretFile != "" {
				contents, err := os.ReadFile(secretFile)
				if err != nil {
					return fmt.Errorf("read secret file: %w", err)
				}
				secret = string(contents)
			}
			secret = strings.TrimSpace(secret)
			if secret == "" {
				return fmt.Errorf("--secret or --secret-file is required")
			}
			var addr crypto.Address
			var err error
			switch {
			case subject != "":
				addr, err = crypto.DecodeAddress(subject)
			case keystore != "":
				addr, err = crypto.KeystoreAddress(keystore)
			default:
				return fmt.Errorf("--subject or --keystore is required")
			}
			if err != nil {
				return err
			}
			token, err := stakingd.IssueToken([]byte(secret), stakingd.TokenRequest{
				Subject:  addr,
				Scopes:   scopes,
				Issuer:   issuer,
				Audience: audience,
				TTL:      ttl,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "address the token acts for")
	cmd.Flags().StringVar(&keystore, "keystore", "", "read the subject address from a keystore")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{stakingd.ScopeStake}, "granted scopes (stake, admin)")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("STAKINGD_HMAC_SECRET"), "HMAC signing secret")
	cmd.Flags().StringVar(&secretFile, "secret-file", "", "file holding the HMAC signing secret")
	cmd.Flags().StringVar(&issuer, "issuer", "", "token issuer")
	cmd.Flags().StringVar(&audience, "audience", "", "token audience")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
