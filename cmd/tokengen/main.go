package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/guided-traffic/file-encryptor/internal/api/middleware"
)

var (
	secret   string
	issuer   string
	subject  string
	validFor string

	rootCmd = &cobra.Command{
		Use:   "tokengen",
		Short: "Issue API tokens for the file encryptor",
		Long: `tokengen signs HS256 bearer tokens accepted by the file encryptor API when
auth.enabled is set. The secret and issuer must match auth.secret and
auth.issuer of the server configuration.`,
		RunE: runTokengen,
	}
)

func init() {
	rootCmd.Flags().StringVar(&secret, "secret", os.Getenv("ENCRYPTOR_AUTH_SECRET"), "signing secret (default $ENCRYPTOR_AUTH_SECRET)")
	rootCmd.Flags().StringVar(&issuer, "issuer", "file-encryptor", "token issuer")
	rootCmd.Flags().StringVar(&subject, "subject", "ui", "token subject")
	rootCmd.Flags().StringVar(&validFor, "valid-for", "30d", "validity like '1y', '30d', '12h', or '0' for no expiry")
}

func runTokengen(cmd *cobra.Command, args []string) error {
	ttl, err := parseDuration(validFor)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}

	token, claims, err := middleware.IssueToken([]byte(secret), issuer, subject, ttl)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Token ID: %s\n", claims.ID)
	if claims.ExpiresAt != nil {
		fmt.Fprintf(out, "Valid until: %s\n", claims.ExpiresAt.UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintln(out, "Valid until: never")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, token)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
