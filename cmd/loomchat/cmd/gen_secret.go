package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

var genSecretCmd = &cobra.Command{
	Use:   "gen-secret",
	Short: "Generate a signing key for auth.jwt_secret",
	Long: `Generate a cryptographically random signing key.

The output can be used directly as auth.jwt_secret in loomchat.yaml,
or exported as LOOMCHAT_AUTH_JWT_SECRET to keep it out of the file.

Example:
  export LOOMCHAT_AUTH_JWT_SECRET="$(loomchat gen-secret)"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("read random: %w", err)
		}
		fmt.Println(base64.RawURLEncoding.EncodeToString(buf))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genSecretCmd)
}
