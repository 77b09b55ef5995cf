package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomchat/loomchat/internal/domain/user"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Generate an argon2id hash for a password",
	Long: `Generate an argon2id hash of a password.

The output can be inserted into the users table directly, for example
to seed the first admin account before the server is running.

Example:
  loomchat hash-password "correct-horse-battery"

Security note: The password will appear in shell history.
Consider clearing history after use or using an environment variable:
  loomchat hash-password "$ADMIN_PASSWORD"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := user.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}
