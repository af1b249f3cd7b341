package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "API key commands",
}

var apikeyHashCmd = &cobra.Command{
	Use:   "hash <key>",
	Short: "Hash an API key for the config file",
	Long:  `Print the bcrypt hash of an API key. Put the hash in api.api_key_hash so the config file never stores the key itself.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyHash,
}

func init() {
	apikeyCmd.AddCommand(apikeyHashCmd)
	rootCmd.AddCommand(apikeyCmd)
}

func runAPIKeyHash(cmd *cobra.Command, args []string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash key: %w", err)
	}

	fmt.Println(string(hash))
	return nil
}
