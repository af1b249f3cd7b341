package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mailflock/mailflock/internal/recipient"
)

var recipientsCmd = &cobra.Command{
	Use:   "recipients",
	Short: "Recipient list commands",
}

var recipientsCheckCmd = &cobra.Command{
	Use:   "check <file.csv>",
	Short: "Parse and validate a recipient CSV file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecipientsCheck,
}

func init() {
	recipientsCmd.AddCommand(recipientsCheckCmd)
	rootCmd.AddCommand(recipientsCmd)
}

func runRecipientsCheck(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	recipients, err := recipient.FromCSV(f)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tCREATOR\tLINK")
	for _, r := range recipients {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Email, r.CreatorName, r.SocialMediaLink)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d recipients, all valid\n", len(recipients))
	return nil
}
