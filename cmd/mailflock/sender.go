package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mailflock/mailflock/internal/sender"
)

var (
	senderName     string
	senderEmail    string
	senderHost     string
	senderPort     int
	senderPassword string
	senderLimit    int
)

var senderCmd = &cobra.Command{
	Use:   "sender",
	Short: "Manage sender mailboxes",
}

var senderAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a sender mailbox",
	RunE:  runSenderAdd,
}

var senderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sender mailboxes",
	RunE:  runSenderList,
}

var senderEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a sender",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSenderActive(args[0], true)
	},
}

var senderDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a sender",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSenderActive(args[0], false)
	},
}

var senderRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a sender",
	Args:  cobra.ExactArgs(1),
	RunE:  runSenderRemove,
}

var senderResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset daily counters of all senders",
	RunE:  runSenderReset,
}

func init() {
	senderAddCmd.Flags().StringVar(&senderName, "name", "", "display name")
	senderAddCmd.Flags().StringVar(&senderEmail, "email", "", "mailbox address (required)")
	senderAddCmd.Flags().StringVar(&senderHost, "host", "", "SMTP submission host (required)")
	senderAddCmd.Flags().IntVar(&senderPort, "port", 587, "SMTP submission port")
	senderAddCmd.Flags().StringVar(&senderPassword, "password", "", "SMTP password")
	senderAddCmd.Flags().IntVar(&senderLimit, "limit", 50, "daily send limit")
	senderAddCmd.MarkFlagRequired("email")
	senderAddCmd.MarkFlagRequired("host")

	senderCmd.AddCommand(senderAddCmd, senderListCmd, senderEnableCmd, senderDisableCmd, senderRemoveCmd, senderResetCmd)
	rootCmd.AddCommand(senderCmd)
}

// openSenderStore opens the sender store from the active configuration.
func openSenderStore() (*sender.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return sender.OpenStore(cfg.Storage.SendersPath)
}

func runSenderAdd(cmd *cobra.Command, args []string) error {
	store, err := openSenderStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id := &sender.Identity{
		Name:       senderName,
		Email:      senderEmail,
		SMTPHost:   senderHost,
		SMTPPort:   senderPort,
		Password:   senderPassword,
		DailyLimit: senderLimit,
		Active:     true,
	}
	if err := store.Put(id); err != nil {
		return fmt.Errorf("failed to add sender: %w", err)
	}

	fmt.Printf("Sender added: %s (%s)\n", id.Email, id.ID)
	return nil
}

func runSenderList(cmd *cobra.Command, args []string) error {
	store, err := openSenderStore()
	if err != nil {
		return err
	}
	defer store.Close()

	identities, err := store.LoadForToday()
	if err != nil {
		return fmt.Errorf("failed to list senders: %w", err)
	}
	if len(identities) == 0 {
		fmt.Println("No senders configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tSERVER\tSENT\tLIMIT\tACTIVE")
	for _, id := range identities {
		fmt.Fprintf(w, "%s\t%s\t%s:%d\t%d\t%d\t%t\n",
			id.ID, id.Email, id.SMTPHost, id.SMTPPort, id.SentToday, id.DailyLimit, id.Active)
	}
	return w.Flush()
}

func setSenderActive(id string, active bool) error {
	store, err := openSenderStore()
	if err != nil {
		return err
	}
	defer store.Close()

	identity, err := store.Get(id)
	if err != nil {
		return err
	}
	if identity == nil {
		return fmt.Errorf("sender not found: %s", id)
	}

	identity.Active = active
	if err := store.Put(identity); err != nil {
		return fmt.Errorf("failed to update sender: %w", err)
	}

	state := "disabled"
	if active {
		state = "enabled"
	}
	fmt.Printf("Sender %s %s\n", identity.Email, state)
	return nil
}

func runSenderRemove(cmd *cobra.Command, args []string) error {
	store, err := openSenderStore()
	if err != nil {
		return err
	}
	defer store.Close()

	identity, err := store.Get(args[0])
	if err != nil {
		return err
	}
	if identity == nil {
		return fmt.Errorf("sender not found: %s", args[0])
	}

	if err := store.Delete(identity.ID); err != nil {
		return fmt.Errorf("failed to remove sender: %w", err)
	}

	fmt.Printf("Sender removed: %s\n", identity.Email)
	return nil
}

func runSenderReset(cmd *cobra.Command, args []string) error {
	store, err := openSenderStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.ResetCounters(); err != nil {
		return fmt.Errorf("failed to reset counters: %w", err)
	}

	fmt.Println("Daily counters reset")
	return nil
}
