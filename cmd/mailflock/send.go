package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailflock/mailflock/internal/batch"
	"github.com/mailflock/mailflock/internal/dkim"
	"github.com/mailflock/mailflock/internal/recipient"
	"github.com/mailflock/mailflock/internal/sender"
	"github.com/mailflock/mailflock/internal/sendlog"
	"github.com/mailflock/mailflock/internal/smtp"
	"github.com/mailflock/mailflock/internal/template"
)

var (
	sendRecipientsFile string
	sendSubject        string
	sendBodyFile       string
	sendDryRun         bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send an outreach batch from a CSV recipient list",
	Long: `Send the template to every recipient in the CSV file, rotating across
configured senders with pacing between deliveries. The CSV columns are:
email, creator name, social media link.`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendRecipientsFile, "recipients", "", "CSV file with recipients (required)")
	sendCmd.Flags().StringVar(&sendSubject, "subject", "", "message subject, may contain placeholders (required)")
	sendCmd.Flags().StringVar(&sendBodyFile, "body", "", "HTML body file, may contain placeholders (required)")
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "render the first recipient's message and exit without sending")
	sendCmd.MarkFlagRequired("recipients")
	sendCmd.MarkFlagRequired("subject")
	sendCmd.MarkFlagRequired("body")

	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	body, err := os.ReadFile(sendBodyFile)
	if err != nil {
		return fmt.Errorf("failed to read body file: %w", err)
	}
	tmpl := template.Template{Subject: sendSubject, Body: string(body)}
	if err := tmpl.Validate(); err != nil {
		return err
	}

	f, err := os.Open(sendRecipientsFile)
	if err != nil {
		return fmt.Errorf("failed to open recipients file: %w", err)
	}
	recipients, err := recipient.FromCSV(f)
	f.Close()
	if err != nil {
		return err
	}

	if sendDryRun {
		subject, rendered := tmpl.RenderFor(recipients[0])
		fmt.Printf("To: %s\nSubject: %s\n\n%s\n", recipients[0].Email, subject, rendered)
		fmt.Printf("(dry run, %d recipients total)\n", len(recipients))
		return nil
	}

	logger := appLogger(cfg)

	store, err := sender.OpenStore(cfg.Storage.SendersPath)
	if err != nil {
		return fmt.Errorf("failed to open sender store: %w", err)
	}
	defer store.Close()

	identities, err := store.LoadForToday()
	if err != nil {
		return fmt.Errorf("failed to load senders: %w", err)
	}
	if len(identities) == 0 {
		return fmt.Errorf("no senders configured (use 'mailflock sender add')")
	}

	logDB, err := sendlog.Open(cfg.Storage.LogPath)
	if err != nil {
		return fmt.Errorf("failed to open send log: %w", err)
	}
	defer logDB.Close()
	journal := sendlog.NewRepository(logDB)

	client := smtp.NewClient(cfg.Server.Hostname, cfg.SMTP.ConnectTimeout, cfg.SMTP.IOTimeout, logger.With("component", "smtp_client"))

	var signer batch.Signer
	if cfg.DKIM.Enabled {
		s, err := dkim.Open(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
		if err != nil {
			return fmt.Errorf("failed to set up DKIM signing: %w", err)
		}
		signer = s
	}

	transport := batch.NewSMTPTransport(client, signer)
	runner := batch.NewRunner(transport, cfg.Batch.PaceInterval, logger, journal)
	pool := sender.NewPool(identities)

	progress := func(p batch.Progress) {
		if p.Sent {
			fmt.Printf("[%d/%d] %s via %s: sent\n", p.Index+1, p.Total, p.Recipient.Email, p.SenderEmail)
		} else {
			fmt.Printf("[%d/%d] %s: FAILED (%v)\n", p.Index+1, p.Total, p.Recipient.Email, p.Err)
		}
	}

	result := runner.Run(context.Background(), "", pool, tmpl, recipients, progress)

	if err := store.SaveCounters(identities); err != nil {
		return fmt.Errorf("failed to persist sender counters: %w", err)
	}

	fmt.Printf("\nBatch %s finished: %d sent, %d failed\n", result.BatchID, result.TotalSent, result.TotalFailed)
	for _, e := range result.Errors {
		fmt.Printf("  %s\n", e)
	}
	if result.TotalFailed > 0 {
		os.Exit(1)
	}
	return nil
}
