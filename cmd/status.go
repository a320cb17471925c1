package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"goodzwork-checkin/internal/api"
	"goodzwork-checkin/internal/logging"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's attendance and recent logs",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Int("days", 7, "Number of days of logs to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	days, _ := cmd.Flags().GetInt("days")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := api.NewAPIClient(cfg.API, logging.Component(log, "api"))
	out := cmd.OutOrStdout()

	today, err := client.Today(ctx)
	if err != nil {
		return fmt.Errorf("today: %w", err)
	}
	fmt.Fprintf(out, "📅 Hôm nay: next %s\n", today.NextType())
	if today.CheckinTime != nil {
		fmt.Fprintf(out, "   Check-in:  %s (%s)\n", *today.CheckinTime, today.CheckinStatus)
	}
	if today.CheckoutTime != nil {
		fmt.Fprintf(out, "   Check-out: %s (%s)\n", *today.CheckoutTime, today.CheckoutStatus)
	}

	if days <= 0 {
		return nil
	}
	end := time.Now()
	start := end.AddDate(0, 0, -(days - 1))
	logs, err := client.Logs(ctx, start.Format(time.DateOnly), end.Format(time.DateOnly))
	if err != nil {
		return fmt.Errorf("logs: %w", err)
	}

	fmt.Fprintf(out, "\n📋 %d log entries since %s\n", len(logs), start.Format(time.DateOnly))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tSTATUS\tCONFIDENCE")
	for _, l := range logs {
		conf := "-"
		if l.FaceConfidence != nil {
			conf = fmt.Sprintf("%.1f%%", *l.FaceConfidence)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Timestamp, l.Type, l.Status, conf)
	}
	return w.Flush()
}
