package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Check the current position against the geofence",
	Long: `Acquire one position fix, run the geofence check and print the
company location the check is made against. No camera is opened.`,
	RunE: runLocate,
}

func init() {
	rootCmd.AddCommand(locateCmd)
	locateCmd.Flags().String("geofence", "", "Geofence: remote or local (overrides GEOFENCE)")
}

func runLocate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if g, _ := cmd.Flags().GetString("geofence"); g != "" {
		cfg.Location.Geofence = g
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newAgent(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	if company, err := a.company.CompanyLocation(ctx); err != nil {
		log.Warnf("⚠️  Company location unavailable: %v", err)
	} else {
		fmt.Fprintf(out, "🏢 Company: (%.6f, %.6f) radius %.0fm\n", company.Latitude, company.Longitude, company.Radius)
	}

	adm, err := a.gate.Admit(ctx)
	if err != nil {
		fmt.Fprintf(out, "❌ %s\n", userMessage(err))
		return err
	}

	pos := adm.Position
	fmt.Fprintf(out, "📍 Position: (%.6f, %.6f) ±%.0fm\n", pos.Latitude, pos.Longitude, pos.Accuracy)
	if adm.Allowed() {
		fmt.Fprintf(out, "✅ %s\n", adm.Result.Message)
		return nil
	}
	fmt.Fprintf(out, "❌ %s\n", adm.Result.Message)
	return fmt.Errorf("outside allowed area (%.0fm)", adm.Result.Distance)
}
