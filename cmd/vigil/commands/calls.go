package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigil-voice/vigil/pkg/calllog"
)

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Inspect the emergency call audit log",
}

var callsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded emergency calls, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openCallLogForRead()
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No calls recorded")
			return nil
		}
		for _, rec := range recs {
			sim := ""
			if rec.Simulated {
				sim = " (simulated)"
			}
			fmt.Printf("%s  %-9s %-10s %s%s\n",
				rec.CreatedAt.Format(time.RFC3339),
				rec.EmergencyType, rec.Status, rec.CallID, sim)
		}
		return nil
	},
}

var callsGetCmd = &cobra.Command{
	Use:   "get <call-id>",
	Short: "Show one call record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCallLogForRead()
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Get(cmd.Context(), args[0])
		if errors.Is(err, calllog.ErrNotFound) {
			return fmt.Errorf("no record for call %s", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Printf("Call:       %s\n", rec.CallID)
		fmt.Printf("Session:    %s\n", rec.SessionID)
		fmt.Printf("Type:       %s\n", rec.EmergencyType)
		fmt.Printf("Status:     %s\n", rec.Status)
		fmt.Printf("Simulated:  %v\n", rec.Simulated)
		fmt.Printf("Target:     %s\n", rec.TargetPhone)
		fmt.Printf("Location:   %s\n", rec.Location)
		fmt.Printf("Situation:  %s\n", rec.Situation)
		fmt.Printf("Created:    %s\n", rec.CreatedAt.Format(time.RFC3339))
		fmt.Printf("Updated:    %s\n", rec.UpdatedAt.Format(time.RFC3339))
		return nil
	},
}

var callsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete records older than the retention window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := getConfig()
		hours := cfg.CallLog.RetentionHours
		if hours <= 0 {
			hours = 24 * 30
		}

		store, err := openCallLogForRead()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.CleanupOlderThan(cmd.Context(), time.Duration(hours)*time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d record(s)\n", n)
		return nil
	},
}

func openCallLogForRead() (*calllog.Store, error) {
	cfg := getConfig()
	if cfg.CallLog.Dir == "" {
		return nil, fmt.Errorf("calllog.dir is not configured")
	}
	return calllog.Open(cfg.CallLog.Dir)
}

func init() {
	callsCmd.AddCommand(callsListCmd)
	callsCmd.AddCommand(callsGetCmd)
	callsCmd.AddCommand(callsCleanupCmd)
}
