package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/akuafrica/jobrunr/internal/dashboard"
	"github.com/akuafrica/jobrunr/internal/models"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts",
	RunE:  runStats,
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Show dashboard notifications",
	RunE:  runNotifications,
}

func runStats(cmd *cobra.Command, args []string) error {
	var stats models.JobStats
	if err := apiGetJSON("/stats", &stats); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Enqueued\t%d\n", stats.Enqueued)
	fmt.Fprintf(w, "Processing\t%d\n", stats.Processing)
	fmt.Fprintf(w, "Succeeded\t%d\n", stats.Succeeded)
	fmt.Fprintf(w, "Failed\t%d\n", stats.Failed)
	fmt.Fprintf(w, "Total\t%d\n", stats.Total)
	fmt.Fprintf(w, "All-time succeeded\t%d\n", stats.AllTimeSucceeded)
	return w.Flush()
}

func runNotifications(cmd *cobra.Command, args []string) error {
	var list []models.DashboardNotification
	if err := apiGetJSON("/notifications", &list); err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No notifications")
		return nil
	}

	for _, n := range list {
		switch n.Type {
		case models.NotificationNewVersion:
			var nv dashboard.NewVersionNotification
			if err := json.Unmarshal(n.Payload, &nv); err != nil {
				return fmt.Errorf("decode %s notification: %w", n.Type, err)
			}
			fmt.Printf("JobRunr version %s is available (since %s)\n", nv.LatestVersion, n.CreatedAt.Local().Format(time.DateTime))
		default:
			fmt.Printf("%s: %s\n", n.Type, string(n.Payload))
		}
	}
	return nil
}
