package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an ingestion run",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := apiClient().Start(context.Background())
		if err != nil {
			return fmt.Errorf("start job: %w", err)
		}
		fmt.Println(status)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Request a cooperative stop (the current file finishes first)",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := apiClient().Stop(context.Background())
		if err != nil {
			return fmt.Errorf("stop job: %w", err)
		}
		fmt.Println(status)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print current counters and host health",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := apiClient().Stats(context.Background())
		if err != nil {
			return fmt.Errorf("fetch stats: %w", err)
		}

		fmt.Printf("%-16s %d\n", "Inserted", stats.Inserted)
		fmt.Printf("%-16s %d\n", "Total", stats.Total)
		fmt.Printf("%-16s %s\n", "Progress", stats.Progress)
		fmt.Printf("%-16s %s\n", "CPU usage", stats.CPUUsage)
		fmt.Printf("%-16s %s\n", "Memory usage", stats.MemoryUsage)
		fmt.Printf("%-16s %d\n", "Uptime (sec)", stats.UptimeSeconds)
		fmt.Printf("%-16s %t\n", "Job running", stats.JobRunning)
		if stats.Healthy {
			fmt.Printf("%-16s healthy\n", "Status")
		} else {
			fmt.Printf("%-16s high load\n", "Status")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statsCmd)
}
