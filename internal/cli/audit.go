package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/branchd/internal/models"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent audit records",
	Run:   runAudit,
}

var auditLimit int

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Number of records to show")
}

func runAudit(cmd *cobra.Command, args []string) {
	client := apiClient()

	records, err := client.RecentAudit(context.Background(), auditLimit)
	if err != nil {
		exitError("%v", err)
	}

	if len(records) == 0 {
		fmt.Println("No audit records.")
		return
	}

	red := color.New(color.FgRed)
	for _, rec := range records {
		ts := rec.RecordedAt.Format("2006-01-02 15:04:05")
		if rec.Severity == models.AuditError {
			red.Printf("%s  %-28s %s\n", ts, rec.EventType, rec.TargetID)
		} else {
			fmt.Printf("%s  %-28s %s\n", ts, rec.EventType, rec.TargetID)
		}
	}
}
