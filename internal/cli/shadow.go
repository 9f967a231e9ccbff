package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/branchd/internal/models"
)

var shadowCmd = &cobra.Command{
	Use:   "shadow",
	Short: "Manage shadow index builds",
}

var shadowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List shadow indexes, newest first",
	Run:   runShadowList,
}

var shadowShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a shadow index",
	Args:  cobra.ExactArgs(1),
	Run:   runShadowShow,
}

var shadowStartCmd = &cobra.Command{
	Use:   "start <branch> <index-type>",
	Short: "Register a new shadow build",
	Args:  cobra.ExactArgs(2),
	Run:   runShadowStart,
}

var shadowFailCmd = &cobra.Command{
	Use:   "fail <id>",
	Short: "Mark a shadow build as FAILED",
	Args:  cobra.ExactArgs(1),
	Run:   runShadowFail,
}

var shadowSwitchCmd = &cobra.Command{
	Use:   "switch <id>",
	Short: "Atomically switch a COMPLETE shadow index live",
	Args:  cobra.ExactArgs(1),
	Run:   runShadowSwitch,
}

var (
	shadowListBranch   string
	shadowFailReason   string
	shadowSwitchBackup bool
	shadowSwitchChecks []string
	shadowSwitchWait   int
)

func init() {
	shadowListCmd.Flags().StringVar(&shadowListBranch, "branch", "", "Filter by branch")
	shadowFailCmd.Flags().StringVar(&shadowFailReason, "reason", "", "Failure reason")
	shadowSwitchCmd.Flags().BoolVar(&shadowSwitchBackup, "backup", true, "Snapshot the live index before switching")
	shadowSwitchCmd.Flags().StringSliceVar(&shadowSwitchChecks, "checks",
		[]string{models.CheckRecordCount, models.CheckSizeDelta}, "Validation checks to run")
	shadowSwitchCmd.Flags().IntVar(&shadowSwitchWait, "timeout", 30, "Switch timeout in seconds")

	shadowCmd.AddCommand(shadowListCmd)
	shadowCmd.AddCommand(shadowShowCmd)
	shadowCmd.AddCommand(shadowStartCmd)
	shadowCmd.AddCommand(shadowFailCmd)
	shadowCmd.AddCommand(shadowSwitchCmd)
}

func runShadowList(cmd *cobra.Command, args []string) {
	client := apiClient()

	shadows, err := client.ListShadows(context.Background(), shadowListBranch)
	if err != nil {
		exitError("%v", err)
	}

	if len(shadows) == 0 {
		fmt.Println("No shadow indexes.")
		return
	}

	for _, sh := range shadows {
		statusColor(sh.BuildStatus).Printf("%-10s", sh.BuildStatus)
		fmt.Printf(" %s  %s/%s", shortID(sh.ID), sh.BranchName, sh.IndexType)
		if sh.RecordCount > 0 {
			fmt.Printf("  %d records", sh.RecordCount)
		}
		fmt.Println()
	}
}

func runShadowShow(cmd *cobra.Command, args []string) {
	client := apiClient()

	sh, err := client.GetShadow(context.Background(), args[0])
	if err != nil {
		exitError("%v", err)
	}

	fmt.Printf("Shadow:   %s\n", sh.ID)
	fmt.Printf("Branch:   %s\n", sh.BranchName)
	fmt.Printf("Type:     %s\n", sh.IndexType)
	fmt.Printf("Class:    %s\n", sh.ClassName)
	fmt.Printf("Status:   ")
	statusColor(sh.BuildStatus).Printf("%s\n", sh.BuildStatus)
	if sh.RecordCount > 0 {
		fmt.Printf("Records:  %d\n", sh.RecordCount)
		fmt.Printf("Size:     %d bytes\n", sh.SizeBytes)
	}
	if sh.FailReason != "" {
		fmt.Printf("Failed:   %s\n", sh.FailReason)
	}
}

func runShadowStart(cmd *cobra.Command, args []string) {
	client := apiClient()

	sh, err := client.StartShadowBuild(context.Background(), args[0], args[1])
	if err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Started shadow build %s (class %s)\n", shortID(sh.ID), sh.ClassName)
}

func runShadowFail(cmd *cobra.Command, args []string) {
	client := apiClient()

	if err := client.FailShadowBuild(context.Background(), args[0], shadowFailReason); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Shadow build %s marked FAILED\n", shortID(args[0]))
}

func runShadowSwitch(cmd *cobra.Command, args []string) {
	client := apiClient()

	result, err := client.SwitchShadow(context.Background(), args[0], models.SwitchRequest{
		Checks:             shadowSwitchChecks,
		BackupBeforeSwitch: shadowSwitchBackup,
		TimeoutSeconds:     shadowSwitchWait,
	})
	if err != nil {
		exitError("%v", err)
	}

	if !result.Success {
		color.New(color.FgRed).Printf("Switch declined: %s\n", result.Message)
		return
	}

	color.New(color.FgGreen).Printf("Switched in %dms\n", result.SwitchDurationMS)
	if result.BackupID != "" {
		fmt.Printf("Backup: %s\n", result.BackupID)
	}
}

// statusColor maps a shadow build status to its display color.
func statusColor(status models.ShadowBuildStatus) *color.Color {
	switch status {
	case models.ShadowBuilding:
		return color.New(color.FgYellow)
	case models.ShadowComplete:
		return color.New(color.FgCyan)
	case models.ShadowSwitched:
		return color.New(color.FgGreen)
	case models.ShadowFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}
