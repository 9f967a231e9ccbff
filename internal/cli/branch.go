package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/branchd/internal/models"
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Manage schema branches",
}

var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all branches and their states",
	Run:   runBranchList,
}

var branchCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register a new branch in the ACTIVE state",
	Args:  cobra.ExactArgs(1),
	Run:   runBranchCreate,
}

var branchShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a branch's state and held locks",
	Args:  cobra.ExactArgs(1),
	Run:   runBranchShow,
}

var branchRecoverCmd = &cobra.Command{
	Use:   "recover <name>",
	Short: "Recover an ERROR branch back to ACTIVE",
	Args:  cobra.ExactArgs(1),
	Run:   runBranchRecover,
}

var branchLockCmd = &cobra.Command{
	Use:   "lock <name>",
	Short: "Acquire indexing locks and move the branch to LOCKED_FOR_WRITE",
	Args:  cobra.ExactArgs(1),
	Run:   runBranchLock,
}

var branchUnlockCmd = &cobra.Command{
	Use:   "unlock <name>",
	Short: "Release indexing locks held on a branch",
	Args:  cobra.ExactArgs(1),
	Run:   runBranchUnlock,
}

var (
	branchHeadCommit    string
	branchBaseCommit    string
	branchRecoverReason string
	branchLockTypes     string
	branchLockOwner     string
)

func init() {
	branchCreateCmd.Flags().StringVar(&branchHeadCommit, "head", "", "Head commit id")
	branchCreateCmd.Flags().StringVar(&branchBaseCommit, "base", "", "Base commit id the branch diverged from")
	branchRecoverCmd.Flags().StringVar(&branchRecoverReason, "reason", "", "Why the branch is safe to recover")
	branchLockCmd.Flags().StringVar(&branchLockTypes, "types", "", "Comma-separated resource types to lock")
	branchLockCmd.Flags().StringVar(&branchLockOwner, "owner", "", "Identity acquiring the locks")
	branchUnlockCmd.Flags().StringVar(&branchLockTypes, "types", "", "Comma-separated resource types to release (empty releases all held by owner)")
	branchUnlockCmd.Flags().StringVar(&branchLockOwner, "owner", "", "Identity releasing the locks")

	branchCmd.AddCommand(branchListCmd)
	branchCmd.AddCommand(branchCreateCmd)
	branchCmd.AddCommand(branchShowCmd)
	branchCmd.AddCommand(branchRecoverCmd)
	branchCmd.AddCommand(branchLockCmd)
	branchCmd.AddCommand(branchUnlockCmd)
}

func runBranchList(cmd *cobra.Command, args []string) {
	client := apiClient()

	branches, err := client.ListBranches(context.Background())
	if err != nil {
		exitError("%v", err)
	}

	if len(branches) == 0 {
		fmt.Println("No branches registered.")
		return
	}

	for _, branch := range branches {
		stateColor(branch.State).Printf("%-18s", branch.State)
		fmt.Printf(" %s", branch.Name)
		if branch.HasLocks() {
			fmt.Printf("  (%d locks)", len(branch.Locks))
		}
		fmt.Println()
	}
}

func runBranchCreate(cmd *cobra.Command, args []string) {
	client := apiClient()

	branch, err := client.CreateBranch(context.Background(), args[0], branchHeadCommit, branchBaseCommit)
	if err != nil {
		exitError("%v", err)
	}

	if branch.HeadCommitID != "" {
		fmt.Printf("Created branch '%s' at %s\n", branch.Name, shortID(branch.HeadCommitID))
	} else {
		fmt.Printf("Created branch '%s'\n", branch.Name)
	}
}

func runBranchShow(cmd *cobra.Command, args []string) {
	client := apiClient()

	branch, err := client.GetBranch(context.Background(), args[0])
	if err != nil {
		exitError("%v", err)
	}

	fmt.Printf("Branch:  %s\n", branch.Name)
	fmt.Printf("State:   ")
	stateColor(branch.State).Printf("%s\n", branch.State)
	if branch.HeadCommitID != "" {
		fmt.Printf("Head:    %s\n", shortID(branch.HeadCommitID))
	}
	if branch.BaseCommitID != "" {
		fmt.Printf("Base:    %s\n", shortID(branch.BaseCommitID))
	}
	if branch.LastTransitionReason != "" {
		fmt.Printf("Reason:  %s\n", branch.LastTransitionReason)
	}

	if branch.HasLocks() {
		fmt.Println("\nHeld locks:")
		for _, lock := range branch.Locks {
			fmt.Printf("  %-20s held by %s since %s\n",
				lock.ResourceType,
				lock.AcquiredBy,
				lock.AcquiredAt.Format("2006-01-02 15:04:05"),
			)
		}
	}
}

func runBranchLock(cmd *cobra.Command, args []string) {
	if branchLockOwner == "" {
		exitError("--owner is required")
	}
	types := splitTypes(branchLockTypes)
	if len(types) == 0 {
		exitError("--types is required")
	}

	client := apiClient()
	if err := client.BeginIndexing(context.Background(), args[0], types, branchLockOwner); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Locked %s on branch '%s' for %s\n", strings.Join(types, ", "), args[0], branchLockOwner)
}

func runBranchUnlock(cmd *cobra.Command, args []string) {
	client := apiClient()

	released, err := client.CompleteIndexing(context.Background(), args[0], splitTypes(branchLockTypes), branchLockOwner)
	if err != nil {
		exitError("%v", err)
	}
	if !released {
		fmt.Println("No matching locks were held.")
		return
	}
	fmt.Printf("Released locks on branch '%s'\n", args[0])
}

func runBranchRecover(cmd *cobra.Command, args []string) {
	client := apiClient()

	if err := client.RecoverBranch(context.Background(), args[0], branchRecoverReason); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Branch '%s' recovered to ACTIVE\n", args[0])
}

// stateColor maps a branch state to its display color.
func stateColor(state models.BranchState) *color.Color {
	switch state {
	case models.BranchActive:
		return color.New(color.FgGreen)
	case models.BranchLockedForWrite:
		return color.New(color.FgYellow)
	case models.BranchReady:
		return color.New(color.FgCyan)
	case models.BranchError:
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}

// splitTypes parses a comma-separated resource type list.
func splitTypes(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
