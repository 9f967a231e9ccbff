package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/branchd/internal/models"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [file]",
	Short: "Preview the merge decision for a conflict set",
	Long: `Runs the conflict classification, business impact, and risk pipeline
over a JSON conflict list and prints the merge decision the daemon would
reach. Reads from stdin when no file is given. No branch state is touched.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) {
	var data []byte
	var err error
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitError("read conflicts: %v", err)
	}

	var conflicts []*models.Conflict
	if err := json.Unmarshal(data, &conflicts); err != nil {
		exitError("parse conflicts: %v", err)
	}

	client := apiClient()
	resp, err := client.EvaluateMerge(context.Background(), conflicts)
	if err != nil {
		exitError("%v", err)
	}

	fmt.Printf("Decision:      ")
	decisionColor(resp.Decision).Printf("%s\n", resp.Decision)
	fmt.Printf("Conflicts:     %d\n", len(conflicts))
	if resp.Assessment != nil {
		fmt.Printf("Overall risk:  %s\n", resp.Assessment.OverallRiskLevel)
		if resp.Assessment.RecommendedMergeWindow != "" {
			fmt.Printf("Merge window:  %s\n", resp.Assessment.RecommendedMergeWindow)
		}
		if len(resp.Assessment.Stakeholders) > 0 {
			fmt.Printf("Stakeholders:  %v\n", resp.Assessment.Stakeholders)
		}
	}

	if len(resp.Resolutions) > 0 {
		fmt.Println("\nResolutions:")
		for _, res := range resp.Resolutions {
			fmt.Printf("  %-16s %.2f  %s.%s\n",
				res.Strategy,
				res.Confidence,
				res.Conflict.ObjectType,
				res.Conflict.FieldName,
			)
		}
	}
}

// decisionColor maps a merge decision to its display color.
func decisionColor(decision models.MergeDecision) *color.Color {
	switch decision {
	case models.DecisionAutoMerge:
		return color.New(color.FgGreen)
	case models.DecisionManualResolution, models.DecisionDeferMerge:
		return color.New(color.FgYellow)
	case models.DecisionRejectMerge:
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}
