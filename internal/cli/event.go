package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/branchd/internal/models"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Submit indexing events",
}

var eventSendCmd = &cobra.Command{
	Use:   "send [file]",
	Short: "Submit an indexing event from a JSON file or stdin",
	Long: `Reads an indexing event as JSON and submits it to the daemon.
With no file argument the event is read from stdin.

Example event:
  {"id": "evt-1", "branch_name": "feature-x", "indexing_mode": "traditional",
   "status": "success", "resource_types": ["products"], "completed_by": "indexer-1"}`,
	Args: cobra.MaximumNArgs(1),
	Run:  runEventSend,
}

func init() {
	eventCmd.AddCommand(eventSendCmd)
}

func runEventSend(cmd *cobra.Command, args []string) {
	var data []byte
	var err error
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitError("read event: %v", err)
	}

	var ev models.IndexingEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		exitError("parse event: %v", err)
	}

	client := apiClient()
	if err := client.PostEvent(context.Background(), &ev); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Event %s accepted\n", ev.ID)
}
