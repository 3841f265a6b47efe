package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ap-approver-selection/internal/api"
	"github.com/pesio-ai/be-ap-approver-selection/internal/client"
)

var (
	selAddr      string
	selLevel     int
	selAmount    int64
	selRequested []string
	selTaskID    string
	selTimeout   time.Duration
)

func init() {
	rootCmd.AddCommand(selectCmd)
	selectCmd.Flags().StringVar(&selAddr, "addr", "localhost:9086", "gRPC address of the approver selection service")
	selectCmd.Flags().IntVar(&selLevel, "level", 0, "Hierarchy level to select at")
	selectCmd.Flags().Int64Var(&selAmount, "amount", 0, "Payment amount in whole currency units")
	selectCmd.Flags().StringSliceVar(&selRequested, "requested", nil, "Requested approver IDs")
	selectCmd.Flags().StringVar(&selTaskID, "task-id", "", "Task reference recorded in the selection log")
	selectCmd.Flags().DurationVar(&selTimeout, "timeout", 10*time.Second, "Request timeout")
}

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Ask a running service to select an approver",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.NewSelectionGRPCClient(selAddr)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), selTimeout)
		defer cancel()

		resp, err := c.SelectApprover(ctx, api.SelectApproverRequest{
			Level:              selLevel,
			Amount:             selAmount,
			RequestedApprovers: selRequested,
			TaskID:             selTaskID,
		})
		if err != nil {
			return err
		}

		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}
