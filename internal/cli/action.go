package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewActionCmd создаёт группу команд для управления actions.
func NewActionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "action",
		Short: "Manage scheduled actions",
	}

	cmd.AddCommand(
		newActionListCmd(clientFn, outputFn),
		newActionScheduleCmd(clientFn, outputFn),
		newActionShowCmd(clientFn, outputFn),
		newActionCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newActionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var tenantID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			actions, err := client.ListActions(tenantID, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TYPE", "STATUS", "RUN_AT", "ATTEMPTS", "PRIORITY"}
			rows := make([][]string, len(actions))
			for i, a := range actions {
				rows[i] = []string{
					a.ID, a.Type, a.Status, a.RunAt,
					fmt.Sprintf("%d/%d", a.Attempts, a.MaxAttempts),
					strconv.Itoa(a.Priority),
				}
			}

			out.Print(headers, rows, actions)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant ID (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.MarkFlagRequired("tenant-id")

	return cmd
}

func newActionScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var tenantID string
	var locationID string
	var runAt string
	var dedupeKey string
	var priority int
	var maxAttempts int
	var payload []string

	cmd := &cobra.Command{
		Use:   "schedule ACTION_TYPE",
		Short: "Schedule a new action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := ScheduleActionRequest{
				TenantID:    tenantID,
				LocationID:  locationID,
				Type:        args[0],
				DedupeKey:   dedupeKey,
				Priority:    priority,
				MaxAttempts: maxAttempts,
			}

			if runAt != "" {
				t, err := time.Parse(time.RFC3339, runAt)
				if err != nil {
					return fmt.Errorf("invalid --run-at %q, expected RFC3339", runAt)
				}
				req.RunAt = &t
			}

			if len(payload) > 0 {
				req.Payload = make(map[string]any)
				for _, kv := range payload {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid payload format %q, expected KEY=VALUE", kv)
					}
					req.Payload[parts[0]] = parts[1]
				}
			}

			action, err := client.ScheduleAction(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Action scheduled: %s", action.ID))
			out.Print(
				[]string{"ID", "TYPE", "STATUS", "RUN_AT"},
				[][]string{{action.ID, action.Type, action.Status, action.RunAt}},
				action,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&locationID, "location-id", "", "Location ID")
	cmd.Flags().StringVar(&runAt, "run-at", "", "Earliest execution time (RFC3339, default: now)")
	cmd.Flags().StringVar(&dedupeKey, "dedupe-key", "", "Idempotency key")
	cmd.Flags().IntVar(&priority, "priority", 0, "Lease priority (higher first)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Maximum attempts (0 = server default)")
	cmd.Flags().StringSliceVar(&payload, "payload", nil, "Payload values as KEY=VALUE (repeatable)")
	cmd.MarkFlagRequired("tenant-id")

	return cmd
}

func newActionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show ACTION_ID",
		Short: "Show action details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			action, err := client.GetAction(args[0])
			if err != nil {
				return err
			}

			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"ID", action.ID},
				{"Tenant", action.TenantID},
				{"Type", action.Type},
				{"Status", action.Status},
				{"Run at", action.RunAt},
				{"Attempts", fmt.Sprintf("%d/%d", action.Attempts, action.MaxAttempts)},
				{"Priority", strconv.Itoa(action.Priority)},
			}
			if action.LocationID != "" {
				rows = append(rows, []string{"Location", action.LocationID})
			}
			if action.DedupeKey != "" {
				rows = append(rows, []string{"Dedupe key", action.DedupeKey})
			}
			if action.Error != "" {
				rows = append(rows, []string{"Error", action.Error})
			}

			out.Print(headers, rows, action)
			return nil
		},
	}

	return cmd
}

func newActionCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel ACTION_ID",
		Short: "Cancel a pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			action, err := client.CancelAction(args[0], reason)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Action cancelled: %s", action.ID))
			out.Print(
				[]string{"ID", "TYPE", "STATUS"},
				[][]string{{action.ID, action.Type, action.Status}},
				action,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Cancellation reason")

	return cmd
}
