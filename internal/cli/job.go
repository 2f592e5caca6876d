package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewJobCmd создаёт группу команд для управления jobs.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage publishing jobs",
	}

	cmd.AddCommand(
		newJobListCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
		newJobAttemptsCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var tenantID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs(tenantID, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "LOCATION", "STATUS", "RUN_AT", "ATTEMPTS"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{
					j.ID, j.LocationID, j.Status, j.RunAt,
					fmt.Sprintf("%d/%d", j.Attempts, j.MaxAttempts),
				}
			}

			out.Print(headers, rows, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant ID (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.MarkFlagRequired("tenant-id")

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show JOB_ID",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.GetJob(args[0])
			if err != nil {
				return err
			}

			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"ID", job.ID},
				{"Tenant", job.TenantID},
				{"Location", job.LocationID},
				{"Status", job.Status},
				{"Run at", job.RunAt},
				{"Attempts", fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts)},
			}
			if job.PlanID != "" {
				rows = append(rows, []string{"Plan", job.PlanID})
			}
			if job.PostID != "" {
				rows = append(rows, []string{"Post", job.PostID})
			}
			if job.Error != "" {
				rows = append(rows, []string{"Error", job.Error})
			}

			out.Print(headers, rows, job)
			return nil
		},
	}

	return cmd
}

func newJobAttemptsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempts JOB_ID",
		Short: "Show job attempt history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			attempts, err := client.ListJobAttempts(args[0])
			if err != nil {
				return err
			}

			headers := []string{"NUMBER", "STARTED", "FINISHED", "ERROR"}
			rows := make([][]string, len(attempts))
			for i, at := range attempts {
				rows[i] = []string{
					fmt.Sprint(at.Number), at.StartedAt, at.FinishedAt, at.Error,
				}
			}

			out.Print(headers, rows, attempts)
			return nil
		},
	}

	return cmd
}
