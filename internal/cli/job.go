package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewJobCmd создаёт группу команд для работы с jobs.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and control scheduled jobs",
	}

	cmd.AddCommand(
		newJobListCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
		newJobCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var workflowID string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs(ListJobsOpts{
				WorkflowID: workflowID,
				Status:     status,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			out.Print(jobHeaders, jobRows(jobs), jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Filter by workflow ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, running, completed, failed, cancelled)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
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

			out.Print(
				[]string{"FIELD", "VALUE"},
				[][]string{
					{"ID", job.ID},
					{"Workflow", fmt.Sprintf("%s (%s)", job.WorkflowName, job.WorkflowID)},
					{"Status", job.Status},
					{"Scheduled at", job.ScheduledAt},
					{"Retries", fmt.Sprintf("%d/%d", job.RetryCount, job.MaxRetries)},
					{"Error", job.ErrorMessage},
					{"Executed at", job.ExecutedAt},
					{"Completed at", job.CompletedAt},
					{"Failed at", job.FailedAt},
					{"Created at", job.CreatedAt},
				},
				job,
			)
			return nil
		},
	}
}

func newJobCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a pending job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.CancelJob(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job cancelled: %s", job.ID))
			out.Print(jobHeaders, jobRows([]JobResponse{*job}), job)
			return nil
		},
	}
}

var jobHeaders = []string{"ID", "WORKFLOW", "STATUS", "SCHEDULED_AT", "RETRIES", "CREATED"}

func jobRows(jobs []JobResponse) [][]string {
	rows := make([][]string, len(jobs))
	for i, j := range jobs {
		name := j.WorkflowName
		if name == "" {
			name = j.WorkflowID
		}
		rows[i] = []string{
			j.ID,
			name,
			j.Status,
			j.ScheduledAt,
			strconv.Itoa(j.RetryCount) + "/" + strconv.Itoa(j.MaxRetries),
			j.CreatedAt,
		}
	}
	return rows
}
