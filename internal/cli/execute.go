package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewExecuteCmd создаёт команду ручного запуска executor'а.
func NewExecuteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "execute",
		Short: "Trigger one executor pass",
		Long: `Trigger one executor pass: repair stuck jobs, select due jobs,
claim them and run each one through the delivery delegate.

Safe to call repeatedly: concurrent passes never execute the same job twice.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			result, err := client.Execute()
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Executed %d job(s), %d pending total",
				result.ExecutedCount, result.TotalPendingJobs))

			headers := []string{"JOB_ID", "WORKFLOW", "STATUS", "RETRY", "WILL_RETRY", "DURATION_MS", "ERROR"}
			rows := make([][]string, len(result.Results))
			for i, r := range result.Results {
				rows[i] = []string{
					r.JobID,
					r.WorkflowID,
					r.Status,
					strconv.Itoa(r.RetryCount),
					strconv.FormatBool(r.WillRetry),
					strconv.FormatInt(r.DurationMS, 10),
					r.Error,
				}
			}

			out.Print(headers, rows, result)
			return nil
		},
	}
}
