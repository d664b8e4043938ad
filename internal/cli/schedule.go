package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для расписаний кампаний.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage recurring campaign schedules",
	}

	cmd.AddCommand(
		newScheduleListCmd(clientFn, outputFn),
		newScheduleCreateCmd(clientFn, outputFn),
		newScheduleShowCmd(clientFn, outputFn),
		newScheduleEnableCmd(clientFn, outputFn, true),
		newScheduleEnableCmd(clientFn, outputFn, false),
		newScheduleDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newScheduleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var workflowID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List campaign schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedules, err := client.ListSchedules(workflowID)
			if err != nil {
				return err
			}

			out.Print(scheduleHeaders, scheduleRows(schedules), schedules)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "Filter by workflow ID")

	return cmd
}

func newScheduleCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name, cronExpr, timezone string
	var intervalSec int
	var disabled bool

	cmd := &cobra.Command{
		Use:   "create WORKFLOW_ID",
		Short: "Create a campaign schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if cronExpr == "" && intervalSec <= 0 {
				return fmt.Errorf("either --cron or --interval is required")
			}

			enabled := !disabled
			schedule, err := client.CreateSchedule(CreateScheduleRequest{
				WorkflowID:  args[0],
				Name:        name,
				CronExpr:    cronExpr,
				IntervalSec: intervalSec,
				Timezone:    timezone,
				Enabled:     &enabled,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule created: %s", schedule.ID))
			out.Print(scheduleHeaders, scheduleRows([]ScheduleResponse{*schedule}), schedule)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Schedule name")
	cmd.Flags().StringVar(&cronExpr, "cron", "", `Cron expression, e.g. "0 9 * * *"`)
	cmd.Flags().IntVar(&intervalSec, "interval", 0, "Interval in seconds")
	cmd.Flags().StringVar(&timezone, "timezone", "", "Timezone (default Asia/Seoul)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create in disabled state")

	return cmd
}

func newScheduleShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show SCHEDULE_ID",
		Short: "Show schedule details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedule, err := client.GetSchedule(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"FIELD", "VALUE"},
				[][]string{
					{"ID", schedule.ID},
					{"Workflow", schedule.WorkflowID},
					{"Name", schedule.Name},
					{"Cron", schedule.CronExpr},
					{"Interval (sec)", strconv.Itoa(schedule.IntervalSec)},
					{"Timezone", schedule.Timezone},
					{"Enabled", strconv.FormatBool(schedule.Enabled)},
					{"Next due at", schedule.NextDueAt},
					{"Last run at", schedule.LastRunAt},
					{"Last job", schedule.LastJobID},
				},
				schedule,
			)
			return nil
		},
	}
}

func newScheduleEnableCmd(clientFn func() *Client, outputFn func() *Output, enable bool) *cobra.Command {
	use, short, done := "enable SCHEDULE_ID", "Enable a schedule", "Schedule enabled: %s"
	if !enable {
		use, short, done = "disable SCHEDULE_ID", "Disable a schedule", "Schedule disabled: %s"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedule, err := client.SetScheduleEnabled(args[0], enable)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf(done, schedule.ID))
			out.Print(scheduleHeaders, scheduleRows([]ScheduleResponse{*schedule}), schedule)
			return nil
		},
	}
}

func newScheduleDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete SCHEDULE_ID",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteSchedule(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule deleted: %s", args[0]))
			return nil
		},
	}
}

var scheduleHeaders = []string{"ID", "WORKFLOW", "NAME", "CRON/INTERVAL", "ENABLED", "NEXT_DUE"}

func scheduleRows(schedules []ScheduleResponse) [][]string {
	rows := make([][]string, len(schedules))
	for i, s := range schedules {
		spec := s.CronExpr
		if spec == "" {
			spec = fmt.Sprintf("every %ds", s.IntervalSec)
		}
		rows[i] = []string{
			s.ID,
			s.WorkflowID,
			s.Name,
			spec,
			strconv.FormatBool(s.Enabled),
			s.NextDueAt,
		}
	}
	return rows
}
