package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewSignalCmd создаёт группу команд для аудита вызовов executor'а.
func NewSignalCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Inspect executor invocation audit records",
	}

	cmd.AddCommand(
		newSignalListCmd(clientFn, outputFn),
		newSignalShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newSignalListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent invocations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			signals, err := client.ListSignals(limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "INVOKED_AT", "SOURCE", "STATUS", "EXECUTED", "DURATION_MS"}
			rows := make([][]string, len(signals))
			for i, s := range signals {
				rows[i] = []string{
					s.ID,
					s.InvokedAt,
					s.Source,
					strconv.Itoa(s.ResponseStatus),
					strconv.Itoa(s.ExecutedCount),
					strconv.FormatInt(s.DurationMS, 10),
				}
			}

			out.Print(headers, rows, signals)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newSignalShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show SIGNAL_ID",
		Short: "Show invocation details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			signal, err := client.GetSignal(args[0])
			if err != nil {
				return err
			}

			rows := [][]string{
				{"ID", signal.ID},
				{"Invoked at", signal.InvokedAt},
				{"Source", signal.Source},
				{"Response status", strconv.Itoa(signal.ResponseStatus)},
				{"Executed count", strconv.Itoa(signal.ExecutedCount)},
				{"Duration (ms)", strconv.FormatInt(signal.DurationMS, 10)},
				{"Completed at", signal.CompletedAt},
			}
			for k, v := range signal.Metadata {
				rows = append(rows, []string{fmt.Sprintf("Header %s", k), v})
			}

			out.Print([]string{"FIELD", "VALUE"}, rows, signal)
			return nil
		},
	}
}
