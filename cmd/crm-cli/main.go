// crm-cli — инструмент командной строки для инспекции и управления
// scheduled jobs, аудитом вызовов и расписаниями кампаний через HTTP API.
//
// Использование:
//
//	crm-cli [--api-url URL] [--secret TOKEN] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	job       Инспекция и отмена scheduled jobs
//	signal    Аудит вызовов executor'а
//	schedule  Управление расписаниями кампаний
//	execute   Ручной запуск одного прохода executor'а
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var secret string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "crm-cli",
		Short:         "CRM scheduled-job executor CLI",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "Executor API URL")
	rootCmd.PersistentFlags().StringVar(&secret, "secret", os.Getenv("CRON_SECRET"), "Shared secret for the trigger API (default: $CRON_SECRET)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, secret) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewJobCmd(clientFn, outputFn),
		cli.NewSignalCmd(clientFn, outputFn),
		cli.NewScheduleCmd(clientFn, outputFn),
		cli.NewExecuteCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
