// Vitrina CLI — инструмент командной строки для управления
// actions, jobs и rules через HTTP API.
//
// Использование:
//
//	vitrina [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	action  Управление отложенными действиями
//	job     Просмотр publishing jobs
//	rule    Управление automation rules
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitrina-io/vitrina/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "vitrina",
		Short:         "Vitrina CLI — business automation tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewActionCmd(clientFn, outputFn),
		cli.NewJobCmd(clientFn, outputFn),
		cli.NewRuleCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
