// Fresco CLI — инструмент командной строки для управления стенами,
// картами препятствий и jobs.
//
// Использование:
//
//	fresco [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	wall  Управление стенами и картами препятствий
//	job   Управление запросами на планирование
//
// Подключения настраиваются переменными окружения DB_URL, REDIS_URL
// и RABBITMQ_URL — теми же, что у сервисов.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Fresco/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "fresco",
		Short:         "Fresco CLI — wall finishing robot path planning",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	var client *cli.Client
	clientFn := func() *cli.Client {
		if client == nil {
			client = cli.NewClient(ctx)
		}
		return client
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewWallCmd(clientFn, outputFn),
		cli.NewJobCmd(clientFn, outputFn),
	)

	err := rootCmd.Execute()
	if client != nil {
		client.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "fresco:", err)
		os.Exit(1)
	}
}
