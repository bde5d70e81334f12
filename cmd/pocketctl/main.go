package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"pockets/internal/backend"
	"pockets/internal/cli"
	"pockets/internal/config"
	"pockets/internal/ledger"
	"pockets/internal/log"
)

var (
	flagBackend string
	flagDBPath  string
	flagQuiet   bool
)

// app is the state shared by every subcommand once the ledger is loaded.
type app struct {
	cfg     *config.Config
	ledger  *ledger.Store
	out     io.Writer
	cleanup []func() error
}

var current *app

var rootCmd = &cobra.Command{
	Use:               "pocketctl",
	Short:             "Manage pockets, bills and transactions",
	Long:              "pocketctl reads and writes the same pocket ledger as the pockets server.",
	SilenceUsage:      true,
	PersistentPreRunE: openApp,
	PersistentPostRunE: func(*cobra.Command, []string) error {
		return closeApp()
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_ = closeApp()
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "Data backend (sqlite or memory); overrides DATA_BACKEND")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "SQLite database path; overrides SQLITE_DB_PATH")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress notices")
}

func openApp(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagBackend != "" {
		cfg.DataBackend = flagBackend
	}
	if flagDBPath != "" {
		cfg.SQLiteDBPath = flagDBPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Logs go to stderr at warn so they never mix with command output.
	logCfg := log.DefaultConfig()
	logCfg.Level = log.ParseLevel("warn")
	logCfg.Component = log.ComponentCLI
	logCfg.Output = os.Stderr
	logger := log.New(logCfg)

	ctx := cmd.Context()
	factory := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog())
	bcfg, storeRes, err := cli.OpenStore(ctx, factory, cfg)
	if err != nil {
		return err
	}

	a := &app{cfg: cfg, out: cmd.OutOrStdout()}
	if storeRes.Cleanup != nil {
		a.cleanup = append(a.cleanup, storeRes.Cleanup)
	}

	opts := []ledger.Option{
		ledger.WithLogger(logger.WithComponent(log.ComponentLedger).Slog()),
		ledger.WithNotifier(noticePrinter{w: cmd.ErrOrStderr(), quiet: flagQuiet}),
	}
	// Publish so the worker exports CLI writes too.
	if amqpClient, err := factory.CreateMessaging(ctx, bcfg); err != nil {
		logger.Warn("AMQP unavailable, changes will not be published", log.FieldError, err)
	} else if amqpClient != nil {
		opts = append(opts, ledger.WithPublisher(amqpClient))
		a.cleanup = append(a.cleanup, amqpClient.Close)
	}

	a.ledger = ledger.New(storeRes.Store, opts...)
	current = a
	return a.ledger.Load(ctx)
}

func closeApp() error {
	if current == nil {
		return nil
	}
	var first error
	for i := len(current.cleanup) - 1; i >= 0; i-- {
		if err := current.cleanup[i](); err != nil && first == nil {
			first = err
		}
	}
	current = nil
	return first
}

// noticePrinter shows ledger notices on stderr.
type noticePrinter struct {
	w     io.Writer
	quiet bool
}

func (p noticePrinter) Notify(_ context.Context, n ledger.Notice) {
	if p.quiet && n.Level != ledger.LevelError {
		return
	}
	fmt.Fprintln(p.w, cli.Notice(n.Level, n.Message))
}
