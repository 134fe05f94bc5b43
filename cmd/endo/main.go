package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/fx"

	"github.com/endolabs/endo-cli/internal/api"
	"github.com/endolabs/endo-cli/internal/auth"
	"github.com/endolabs/endo-cli/internal/config"
	"github.com/endolabs/endo-cli/internal/dexcom"
	"github.com/endolabs/endo-cli/internal/logger"
	"github.com/endolabs/endo-cli/internal/notify"
	"github.com/endolabs/endo-cli/internal/session"
	"github.com/endolabs/endo-cli/internal/tui"
)

func main() {
	Execute()
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "endo",
	Short: "Terminal client for the Endo glucose platform",
	Long: `Endo is a terminal client for the Endo glucose platform.
It manages your account session and brokers the Dexcom CGM connection on your behalf.`,
	Run: runApp,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".config", "endo", "config.yaml")
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		pterm.Info.Printfln("Wrote default configuration to %s", path)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.Println(config.GetVersionInfo())
			os.Exit(0)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	config.InitFlags()
	rootCmd.PersistentFlags().AddFlagSet(pflag.CommandLine)
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// runApp wires the dependency graph and runs the TUI until the user
// quits.
func runApp(cmd *cobra.Command, args []string) {
	defer func() {
		if r := recover(); r != nil {
			pterm.Error.Printf("\nCaught panic: %v\n", r)
			pterm.Error.Printf("%s\n", debug.Stack())
			os.Exit(2)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		pterm.Error.Printfln("Error loading configuration: %v", err)
		os.Exit(1)
	}

	// The TUI owns the terminal, so console logging is forced off in
	// favor of the configured file output.
	cfg.Logging.DisableConsole = true
	if err := logger.InitLogger(&cfg.Logging); err != nil {
		pterm.Error.Printfln("Error initializing logger: %v", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var model tui.AppModel
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		api.Module,
		session.Module,
		notify.Module,
		auth.Module,
		dexcom.Module,
		tui.Module,
		fx.Invoke(registerLifecycle),
		// Restore before the app model is built, so the initial page
		// reflects any persisted session.
		fx.Invoke(func(flow *auth.Controller) { flow.Start() }),
		fx.Populate(&model),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		pterm.Error.Printfln("Error starting application: %v", err)
		os.Exit(1)
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		pterm.Error.Printfln("Error running program: %v", err)
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		pterm.Error.Printfln("Error during shutdown: %v", err)
	}
}

// registerLifecycle ties the long-lived resources to the fx lifecycle:
// the callback listener serves while the app runs, and the database and
// notification timers are released on shutdown.
func registerLifecycle(lc fx.Lifecycle, listener *dexcom.Listener, db *session.DB, queue *notify.Queue) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return listener.Start()
		},
		OnStop: func(ctx context.Context) error {
			queue.Close()
			if err := listener.Stop(); err != nil {
				logger.Error("failed to stop callback listener")
				return err
			}
			return db.Close()
		},
	})
}
