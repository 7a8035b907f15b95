package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/robby/roster/internal/bridge"
	"github.com/robby/roster/internal/config"
	"github.com/robby/roster/internal/logging"
	"github.com/robby/roster/internal/session"
	"github.com/robby/roster/internal/store"
	"github.com/robby/roster/internal/tui"
)

var (
	// CLI flags
	configFlag   string
	sessionFlag  string
	outFlag      string
	logFileFlag  string
	logLevelFlag string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "roster",
		Short: "Download group member lists to CSV",
		Long: `roster signs in to your account and downloads the member lists of the
groups you name, writing one CSV file per group.

Credentials:
  Set ROSTER_API_ID and ROSTER_API_HASH, or put them in the config file
  under remote.api_id and remote.api_hash.

The session is kept in downloader.session (see --session) so you only
need to enter a login code once.`,
		SilenceUsage: true,
		RunE:         runTUI,
	}

	// Define CLI flags
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "roster.yaml", "Path to the yaml config file (optional)")
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "Session file path. Overrides the config.")
	rootCmd.PersistentFlags().StringVar(&outFlag, "out", "", "Directory for CSV exports. Overrides the config.")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "Log destination: a file path, stdout, stderr or discard.")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn or error.")

	rootCmd.AddCommand(newExportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers flags over the file and environment.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return config.Config{}, err
	}
	if sessionFlag != "" {
		cfg.Session.Path = sessionFlag
	}
	if outFlag != "" {
		cfg.OutputDir = outFlag
	}
	if logFileFlag != "" {
		cfg.Log.Output = logFileFlag
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// start loads the config, sets up logging and connects the bridge.
// The returned cleanup closes the bridge, waits for it and closes the log.
func start(ctx context.Context) (config.Config, *bridge.Bridge, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logging.SetGlobal(logger)

	sessions, err := session.NewStore(cfg.Session)
	if err != nil {
		logCloser.Close()
		return config.Config{}, nil, nil, err
	}

	b, err := bridge.New(ctx, bridge.Options{
		Connect:   bridge.ConnectRemote(cfg.Remote),
		Sessions:  sessions,
		OutputDir: cfg.OutputDir,
		QueueSize: cfg.QueueSize,
		Logger:    logging.Component("bridge"),
	})
	if err != nil {
		logCloser.Close()
		return config.Config{}, nil, nil, fmt.Errorf("failed to start: %w", err)
	}

	cleanup := func() {
		b.Close()
		b.Wait()
		closeQuietly(logCloser)
	}
	return cfg, b, cleanup, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, b, cleanup, err := start(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	// Create app model
	app := tui.NewAppModel(b, store.New(), cfg.PollInterval)

	// Run Bubble Tea program
	p := tea.NewProgram(app, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("program error: %w", err)
	}
	if m, ok := final.(tui.AppModel); ok && m.Err() != nil {
		if errors.Is(m.Err(), bridge.ErrClosed) {
			logging.Global().Error("Background worker stopped", "error", m.Err())
		}
		return m.Err()
	}
	return nil
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
