package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/pnpsetup/internal/config"
	"github.com/steveyegge/pnpsetup/internal/machine/sim"
	"github.com/steveyegge/pnpsetup/internal/settle"
	"github.com/steveyegge/pnpsetup/internal/solutions"
	"github.com/steveyegge/pnpsetup/internal/solutions/camera"
	"github.com/steveyegge/pnpsetup/internal/storage"
	"github.com/steveyegge/pnpsetup/internal/telemetry"
)

// Version is set at build time
var Version = "dev"

var (
	configPath  string
	machinePath string
	dbPath      string
	debug       bool

	cfg   *config.Config
	store storage.Storage
	mach  *sim.Machine
)

var rootCmd = &cobra.Command{
	Use:   "pnpsetup",
	Short: "Guided pick-and-place machine setup",
	Long: `pnpsetup finds setup issues of a pick-and-place machine, milestone by
milestone, and applies the fixes the operator accepts.

Camera settling is calibrated automatically: the camera (or a nozzle over a
fixed camera) is moved through a small test pattern while the settle time is
measured, and the cheapest adaptive settle method that keeps up is chosen.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debug {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if machinePath != "" {
			cfg.MachineFile = machinePath
		}
		if dbPath != "" {
			cfg.DatabasePath = dbPath
		}

		ctx := cmd.Context()
		if err := telemetry.Init(ctx, telemetry.Options{
			Enabled:     cfg.Telemetry,
			ServiceName: "pnpsetup",
			Version:     Version,
		}); err != nil {
			log.Printf("Warning: telemetry disabled: %v", err)
		}

		store, err = storage.NewStorage(ctx, &storage.Config{Path: cfg.DatabasePath})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		mach, err = loadMachine(cfg.MachineFile)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: "+config.DefaultConfigPath+" if present)")
	rootCmd.PersistentFlags().StringVar(&machinePath, "machine", "", "Machine description file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// loadMachine reads the machine description. A missing file is created from
// the demo machine so a first run has something to work on.
func loadMachine(path string) (*sim.Machine, error) {
	m, err := sim.Load(path)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load machine: %w", err)
	}

	m, err = sim.New(sim.Demo())
	if err != nil {
		return nil, err
	}
	if err := m.Save(path); err != nil {
		return nil, fmt.Errorf("failed to write demo machine: %w", err)
	}
	fmt.Fprintf(os.Stderr, "No machine description at %s, created the demo machine\n", path)
	return m, nil
}

// saveMachine persists configuration changed by a fix.
func saveMachine() error {
	return mach.Save(cfg.MachineFile)
}

func newSelector() (*settle.Selector, error) {
	return settle.NewSelector(mach.Motion(), &settle.SelectorConfig{
		Settings: cfg.Settle,
		Recorder: store,
		History:  store,
	})
}

// newSolutions registers the detectors and runs detection for milestone.
func newSolutions(ctx context.Context, milestone string) (*solutions.Solutions, error) {
	m, err := solutions.ParseMilestone(milestone)
	if err != nil {
		return nil, err
	}
	sel, err := newSelector()
	if err != nil {
		return nil, err
	}

	s := solutions.New(m)
	s.SetRecorder(store)
	if err := camera.Register(s, mach, sel, mach); err != nil {
		return nil, fmt.Errorf("failed to register detectors: %w", err)
	}
	if err := s.FindIssues(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// shutdown closes the database and flushes telemetry. It runs after every
// command, including failed ones and failed setup, and is safe to repeat.
func shutdown() {
	if store != nil {
		if err := store.Close(); err != nil {
			log.Printf("Warning: failed to close database: %v", err)
		}
		store = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	telemetry.Shutdown(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	shutdown()
	if err != nil {
		os.Exit(1)
	}
}
