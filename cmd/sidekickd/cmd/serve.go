package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/sidekickd/sidekick/internal/api"
	"github.com/sidekickd/sidekick/internal/config"
	"github.com/sidekickd/sidekick/internal/session"
	"github.com/sidekickd/sidekick/internal/speech"
	"github.com/sidekickd/sidekick/internal/storage"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the localhost API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 47090, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	logger := newLogger()

	paths := storage.NewPaths()
	if dataDir != "" {
		paths = storage.NewPathsAt(dataDir)
	}
	base, err := paths.Base()
	if err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	settingsPath, err := paths.Settings()
	if err != nil {
		return fmt.Errorf("resolving settings path: %w", err)
	}
	settings, err := config.Load(settingsPath)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	// External edits of the settings file propagate too; in-process
	// Set notifies listeners on its own.
	if err := settings.Watch(); err != nil {
		logger.Warn("settings file watch unavailable", "error", err)
	}
	defer settings.Close()

	dbPath, err := paths.Database()
	if err != nil {
		return fmt.Errorf("resolving database path: %w", err)
	}
	store, err := storage.Open(dbPath, logger)
	if err != nil {
		return fmt.Errorf("opening conversation store: %w", err)
	}
	defer store.Close()

	exportDir := settings.Get().SaveDir
	if exportDir == "" {
		exportDir, err = paths.Exports()
		if err != nil {
			return fmt.Errorf("resolving export directory: %w", err)
		}
	}

	manager := session.NewManager(session.Deps{
		Settings: settings,
		Local:    localSynthesizer(settings, logger),
		Player:   audioPlayer(logger),
		Store:    store,
		Exporter: storage.NewExporter(exportDir, logger),
		Logger:   logger,
	})

	server := api.NewServer(settings, manager, store, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(servePort)
	}()
	logger.Info("sidekickd ready", "port", servePort, "data", base)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	manager.CloseAll(ctx)
	return server.Stop(ctx)
}

// localSynthesizer builds the exec-backed synthesizer from the
// configured command line, or nil when none is configured.
func localSynthesizer(settings *config.Store, logger *log.Logger) speech.LocalSynthesizer {
	argv := settings.Get().Speech.LocalCommand
	if len(argv) == 0 {
		return nil
	}
	synth, err := speech.NewExecSynthesizer(argv, nil)
	if err != nil {
		logger.Warn("local speech unavailable", "error", err)
		return nil
	}
	return synth
}

// audioPlayer picks the first playback command available on PATH.
func audioPlayer(logger *log.Logger) speech.Player {
	for _, argv := range [][]string{
		{"mpv", "--no-video", "-"},
		{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-"},
		{"afplay", "/dev/stdin"},
	} {
		player, err := speech.NewExecPlayer(argv)
		if err == nil {
			return player
		}
	}
	logger.Warn("no audio player found; cloud playback disabled")
	return nil
}
