package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"os/signal"

	"github.com/spf13/cobra"

	"github.com/kobold-io/kobold/pkg/cmd"
	"github.com/kobold-io/kobold/pkg/configuration"
	"github.com/kobold-io/kobold/pkg/converter"
	"github.com/kobold-io/kobold/pkg/coverfetch"
	"github.com/kobold-io/kobold/pkg/filelock"
	"github.com/kobold-io/kobold/pkg/logging"
	"github.com/kobold-io/kobold/pkg/metadataprovider"
	"github.com/kobold-io/kobold/pkg/model"
	"github.com/kobold-io/kobold/pkg/must"
	"github.com/kobold-io/kobold/pkg/organizer"
	"github.com/kobold-io/kobold/pkg/pipeline"
	"github.com/kobold-io/kobold/pkg/queue"
	"github.com/kobold-io/kobold/pkg/store"
	"github.com/kobold-io/kobold/pkg/watching"
	"github.com/kobold-io/kobold/pkg/worker"
)

var runConfiguration struct {
	// configPath is an optional path to a configuration file.
	configPath string
}

func runMain(_ *cobra.Command, _ []string) error {
	settings, err := configuration.Load(runConfiguration.configPath)
	if err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}

	logger := logging.NewLogger(os.Stderr, logging.LevelInfo)

	dataPath := settings.DataPath
	if dataPath == "" {
		dataPath = "kobold.db"
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil && filepath.Dir(dataPath) != "." {
		return fmt.Errorf("unable to create data directory: %w", err)
	}

	lock, err := filelock.NewLocker(dataPath+".lock", 0o644)
	if err != nil {
		return fmt.Errorf("unable to create daemon lock: %w", err)
	}
	defer must.Close(lock, logger)
	if err := lock.Lock(false); err != nil {
		return fmt.Errorf("another kobold daemon is already running against %s: %w", dataPath, err)
	}
	defer must.Unlock(lock, logger)

	s, err := store.Open(dataPath)
	if err != nil {
		return fmt.Errorf("unable to open store: %w", err)
	}
	defer must.Close(s, logger)

	q := queue.New(s, logger)

	watchRoot := ""
	if len(settings.WatchDirs) > 0 {
		watchRoot = settings.WatchDirs[0]
	}
	org := organizer.New(settings.OrganizeTemplate, watchRoot, settings.OrganizeLibrary, logger)

	provider := metadataprovider.New(logger)
	cover := coverfetch.New(logger)
	conv := converter.New(filepath.Join(filepath.Dir(dataPath), "bin"), "", logger)

	registry := pipeline.NewRegistry()
	registry.Register(model.TaskTypeIngest, pipeline.NewIngestProcessor(s, q, logger))
	registry.Register(model.TaskTypeMetadata, pipeline.NewMetadataProcessor(s, q, provider, cover, settings.EmbedMetadata, settings.OrganizeLibrary, settings.ConvertEPUB, logger))
	registry.Register(model.TaskTypeConvert, pipeline.NewConvertProcessor(s, conv, settings.ConvertEPUB, logger))
	registry.Register(model.TaskTypeOrganize, pipeline.NewOrganizeProcessor(s, org, settings.OrganizeLibrary, logger))

	w := worker.New(q, registry, settings.WorkerPollInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	terminationSignals := make(chan os.Signal, 1)
	signal.Notify(terminationSignals, cmd.TerminationSignals...)

	go w.Run(ctx)

	if len(settings.WatchDirs) > 0 {
		watcher := watching.New(settings.WatchDirs, q, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Errorf("Watcher exited: %s", err)
			}
		}()
	} else {
		logger.Warn("No WATCH_DIRS configured; the watcher will not start")
	}

	logger.Info("kobold is running")
	<-terminationSignals
	logger.Info("Shutting down")
	cancel()

	return nil
}

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the kobold ingest/organize daemon in the foreground",
	Run:   cmd.Mainify(runMain),
}

func init() {
	flags := runCommand.Flags()
	flags.StringVar(&runConfiguration.configPath, "config", "", "Path to a configuration file")
}
