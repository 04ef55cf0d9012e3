package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kobold-io/kobold/pkg/cmd"
	"github.com/kobold-io/kobold/pkg/configuration"
	"github.com/kobold-io/kobold/pkg/logging"
	"github.com/kobold-io/kobold/pkg/model"
	"github.com/kobold-io/kobold/pkg/must"
	"github.com/kobold-io/kobold/pkg/queue"
	"github.com/kobold-io/kobold/pkg/store"
)

var queueStatsConfiguration struct {
	configPath string
}

func queueStatsMain(_ *cobra.Command, _ []string) error {
	settings, err := configuration.Load(queueStatsConfiguration.configPath)
	if err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}

	dataPath := settings.DataPath
	if dataPath == "" {
		dataPath = "kobold.db"
	}

	logger := logging.NewLogger(io.Discard, logging.LevelDisabled)

	s, err := store.Open(dataPath)
	if err != nil {
		return fmt.Errorf("unable to open store: %w", err)
	}
	defer must.Close(s, logger)

	q := queue.New(s, logger)
	stats, err := q.Stats()
	if err != nil {
		return fmt.Errorf("unable to read queue stats: %w", err)
	}

	total := 0
	for _, status := range model.AllTaskStatuses {
		count := stats[status]
		total += count
		fmt.Printf("%-14s %s\n", status, humanize.Comma(int64(count)))
	}
	fmt.Printf("%-14s %s\n", "TOTAL", humanize.Comma(int64(total)))

	return nil
}

var queueStatsCommand = &cobra.Command{
	Use:   "stats",
	Short: "Print task counts by status",
	Run:   cmd.Mainify(queueStatsMain),
}

var queueCommand = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the task queue",
}

func init() {
	flags := queueStatsCommand.Flags()
	flags.StringVar(&queueStatsConfiguration.configPath, "config", "", "Path to a configuration file")

	queueCommand.AddCommand(queueStatsCommand)
}
