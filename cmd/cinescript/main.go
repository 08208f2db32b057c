package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/JustinTDCT/cinescript/internal/analysis"
	"github.com/JustinTDCT/cinescript/internal/config"
	"github.com/JustinTDCT/cinescript/internal/db"
	"github.com/JustinTDCT/cinescript/internal/detection"
	"github.com/JustinTDCT/cinescript/internal/logging"
	"github.com/JustinTDCT/cinescript/internal/repository"
	"github.com/JustinTDCT/cinescript/internal/skiprange"
	"github.com/JustinTDCT/cinescript/internal/timeline"
	"github.com/JustinTDCT/cinescript/internal/version"
)

var (
	cfgFile string
	verbose bool
	app     *App
)

// App holds everything a command needs once config and the database are up.
type App struct {
	cfg      *config.Config
	db       *db.DB
	jobs     *repository.JobRepository
	settings *repository.SettingsRepository
	ranges   *skiprange.Store
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "cinescript",
	Short:         "cinescript - plan which parts of a video need transcription",
	Long:          "Splits media into overlapping windows, finds dark and silent stretches, merges them with manual skip ranges and reports the audio left to transcribe.",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		logging.Init(cfg.LogLevel, cfg.LogPretty)

		database, err := db.Open(cmd.Context(), cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if err := database.Migrate(cmd.Context()); err != nil {
			database.Close()
			return err
		}

		settings := repository.NewSettingsRepository(database)
		if err := cfg.MergeFromDB(cmd.Context(), settings); err != nil {
			if !underCommand(cmd, settingsCmd) {
				database.Close()
				return err
			}
			log.Warn().Err(err).Msg("stored settings are invalid and were not applied")
		}

		app = &App{
			cfg:      cfg,
			db:       database,
			jobs:     repository.NewJobRepository(database),
			settings: settings,
			ranges:   skiprange.NewStore(repository.NewSkipRangeRepository(database), logging.WithComponent("skiprange")),
		}
		log.Debug().Str("driver", cfg.DatabaseDriver).Msg("database ready")
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app != nil {
			return app.db.Close()
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	// Skips config and database setup.
	PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return nil },
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		v := version.Load()
		if v.Commit != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "cinescript %s (%s)\n", v.Version, v.Commit)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cinescript %s\n", v.Version)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $CINESCRIPT_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(skipCmd)
	rootCmd.AddCommand(settingsCmd)
}

func underCommand(cmd, parent *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == parent {
			return true
		}
	}
	return false
}

// newAnalyzer wires the detector, ffmpeg sources and skip ranges from config.
func (a *App) newAnalyzer(options ...analysis.Option) (*analysis.Analyzer, error) {
	cfg := a.cfg
	det, err := detection.New(cfg.DetectionConfig(), logging.WithComponent("detection"))
	if err != nil {
		return nil, err
	}
	tie, _ := timeline.ParseTiePolicy(cfg.TiePolicy)
	opener := &analysis.FFmpegOpener{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		HWAccel:     cfg.HWAccel,
		SampleRate:  cfg.AudioSampleRate,
	}
	return analysis.New(opener, det, a.ranges, analysis.Options{
		ChunkDuration:    cfg.ChunkDurationSeconds,
		ChunkOverlap:     cfg.ChunkOverlapSeconds,
		SceneSampleEvery: cfg.SceneSampleEvery,
		SceneThreshold:   cfg.SceneThreshold,
		Timeline:         timeline.Builder{TiePolicy: tie, MinSegment: cfg.MinSegmentSeconds},
	}, logging.WithComponent("analysis"), options...)
}
