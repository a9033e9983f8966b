// Package cli is the command-line entrypoint: it assembles the engine over a
// music directory and runs it until interrupted.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"implayer/internal/audio"
	"implayer/internal/config"
	"implayer/internal/download"
	"implayer/internal/engine"
	"implayer/internal/library"
	"implayer/internal/logging"
	"implayer/internal/playlist"
)

var (
	cfgFile  string
	logLevel string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "implayer <music-dir>",
	Short: "m3u8 playlist manager and audio player",
	Long: `implayer plays the audio files in a music directory organized as m3u8
playlists, keeping every playlist mutation in sync with the files on disk.`,
	Args: cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	RunE:         run,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.config/implayer/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
}

func initConfig() error {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logging.Setup(cfg.LogLevel)
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	dir := args[0]
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("music directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("music directory: %s is not a directory", dir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := playlist.NewStore(dir)
	prober := library.NewProber(store, cfg.FFprobePath, cfg.ProbeWorkers)
	lib := library.NewLibrary(dir, store, prober)
	eng := audio.NewEngine(audio.DecoderConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		SampleRate:  cfg.SampleRate,
	}, audio.NewSpeakerOutput(), cfg.Volume)
	pipe := download.NewPipeline(dir, download.NewYTDLPFetcher(cfg.Download.AudioFormat), download.Options{
		NormalizeCommand: cfg.Download.NormalizeCommand,
		FetchTimeout:     cfg.Download.FetchTimeout.Duration,
		NormalizeTimeout: cfg.Download.NormalizeTimeout.Duration,
	})

	facade := engine.New(cfg, store, lib, eng, pipe)
	if err := facade.Start(ctx); err != nil {
		return err
	}
	defer facade.Close()

	for _, pl := range facade.Playlists() {
		fmt.Printf("%-24s %d songs\n", pl.Name, len(pl.Songs))
	}

	log := logging.For("cli")
	events := facade.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			logEvent(log, ev)
		}
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
