package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nvandessel/levertask/internal/config"
	"github.com/nvandessel/levertask/internal/hardware"
	"github.com/nvandessel/levertask/internal/logging"
	"github.com/nvandessel/levertask/internal/monitor"
	"github.com/nvandessel/levertask/internal/session"
	"github.com/nvandessel/levertask/internal/simulation"
	"github.com/nvandessel/levertask/internal/store"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one session",
		Long: `Run one session on the simulated rig until interrupted or a session
limit is reached, then save the recorded data and print a summary.

The levers are driven by two simulated animals, or by a replay script
(--script, a YAML list of {at, channel, position} steps).

A checkpoint left behind by an interrupted run in the output directory is
saved before the new session starts.

Examples:
  levertask run                                # Run with ~/.levertask/config.yaml
  levertask run --max-trials 20 --monitor      # Stop after 20 trials, serve the live monitor
  levertask run --script pulls.yaml --no-save  # Replay recorded pulls, save nothing`,
		RunE: runSession,
	}

	cmd.Flags().String("script", "", "Replay lever positions from a YAML script")
	cmd.Flags().Int("max-trials", -1, "Override session.max_trials")
	cmd.Flags().Duration("duration", -1, "Override session.duration")
	cmd.Flags().Uint64("seed", 0, "Override session.seed")
	cmd.Flags().Bool("no-save", false, "Do not write session files or archive")
	cmd.Flags().Bool("monitor", false, "Serve the live monitor on monitor.addr")

	return cmd
}

func runSession(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Session.Seed == 0 {
		cfg.Session.Seed = uint64(time.Now().UnixNano())
	}

	logger, closer := logging.NewSessionLogger(cfg.Logging.Level, cmd.ErrOrStderr(), cfg.Logging.File, cfg.Logging.Rotation())
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM: stop the loop, teardown still saves.
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("stopping session", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	writer, closeWriter, err := buildWriter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeWriter()

	if writer != nil {
		recoverCheckpoint(ctx, cfg.Storage.OutputDir, writer, logger)
	}

	tc := cfg.TrialConfig()
	levers := hardware.NewSimLever()
	pumps := hardware.NewSimPump(2, hardware.PumpState{
		VolumeUnits: hardware.VolumeMilliliters,
		Rate:        10,
		RateUnits:   hardware.RateMillilitersPerMinute,
	})
	driver, err := buildDriver(cmd, cfg, levers)
	if err != nil {
		return err
	}

	opts := session.Options{
		Trial:       tc,
		Levers:      levers,
		Pumps:       pumps,
		Audio:       hardware.NewSimAudio(),
		CuePaths:    cfg.CuePaths(),
		Info:        cfg.SessionInfo(time.Now()),
		MaxTrials:   cfg.Session.MaxTrials,
		MaxDuration: cfg.Session.Duration,
		Driver:      driver,
		Logger:      logger,
		Transitions: logging.NewTransitionLogger(cfg.Storage.OutputDir, cfg.Logging.Level),
	}
	if writer != nil {
		opts.Writer = writer
		opts.CheckpointDir = cfg.Storage.OutputDir
	}
	sess := session.New(opts)

	monitorDone := make(chan error, 1)
	if cfg.Monitor.Enabled {
		srv := monitor.NewServer(sess, logger, monitor.WithRateLimit(cfg.Monitor.RateLimit, cfg.Monitor.Burst))
		go func() { monitorDone <- srv.ListenAndServe(ctx, cfg.Monitor.Addr) }()
	} else {
		monitorDone <- nil
	}

	runErr := session.NewRunner(cfg.TickInterval(), logger).Run(ctx, sess)
	cancel()
	if err := <-monitorDone; err != nil {
		logger.Warn("monitor stopped with error", "error", err)
	}

	sum := sess.Summary()
	if jsonOut {
		if err := json.NewEncoder(cmd.OutOrStdout()).Encode(sum); err != nil {
			return err
		}
	} else {
		printSummary(cmd, sum)
	}
	return runErr
}

// applyRunFlags applies the run command's overrides to cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.ExperimentConfig) {
	if n, _ := cmd.Flags().GetInt("max-trials"); n >= 0 {
		cfg.Session.MaxTrials = n
	}
	if d, _ := cmd.Flags().GetDuration("duration"); d >= 0 {
		cfg.Session.Duration = d
	}
	if seed, _ := cmd.Flags().GetUint64("seed"); seed != 0 {
		cfg.Session.Seed = seed
	}
	if noSave, _ := cmd.Flags().GetBool("no-save"); noSave {
		cfg.Storage.SaveData = false
	}
	if mon, _ := cmd.Flags().GetBool("monitor"); mon {
		cfg.Monitor.Enabled = true
	}
}

// buildWriter returns the configured writers, or nil when saving is off.
func buildWriter(ctx context.Context, cfg *config.ExperimentConfig) (store.Writer, func(), error) {
	if !cfg.Storage.SaveData {
		return nil, func() {}, nil
	}
	writers := store.MultiWriter{store.NewJSONExporter(cfg.Storage.OutputDir)}
	closeFn := func() {}
	if cfg.Storage.DBPath != "" {
		archive, err := store.OpenSQLite(ctx, cfg.Storage.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening archive: %w", err)
		}
		writers = append(writers, archive)
		closeFn = func() { archive.Close() }
	}
	return writers, closeFn, nil
}

func buildDriver(cmd *cobra.Command, cfg *config.ExperimentConfig, levers *hardware.SimLever) (session.Driver, error) {
	channels := cfg.TrialConfig().Channels
	if path, _ := cmd.Flags().GetString("script"); path != "" {
		script, err := simulation.LoadScript(path)
		if err != nil {
			return nil, err
		}
		return simulation.NewScriptDriver(levers, channels, script), nil
	}

	animals := simulation.DefaultAnimals()
	animals[0].Name = cfg.Session.Animal1
	animals[1].Name = cfg.Session.Animal2
	return simulation.NewAnimalDriver(levers, channels, cfg.Session.Seed, animals...)
}

// recoverCheckpoint saves a session an earlier run left unsaved.
func recoverCheckpoint(ctx context.Context, dir string, w store.Writer, logger *slog.Logger) {
	cp, err := session.LoadCheckpoint(dir)
	if err != nil {
		logger.Warn("unreadable checkpoint left in place", "path", session.CheckpointPath(dir), "error", err)
		return
	}
	if cp == nil {
		return
	}
	if err := w.WriteSession(ctx, cp); err != nil {
		logger.Error("saving recovered session failed", "error", err)
		return
	}
	logger.Info("recovered interrupted session", "started_at", cp.StartedAt, "trials", len(cp.Trials))
	if err := session.RemoveCheckpoint(dir); err != nil {
		logger.Warn("removing checkpoint failed", "error", err)
	}
}

func printSummary(cmd *cobra.Command, sum session.Summary) {
	out := cmd.OutOrStdout()
	color.New(color.Bold).Fprintln(out, "Session summary")
	fmt.Fprintf(out, "  elapsed:          %s\n", sum.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  trials:           %d\n", sum.Trials)
	fmt.Fprintf(out, "  rewarded trials:  %d\n", sum.RewardedTrials)
	fmt.Fprintf(out, "  deliveries:       %d\n", sum.Deliveries)
	fmt.Fprintf(out, "  behavior events:  %d\n", sum.Events)
	fmt.Fprintf(out, "  lever readouts:   %d\n", sum.Readouts)
	if sum.TickErrors > 0 {
		color.New(color.FgRed).Fprintf(out, "  tick errors:      %d\n", sum.TickErrors)
	}
	if sum.Saved {
		color.New(color.FgGreen).Fprintln(out, "  saved")
	} else {
		color.New(color.FgYellow).Fprintln(out, "  not saved")
	}
}
