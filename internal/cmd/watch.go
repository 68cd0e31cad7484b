package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fight5566jay/Explainable-Mortal/internal/aggregator"
	"github.com/fight5566jay/Explainable-Mortal/internal/batch"
	"github.com/fight5566jay/Explainable-Mortal/internal/hub"
	"github.com/fight5566jay/Explainable-Mortal/internal/ledger"
	"github.com/fight5566jay/Explainable-Mortal/internal/logging"
	"github.com/fight5566jay/Explainable-Mortal/internal/output"
	"github.com/fight5566jay/Explainable-Mortal/internal/server"
	"github.com/fight5566jay/Explainable-Mortal/internal/watcher"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Regenerate reports as archives appear in a directory",
	Long: `Watch a directory and generate a report whenever a matching archive is
created or rewritten. Existing archives are converted first; archives recorded
in the state file as unchanged are skipped.

Examples:
  viewlogs watch ./logs
  viewlogs watch ./logs -o ./reports --serve :8090`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("serve", "", "serve a report dashboard on this address (e.g. :8090)")
	watchCmd.Flags().String("state", ".viewlogs-state.json", "file recording converted archives (empty to disable)")
	watchCmd.Flags().Duration("settle", batch.DefaultSettle, "quiet period before a changed archive is converted")
	cobra.CheckErr(viper.BindPFlag("serve", watchCmd.Flags().Lookup("serve")))
	cobra.CheckErr(viper.BindPFlag("state", watchCmd.Flags().Lookup("state")))
	cobra.CheckErr(viper.BindPFlag("settle", watchCmd.Flags().Lookup("settle")))
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	logger := logging.Setup(s.LogLevel, s.LogFormat, os.Stderr)
	renderer, err := output.New(s.Format, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	dir := args[0]
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", batch.ErrInputPathInvalid, dir)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- Event fan-out ---
	h := hub.New(logger)
	renderEvents := h.Subscribe()
	agg := aggregator.New(h.Subscribe(), h.Dropped)

	coord := batch.New(batch.Options{
		Template:  s.Template,
		OutputDir: s.Output,
		Pattern:   s.Pattern,
	}, logger, h)
	if err := coord.CheckTemplate(); err != nil {
		return err
	}

	w, err := watcher.New(dir, s.Pattern, logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	l, err := ledger.Open(viper.GetString("state"))
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	logger.Info("watching for archives", "dir", w.Root(), "pattern", s.Pattern, "dirs", len(w.Dirs()))

	// --- Start pipeline ---
	go h.Start(ctx)
	go agg.Start(ctx)
	go w.Start(ctx)

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for ev := range renderEvents {
			if err := renderer.Render(ev); err != nil {
				logger.Warn("render error", "error", err)
			}
		}
	}()

	if addr := viper.GetString("serve"); addr != "" {
		root := s.Output
		if root == "" {
			root = w.Root()
		}
		srv := server.New(h, agg, root, addr, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("dashboard stopped", "error", err)
				cancel()
			}
		}()
	}

	err = coord.Watch(ctx, w, l, viper.GetDuration("settle"))

	cancel()
	select {
	case <-rendered:
	case <-time.After(2 * time.Second):
	}
	return err
}
