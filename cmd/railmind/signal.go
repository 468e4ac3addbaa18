package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/railmind/internal/signals"
)

var signalCmd = &cobra.Command{
	Use:   "signal <stop|pause|clear>",
	Short: "Stop or pause running railmind processes",
	Long: `Write a signal file that running railmind processes watch.

  stop   cancel every active run; new runs are cancelled until cleared
  pause  reject new requests until cleared
  clear  remove all signals`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"stop", "pause", "clear"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dir := signals.Dir(cfg.Signals.Root)
		if err := sendSignal(dir, args[0]); err != nil {
			return err
		}
		if args[0] == "clear" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s signals cleared in %s\n", color.GreenString("✓"), dir)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s signal written to %s\n", color.GreenString("✓"), args[0], dir)
		return nil
	},
}

func sendSignal(dir, name string) error {
	switch name {
	case "stop":
		return signals.Send(dir, signals.StopFile)
	case "pause":
		return signals.Send(dir, signals.PauseFile)
	case "clear":
		return signals.Clear(dir)
	default:
		return fmt.Errorf("unknown signal %q: want stop, pause or clear", name)
	}
}
