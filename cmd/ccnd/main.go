package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ccnd-project/ccnd/internal/ccnname"
	"github.com/ccnd-project/ccnd/internal/core"
	"github.com/spf13/cobra"
)

var config = core.DefaultConfig()

var cmdCcnd = &cobra.Command{
	Use:   "ccnd CONFIG-FILE",
	Short: "Content-centric networking forwarding daemon",
	Args:  cobra.MaximumNArgs(1),
	RunE:  run,
}

// Registers command-line flags matching the teacher's fw/cmd.CmdYaNFD
// profiling flags, plus the log-level flag the original ccnd exposes via
// CCND_DEBUG.
func init() {
	cmdCcnd.Flags().StringVar(&config.Core.CpuProfile, "cpu-profile", "", "Write CPU profile to file")
	cmdCcnd.Flags().StringVar(&config.Core.MemProfile, "mem-profile", "", "Write memory profile to file")
	cmdCcnd.Flags().StringVar(&config.Core.BlockProfile, "block-profile", "", "Write block profile to file")
	cmdCcnd.Flags().StringVar(&config.Core.LogLevel, "log-level", config.Core.LogLevel, "Minimum log level (TRACE/DEBUG/INFO/WARN/ERROR/FATAL)")
}

func main() {
	if err := cmdCcnd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run loads the optional YAML config file, applies the CCND_* environment
// overrides, then starts the daemon and blocks until an interrupt signal,
// mirroring the teacher's fw/cmd.run.
func run(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		config.Core.BaseDir = filepath.Dir(args[0])
		if err := core.ReadYaml(config, args[0]); err != nil {
			return fmt.Errorf("ccnd: reading config: %w", err)
		}
	}
	config.ApplyEnv()

	level, err := core.ParseLevel(config.Core.LogLevel)
	if err != nil {
		return err
	}
	core.SetLevel(level)

	profiler := NewProfiler(config)
	if err := profiler.Start(); err != nil {
		return err
	}
	defer profiler.Stop()

	d := NewDaemon(config)
	if err := d.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-sigCh
	core.Log.Info(d, "received signal, exiting", "signal", sig)

	d.Stop()
	return nil
}

// parseAutoregPrefix is split out from Daemon.autoregister purely so the
// ccnname import is scoped to one small helper.
func parseAutoregPrefix(s string) (ccnname.Name, error) {
	return ccnname.NameFromStr(s)
}
