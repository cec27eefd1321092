package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd)
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		stopDaemon()
		fmt.Println("Daemon stopped")
	},
}

// stopDaemon signals the recorded daemon process and cleans up its files.
// Every step is best-effort: a stale pid file or missing socket must not
// block a restart.
func stopDaemon() {
	if data, err := os.ReadFile(cfg.PIDFile); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid > 0 {
			syscall.Kill(pid, syscall.SIGTERM)
		}
		os.Remove(cfg.PIDFile)
	}
	os.Remove(cfg.SocketPath)
}
