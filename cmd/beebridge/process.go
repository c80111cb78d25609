package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/beebridge/internal/config"
)

// errNotRunning is returned by stop when no daemon is recorded.
var errNotRunning = errors.New("bridge is not running")

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bridge in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		pidFile := pidFilePath()
		if pid, ok := runningPID(pidFile); ok {
			return fmt.Errorf("bridge already running with pid %d", pid)
		}

		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate executable: %w", err)
		}
		argv := []string{"run"}
		if configPath != "" {
			argv = append(argv, "--config", configPath)
		}
		if logLevel != "" {
			argv = append(argv, "--log-level", logLevel)
		}

		child := exec.Command(exe, argv...)
		child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
		if err := child.Start(); err != nil {
			return fmt.Errorf("start bridge: %w", err)
		}
		pid := child.Process.Pid
		if err := child.Process.Release(); err != nil {
			log.Debug().Err(err).Msg("Release child process")
		}

		if err := writePID(pidFile, pid); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "bridge started with pid %d\n", pid)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a bridge started with start",
	RunE: func(cmd *cobra.Command, args []string) error {
		pidFile := pidFilePath()
		pid, ok := runningPID(pidFile)
		if !ok {
			_ = os.Remove(pidFile)
			return errNotRunning
		}
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			return fmt.Errorf("signal pid %d: %w", pid, err)
		}
		if err := os.Remove(pidFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", pidFile).Msg("Failed to remove pid file")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "bridge with pid %d stopped\n", pid)
		return nil
	},
}

func pidFilePath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, config.AppName+".pid")
}

func writePID(path string, pid int) error {
	if err := renameio.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}

// runningPID returns the recorded pid if that process still exists.
func runningPID(path string) (int, bool) {
	pid, err := readPID(path)
	if err != nil {
		return 0, false
	}
	if err := syscall.Kill(pid, 0); err != nil && !errors.Is(err, syscall.EPERM) {
		return 0, false
	}
	return pid, true
}
