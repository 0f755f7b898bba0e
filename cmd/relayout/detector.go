package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/relayout/internal/config"
	"github.com/jackzampolin/relayout/internal/docker"
	"github.com/jackzampolin/relayout/internal/home"
)

var detectorCmd = &cobra.Command{
	Use:   "detector",
	Short: "Manage the layout detector container",
	Long: `Manage the Docker container that runs the layout detection service.

The container image, name and port come from the detector.container
section of the config file. The container name defaults to one derived
from the home directory so several homes can run side by side.`,
}

var detectorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the detector container",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := detectorManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Printf("Starting detector (%s)...\n", mgr.Image())
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start detector: %w", err)
		}

		fmt.Printf("Detector running at %s\n", mgr.URL())
		return nil
	},
}

var detectorStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the detector container",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := detectorManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Stopping detector...")
		if err := mgr.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop detector: %w", err)
		}

		fmt.Println("Detector stopped")
		return nil
	},
}

var detectorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show detector container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := detectorManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		status, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		fmt.Printf("Container: %s\n", mgr.ContainerName())
		switch status {
		case docker.StatusRunning:
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("URL: %s\n", mgr.URL())

			// Single health probe
			if err := docker.WaitHealthy(ctx, mgr.URL(), 0); err != nil {
				fmt.Printf("Health: unhealthy (%v)\n", err)
			} else {
				fmt.Println("Health: healthy")
			}
		case docker.StatusStopped:
			fmt.Printf("Status: %s (use 'relayout detector start' to start)\n", status)
		case docker.StatusNotFound:
			fmt.Printf("Status: %s (use 'relayout detector start' to create)\n", status)
		default:
			fmt.Printf("Status: %s\n", status)
		}

		return nil
	},
}

var logsTail string

var detectorLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show detector container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := detectorManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		logs, err := mgr.Logs(ctx, logsTail)
		if errors.Is(err, docker.ErrNotFound) {
			return fmt.Errorf("container %s does not exist", mgr.ContainerName())
		}
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}

		fmt.Print(logs)
		return nil
	},
}

var detectorRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the detector container",
	Long: `Remove the detector container.

This stops and removes the container. Cached model weights in
~/.relayout/models/ are NOT deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := detectorManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Removing detector container...")
		if err := mgr.Remove(ctx); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}

		fmt.Println("Detector container removed (models preserved)")
		return nil
	},
}

var detectorWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for the detector to be ready",
	Long: `Wait for the detector to answer its health check.

This is useful in scripts to ensure the detector is fully started
before uploading pages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := detectorManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		fmt.Printf("Waiting for detector (timeout: %s)...\n", timeout)

		if err := mgr.WaitReady(ctx, timeout); err != nil {
			return fmt.Errorf("detector not ready: %w", err)
		}

		fmt.Println("Detector is ready")
		return nil
	},
}

func init() {
	detectorCmd.AddCommand(detectorStartCmd)
	detectorCmd.AddCommand(detectorStopCmd)
	detectorCmd.AddCommand(detectorStatusCmd)
	detectorCmd.AddCommand(detectorLogsCmd)
	detectorCmd.AddCommand(detectorRemoveCmd)
	detectorCmd.AddCommand(detectorWaitCmd)

	detectorLogsCmd.Flags().StringVar(&logsTail, "tail", "100", "Number of lines to show from the end")
	detectorWaitCmd.Flags().Duration("timeout", 60*time.Second, "Timeout waiting for the detector")

	rootCmd.AddCommand(detectorCmd)
}

// getHome returns the home directory manager.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	return h, nil
}

// loadConfig reads --config, ./config.yaml or the home config file.
func loadConfig(h *home.Dir) (*config.Manager, error) {
	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return mgr, nil
}

// getDockerManager creates a docker.Manager from the detector container config.
func getDockerManager(h *home.Dir, cfg *config.Config) (*docker.Manager, error) {
	modelPath := filepath.Join(h.Path(), "models")
	if err := os.MkdirAll(modelPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}

	c := cfg.Detector.Container
	return docker.NewManager(docker.Config{
		ContainerName: c.ContainerName,
		HomePath:      h.Path(),
		Image:         c.Image,
		ModelPath:     modelPath,
		HostPort:      c.Port,
	})
}

func detectorManager() (*docker.Manager, error) {
	h, err := getHome()
	if err != nil {
		return nil, err
	}
	cfgMgr, err := loadConfig(h)
	if err != nil {
		return nil, err
	}
	return getDockerManager(h, cfgMgr.Get())
}
