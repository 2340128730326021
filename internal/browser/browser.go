// Package browser opens URLs in the user's default browser.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/brizzai/desktop-auth/internal/logger"
	"go.uber.org/zap"
)

// Launcher opens a URL outside the process.
type Launcher interface {
	Open(url string) error
}

// SystemLauncher uses the platform's URL handler.
type SystemLauncher struct {
	goos  string
	start func(*exec.Cmd) error
}

var _ Launcher = (*SystemLauncher)(nil)

// NewSystemLauncher returns a launcher for the running platform.
func NewSystemLauncher() *SystemLauncher {
	return &SystemLauncher{goos: runtime.GOOS, start: startDetached}
}

// Command returns the command that opens url on goos.
func Command(goos, url string) (*exec.Cmd, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return exec.Command("xdg-open", url), nil
	case "darwin":
		return exec.Command("open", url), nil
	case "windows":
		// The empty argument is the window title; without it start treats a
		// quoted URL as the title.
		return exec.Command("cmd", "/c", "start", "", url), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}

// Open starts the handler without waiting for the browser to exit.
func (l *SystemLauncher) Open(url string) error {
	cmd, err := Command(l.goos, url)
	if err != nil {
		return err
	}
	if err := l.start(cmd); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Debug("browser launcher exited with error", zap.Error(err))
		}
	}()
	return nil
}
