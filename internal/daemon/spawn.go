package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/jcdickinson/symdex/internal/config"
)

// OpenLog opens the daemon log for appending, creating its directory.
func OpenLog() (*os.File, error) {
	p := config.LogPath()
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening daemon log: %w", err)
	}
	return f, nil
}

// Spawn re-executes the running binary as "symdex daemon" in its own
// session. The child's stderr goes to the daemon log so early panics are
// kept.
func Spawn() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}
	logFile, err := OpenLog()
	if err != nil {
		return err
	}
	defer logFile.Close()

	child := exec.Command(exe, "daemon")
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	child.Stderr = logFile
	if err := child.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}
	return child.Process.Release()
}
